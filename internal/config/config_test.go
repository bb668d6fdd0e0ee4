// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oar-team/kamelot/internal/quota"
)

func resolverFrom(m map[string]string) Resolver {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	sc, err := Load(resolverFrom(nil))
	require.NoError(t, err)

	assert.False(t, sc.QuotasEnabled)
	assert.False(t, sc.FairsharingEnabled)
	assert.True(t, sc.BesteffortEviction)
	assert.Equal(t, 7*24*time.Hour, sc.QuotasWindowTimeLimit)
	assert.Empty(t, sc.ActiveQueues)
	assert.Equal(t, 1.0, sc.FairsharingCoefKarma)
	assert.Equal(t, 1.0, sc.FairsharingCoefConsumed)
}

func TestLoadOverridesAndSplitsCSV(t *testing.T) {
	sc, err := Load(resolverFrom(map[string]string{
		KeyHierarchyLabels:          "switch, node , core",
		KeyQuotas:                   "true",
		KeyQuotasWindowTimeLimit:    "3600",
		KeySchedulerJobSecurityTime: "60",
		KeyFairsharingEnabled:       "true",
		KeyFairsharingCoefKarma:     "0.5",
		KeyBesteffortEviction:       "false",
		KeySchedulerQueues:          "default,besteffort",
		KeySchedulerResourceLookup:  "basic",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"switch", "node", "core"}, sc.HierarchyLabels)
	assert.True(t, sc.QuotasEnabled)
	assert.Equal(t, time.Hour, sc.QuotasWindowTimeLimit)
	assert.Equal(t, int64(60), sc.JobSecurityTime)
	assert.True(t, sc.FairsharingEnabled)
	assert.Equal(t, 0.5, sc.FairsharingCoefKarma)
	assert.False(t, sc.BesteffortEviction)
	assert.Equal(t, []string{"default", "besteffort"}, sc.ActiveQueues)
	assert.Equal(t, "basic", sc.Strategy)
}

func TestLoadDefaultsLeaveStrategyEmpty(t *testing.T) {
	sc, err := Load(resolverFrom(nil))
	require.NoError(t, err)
	assert.Empty(t, sc.Strategy)
}

func TestLoadRejectsMalformedInteger(t *testing.T) {
	_, err := Load(resolverFrom(map[string]string{
		KeyQuotasWindowTimeLimit: "not-a-number",
	}))
	assert.Error(t, err)
}

func TestParseQuotasStaticRule(t *testing.T) {
	doc := []byte(`
enabled: true
rules:
  - queue: default
    kind: static
    nb_resources: 100
`)
	cfg, err := ParseQuotas(doc, time.Unix(0, 0), 7*24*time.Hour)
	require.NoError(t, err)

	require.True(t, cfg.Enabled)
	require.Len(t, cfg.Rules, 1)
	r := cfg.Rules[0]
	assert.Equal(t, quota.KindStatic, r.Kind)
	assert.Equal(t, "default", r.Queue)
	assert.Equal(t, "*", r.Project)
	require.NotNil(t, r.Cap.NbResources)
	assert.Equal(t, int64(100), *r.Cap.NbResources)
}

func TestParseQuotasOneShotRequiresBounds(t *testing.T) {
	doc := []byte(`
rules:
  - queue: default
    kind: one_shot
    nb_jobs: 5
`)
	_, err := ParseQuotas(doc, time.Unix(0, 0), time.Hour)
	assert.Error(t, err)
}

func TestParseQuotasUnknownKind(t *testing.T) {
	doc := []byte(`
rules:
  - queue: default
    kind: bogus
`)
	_, err := ParseQuotas(doc, time.Unix(0, 0), time.Hour)
	assert.Error(t, err)
}

func TestParseQuotasInvalidYAML(t *testing.T) {
	_, err := ParseQuotas([]byte("not: [valid"), time.Unix(0, 0), time.Hour)
	assert.Error(t, err)
}
