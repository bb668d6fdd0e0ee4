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

package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oar-team/kamelot/internal/procset"
	"github.com/oar-team/kamelot/internal/slot"
)

func int64Ptr(v int64) *int64 { return &v }

func TestSelectRulePicksMostSpecificMatch(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Rules: []Rule{
			{Queue: "*", Project: "*", User: "*", JobType: "*", Kind: KindStatic, Cap: Cap{NbResources: int64Ptr(100)}},
			{Queue: "default", Project: "*", User: "*", JobType: "*", Kind: KindStatic, Cap: Cap{NbResources: int64Ptr(16)}},
		},
	}
	e := NewEngine(cfg, zap.NewNop())

	rule := e.SelectRule("default", "p1", "alice", "besteffort", 0)
	require.NotNil(t, rule)
	assert.Equal(t, int64(16), *rule.Cap.NbResources)
}

func TestSelectRuleBreaksTiesLexicographicallyAndIsStable(t *testing.T) {
	// Both rules name exactly one field, so both match with the same
	// specificity and can only be told apart by Key(): "*|p1|*|*" sorts
	// before "default|*|*|*", so the second rule wins despite coming later.
	cfg := Config{
		Enabled: true,
		Rules: []Rule{
			{Queue: "default", Project: "*", User: "*", JobType: "*", Kind: KindStatic, Cap: Cap{NbResources: int64Ptr(1)}},
			{Queue: "*", Project: "p1", User: "*", JobType: "*", Kind: KindStatic, Cap: Cap{NbResources: int64Ptr(2)}},
		},
	}
	e := NewEngine(cfg, zap.NewNop())

	rule := e.SelectRule("default", "p1", "alice", "besteffort", 0)
	require.NotNil(t, rule)
	assert.Equal(t, int64(2), *rule.Cap.NbResources, "the lexicographically smaller key wins the tie")

	rule2 := e.SelectRule("default", "p1", "alice", "besteffort", 0)
	require.NotNil(t, rule2)
	assert.Equal(t, *rule.Cap.NbResources, *rule2.Cap.NbResources, "repeated calls resolve the tie the same way")
}

func TestCheckAdmissionRejectsOverCapThenAllowsOnceTheWindowMoves(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Rules: []Rule{
			{Queue: "default", Project: "*", User: "*", JobType: "*", Kind: KindStatic, Cap: Cap{NbResources: int64Ptr(16)}},
		},
	}
	e := NewEngine(cfg, zap.NewNop())

	ss := slot.New(slotSetDefaultName, 0, procset.FromIDs(rangeIDs(1, 32)...))
	firstContribution := slot.Counters{NbResources: 16, NbJobs: 1, ResourcesTime: 16 * 3600}
	keyAt := e.KeyAt("default", "*", "*", "*")

	require.NoError(t, ss.CommitJob(0, 3599, procset.FromIDs(rangeIDs(1, 16)...), firstContribution, keyAt, "", procset.ProcSet{}))

	// A second identical job landing in the very same window would push
	// nb_resources to 32, over the cap of 16.
	dec := e.CheckAdmission(ss, "default", "p1", "alice", "besteffort", 0, 3599, firstContribution)
	assert.False(t, dec.OK)
	assert.Equal(t, int64(0), dec.NextTry, "a static rule has no instance boundary to jump to; the caller advances the start time itself")

	// Once the second job starts after the first job's committed window
	// ends, it lands in a fresh slot with no accrued usage under this rule.
	dec = e.CheckAdmission(ss, "default", "p1", "alice", "besteffort", 3600, 7199, firstContribution)
	assert.True(t, dec.OK)
}

func TestCheckAdmissionDisabledAlwaysAdmits(t *testing.T) {
	e := NewEngine(Config{Enabled: false, Rules: []Rule{
		{Queue: "*", Project: "*", User: "*", JobType: "*", Kind: KindStatic, Cap: Cap{NbResources: int64Ptr(0)}},
	}}, zap.NewNop())
	ss := slot.New(slotSetDefaultName, 0, procset.FromIDs(1, 2, 3, 4))
	dec := e.CheckAdmission(ss, "default", "p1", "alice", "besteffort", 0, 99, slot.Counters{NbResources: 4})
	assert.True(t, dec.OK)
}

func TestCheckAdmissionOvernightPeriodicalRejectsThenAllowsPastTheWindow(t *testing.T) {
	// Monday, 2024-01-01 UTC; the first Friday covered is 2024-01-05.
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	instances, err := ExpandPeriodical(PeriodicalSpec{TimeRange: "22:00-04:00", DayOfWeek: "fri"}, from, 14*24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, instances)

	cfg := Config{
		Enabled: true,
		Rules: []Rule{
			{Queue: "default", Project: "*", User: "*", JobType: "*", Kind: KindPeriodical, Cap: Cap{NbResources: int64Ptr(0)}, Instances: instances},
		},
	}
	e := NewEngine(cfg, zap.NewNop())
	ss := slot.New(slotSetDefaultName, from.Unix(), procset.FromIDs(1, 2, 3, 4))
	contribution := slot.Counters{NbResources: 1, NbJobs: 1, ResourcesTime: 3600}

	fridayNight := time.Date(2024, 1, 5, 23, 0, 0, 0, time.UTC).Unix()
	dec := e.CheckAdmission(ss, "default", "p1", "alice", "besteffort", fridayNight, fridayNight+3599, contribution)
	assert.False(t, dec.OK, "23:00 on the covered Friday falls inside the overnight blackout window")
	assert.Greater(t, dec.NextTry, fridayNight, "a periodical rejection jumps to the end of the blocked instance")

	saturdayMorning := time.Date(2024, 1, 6, 5, 0, 0, 0, time.UTC).Unix()
	dec = e.CheckAdmission(ss, "default", "p1", "alice", "besteffort", saturdayMorning, saturdayMorning+3599, contribution)
	assert.True(t, dec.OK, "05:00 Saturday is past the overnight window's 04:00 end")
}

const slotSetDefaultName = "default"

func rangeIDs(low, high int32) []int32 {
	out := make([]int32, 0, high-low+1)
	for i := low; i <= high; i++ {
		out = append(out, i)
	}
	return out
}
