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

package fairshare

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oar-team/kamelot/internal/platform"
	"github.com/oar-team/kamelot/internal/procset"
)

func ownerTable(m map[string]string) func(string) string {
	return func(id string) string { return m[id] }
}

func TestComputeWeightsByResourceSeconds(t *testing.T) {
	scheduled := []platform.ScheduledJob{
		{JobID: "j1", Walltime: 100, Resources: procset.FromIDs(1, 2)},
		{JobID: "j2", Walltime: 50, Resources: procset.FromIDs(3)},
	}
	owners := ownerTable(map[string]string{"j1": "alice", "j2": "bob"})

	karma := Compute(scheduled, owners, Coefficients{Karma: 1, Consumed: 1})

	assert.Equal(t, float64(200), karma["alice"])
	assert.Equal(t, float64(50), karma["bob"])
}

func TestComputeAccumulatesPerOwner(t *testing.T) {
	scheduled := []platform.ScheduledJob{
		{JobID: "j1", Walltime: 10, Resources: procset.FromIDs(1)},
		{JobID: "j2", Walltime: 10, Resources: procset.FromIDs(2)},
	}
	owners := ownerTable(map[string]string{"j1": "alice", "j2": "alice"})

	karma := Compute(scheduled, owners, Coefficients{Karma: 1, Consumed: 1})

	assert.Equal(t, float64(20), karma["alice"])
}

func TestComputeSkipsUnknownOwners(t *testing.T) {
	scheduled := []platform.ScheduledJob{
		{JobID: "ghost", Walltime: 100, Resources: procset.FromIDs(1)},
	}
	karma := Compute(scheduled, ownerTable(nil), Coefficients{Karma: 1, Consumed: 1})

	assert.Empty(t, karma)
}

func TestComputeAppliesBothCoefficients(t *testing.T) {
	scheduled := []platform.ScheduledJob{
		{JobID: "j1", Walltime: 10, Resources: procset.FromIDs(1)},
	}
	owners := ownerTable(map[string]string{"j1": "alice"})

	karma := Compute(scheduled, owners, Coefficients{Karma: 2, Consumed: 3})

	assert.Equal(t, float64(60), karma["alice"])
}
