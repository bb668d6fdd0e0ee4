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

package assign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oar-team/kamelot/internal/evaluate"
	"github.com/oar-team/kamelot/internal/hierarchy"
	"github.com/oar-team/kamelot/internal/hook"
	"github.com/oar-team/kamelot/internal/job"
	"github.com/oar-team/kamelot/internal/kerrors"
	"github.com/oar-team/kamelot/internal/procset"
	"github.com/oar-team/kamelot/internal/slot"
)

func flatHierarchy(n int) *hierarchy.Set {
	var resources []hierarchy.Resource
	for i := int32(1); i <= int32(n); i++ {
		resources = append(resources, hierarchy.Resource{ID: i, Attributes: map[string]string{"core": "1"}})
	}
	return hierarchy.NewSet([]string{"core"}, resources)
}

func newAssigner(horizon int64) *Assigner {
	return New(evaluate.Basic, flatHierarchy(8), nil, hook.Set{}, 0, horizon, zap.NewNop())
}

func oneShotJob(id string, count int, walltime int64) *job.Job {
	return &job.Job{
		ID:    id,
		Queue: "default",
		Moldables: []job.Moldable{
			{Index: 0, Walltime: walltime, Request: job.Request{LeafCount: count, LeafLabel: "core"}},
		},
	}
}

func TestAssignPicksEarliestFinish(t *testing.T) {
	ss := slot.New("default", 0, procset.FromIDs(1, 2, 3, 4, 5, 6, 7, 8))
	a := newAssigner(1000)

	j := oneShotJob("j1", 4, 100)
	got, err := a.Assign(ss, j, Context{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Start)
	assert.Equal(t, int64(100), got.Walltime)
	assert.Equal(t, 4, got.Resources.Count())
}

func TestAssignAdvancesPastOccupiedWindow(t *testing.T) {
	ss := slot.New("default", 0, procset.FromIDs(1, 2, 3, 4))
	a := newAssigner(1000)

	require.NoError(t, ss.CommitJob(0, 99, procset.FromIDs(1, 2, 3, 4), slot.Counters{}, nil, "", procset.ProcSet{}))

	j := oneShotJob("j2", 4, 50)
	got, err := a.Assign(ss, j, Context{})
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Start)
}

func TestAssignUnsatisfiableBeyondHorizon(t *testing.T) {
	ss := slot.New("default", 0, procset.FromIDs(1, 2))
	require.NoError(t, ss.CommitJob(0, 10000, procset.FromIDs(1, 2), slot.Counters{}, nil, "", procset.ProcSet{}))
	a := newAssigner(10)

	j := oneShotJob("j3", 2, 50)
	_, err := a.Assign(ss, j, Context{})
	require.Error(t, err)
	se, ok := kerrors.AsScheduling(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.CodeNoSlotInHorizon, se.Code)
	assert.True(t, se.Soft())
}

func TestAssignRejectsPlaceholderWithTimesharing(t *testing.T) {
	ss := slot.New("default", 0, procset.FromIDs(1, 2))
	a := newAssigner(1000)

	j := oneShotJob("j4", 1, 10)
	j.Types = job.Types{Placeholder: "resa", Timesharing: &job.Timesharing{User: "*", Name: "*"}}

	_, err := a.Assign(ss, j, Context{})
	require.Error(t, err)
	se, ok := kerrors.AsScheduling(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.CodeIncompatibleJobTypes, se.Code)
}

func TestAssignSharesResourcesWithMatchingTimesharingPeer(t *testing.T) {
	ss := slot.New("default", 0, procset.FromIDs(1, 2, 3, 4))
	require.NoError(t, ss.CommitJob(0, 99, procset.FromIDs(1, 2, 3, 4), slot.Counters{}, nil, "", procset.ProcSet{}))
	a := newAssigner(1000)

	j := oneShotJob("j-ts", 4, 100)
	j.Types = job.Types{Timesharing: &job.Timesharing{User: "*", Name: "*"}}

	ctx := Context{
		TimesharingPeers: func(ts *job.Timesharing, from, to int64) procset.ProcSet {
			if !ts.Matches(&job.Timesharing{User: "*", Name: "*"}) {
				return procset.ProcSet{}
			}
			return procset.FromIDs(1, 2, 3, 4)
		},
	}

	got, err := a.Assign(ss, j, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Start)
	assert.Equal(t, "1-4", got.Resources.String())
}

func TestAssignDoesNotShareResourcesForBesteffortTimesharing(t *testing.T) {
	ss := slot.New("default", 0, procset.FromIDs(1, 2, 3, 4))
	require.NoError(t, ss.CommitJob(0, 99, procset.FromIDs(1, 2, 3, 4), slot.Counters{}, nil, "", procset.ProcSet{}))
	a := newAssigner(50)

	j := oneShotJob("j-ts-be", 4, 50)
	j.Types = job.Types{Besteffort: true, Timesharing: &job.Timesharing{User: "*", Name: "*"}}

	ctx := Context{
		TimesharingPeers: func(ts *job.Timesharing, from, to int64) procset.ProcSet {
			return procset.FromIDs(1, 2, 3, 4)
		},
	}

	_, err := a.Assign(ss, j, ctx)
	require.Error(t, err, "besteffort jobs never share resources even when tagged time-sharing")
}

func TestAssignHonorsAdvanceReservation(t *testing.T) {
	ss := slot.New("default", 0, procset.FromIDs(1, 2, 3, 4))
	a := newAssigner(1000)

	j := oneShotJob("j5", 2, 60)
	at := int64(500)
	j.AdvanceReservation = &at

	got, err := a.Assign(ss, j, Context{})
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Start)
}

func TestAssignBumpsPastDependencyFinish(t *testing.T) {
	ss := slot.New("default", 0, procset.FromIDs(1, 2))
	a := newAssigner(1000)

	j := oneShotJob("j6", 2, 20)
	j.Deps = []job.Dependency{{JobID: "upstream", AcceptedStates: []string{string(job.StateScheduled)}}}

	ctx := Context{
		DependencyLookup: func(id string) (int64, job.State, bool) {
			require.Equal(t, "upstream", id)
			return 149, job.StateScheduled, true
		},
	}
	got, err := a.Assign(ss, j, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.Start)
}

func TestEvictBesteffortRestoresResourcesAndAllowsReassignment(t *testing.T) {
	ss := slot.New("default", 0, procset.FromIDs(1, 2, 3, 4))
	require.NoError(t, ss.CommitJob(0, 99, procset.FromIDs(1, 2, 3, 4), slot.Counters{}, nil, "", procset.ProcSet{}))
	a := newAssigner(50)

	urgent := oneShotJob("urgent", 4, 50)
	_, err := a.Assign(ss, urgent, Context{})
	require.Error(t, err, "resources are fully occupied by the besteffort job until t=100, beyond the horizon")

	evicted, err := EvictBesteffort(ss, []BesteffortPeer{
		{JobID: "besteffort-1", Start: 0, PaddedEnd: 99, Resources: procset.FromIDs(1, 2, 3, 4)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"besteffort-1"}, evicted)

	got, err := a.Assign(ss, urgent, Context{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Start)
}

func TestAssignDependencyUnresolvedIsSoftError(t *testing.T) {
	ss := slot.New("default", 0, procset.FromIDs(1, 2))
	a := newAssigner(1000)

	j := oneShotJob("j7", 1, 10)
	j.Deps = []job.Dependency{{JobID: "ghost", AcceptedStates: []string{string(job.StateScheduled)}}}

	ctx := Context{
		DependencyLookup: func(id string) (int64, job.State, bool) { return 0, "", false },
	}
	_, err := a.Assign(ss, j, ctx)
	require.Error(t, err)
	se, ok := kerrors.AsScheduling(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.CodeDependencyUnresolved, se.Code)
	assert.True(t, se.Soft())
}
