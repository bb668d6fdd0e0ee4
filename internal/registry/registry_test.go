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

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oar-team/kamelot/internal/procset"
	"github.com/oar-team/kamelot/internal/slot"
)

func TestNewSeedsDefaultSlotSet(t *testing.T) {
	r := New(0, procset.FromIDs(1, 2, 3, 4))
	assert.Equal(t, DefaultName, r.Default().Name)
	assert.Equal(t, []string{DefaultName}, r.Names())
	assert.Equal(t, 1, r.TotalSlots())
}

func TestGetReturnsNilForUnknownName(t *testing.T) {
	r := New(0, procset.FromIDs(1))
	assert.Nil(t, r.Get("no-such-slotset"))
	assert.Same(t, r.Default(), r.Get(DefaultName))
}

func TestOpenContainerBoundsHorizonAtFinish(t *testing.T) {
	r := New(0, procset.FromIDs(1, 2, 3, 4))
	ss, err := r.OpenContainer("container-1", 100, 199, procset.FromIDs(1, 2))
	require.NoError(t, err)
	assert.Equal(t, ContainerSlotSetName("container-1"), ss.Name)
	assert.Same(t, ss, r.Get(ContainerSlotSetName("container-1")))

	// Nothing can be placed past the container's own finish time.
	inside, ok := ss.Intersection(150, 199)
	require.True(t, ok)
	assert.Equal(t, "1-2", inside.String())

	_, ok = ss.Intersection(200, 250)
	assert.False(t, ok, "the tail past finish was carved away and is permanently unavailable")

	require.NoError(t, ss.CommitJob(100, 149, procset.FromIDs(1, 2), slot.Counters{}, nil, "", procset.ProcSet{}))
}

func TestOpenContainerRejectsDuplicateID(t *testing.T) {
	r := New(0, procset.FromIDs(1, 2))
	_, err := r.OpenContainer("dup", 0, 99, procset.FromIDs(1))
	require.NoError(t, err)

	_, err = r.OpenContainer("dup", 0, 99, procset.FromIDs(1))
	assert.Error(t, err)
}

func TestCloseContainerRemovesItsSlotSet(t *testing.T) {
	r := New(0, procset.FromIDs(1, 2))
	_, err := r.OpenContainer("c1", 0, 99, procset.FromIDs(1))
	require.NoError(t, err)
	require.NotNil(t, r.Get(ContainerSlotSetName("c1")))

	r.CloseContainer("c1")
	assert.Nil(t, r.Get(ContainerSlotSetName("c1")))
	assert.Equal(t, []string{DefaultName}, r.Names())
}

func TestTotalSlotsSumsAcrossEveryRegisteredSlotSet(t *testing.T) {
	r := New(0, procset.FromIDs(1, 2, 3, 4))
	before := r.TotalSlots()

	ss, err := r.OpenContainer("c1", 0, 99, procset.FromIDs(1, 2))
	require.NoError(t, err)
	require.NoError(t, ss.CommitJob(0, 49, procset.FromIDs(1), slot.Counters{}, nil, "", procset.ProcSet{}))

	after := r.TotalSlots()
	assert.Greater(t, after, before, "splitting the container's slotset to book a job adds slots to the total")
}
