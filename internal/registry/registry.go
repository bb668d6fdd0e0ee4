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

// Package registry implements the named SlotSet registry: the
// "default" SlotSet plus one sub-SlotSet per container job.
package registry

import (
	"fmt"

	"github.com/oar-team/kamelot/internal/procset"
	"github.com/oar-team/kamelot/internal/slot"
)

// DefaultName is the always-present SlotSet quotas apply to ("Quotas
// only apply to SlotSet named default").
const DefaultName = "default"

// Registry maps SlotSet names to SlotSets.
type Registry struct {
	sets map[string]*slot.SlotSet
}

// New builds a registry with just the "default" SlotSet, seeded with the
// full global ProcSet from time t0.
func New(t0 int64, global procset.ProcSet) *Registry {
	r := &Registry{sets: make(map[string]*slot.SlotSet)}
	r.sets[DefaultName] = slot.New(DefaultName, t0, global)
	return r
}

// Get returns the named SlotSet, or nil if it does not exist.
func (r *Registry) Get(name string) *slot.SlotSet { return r.sets[name] }

// Default returns the "default" SlotSet.
func (r *Registry) Default() *slot.SlotSet { return r.sets[DefaultName] }

// OpenContainer creates the sub-SlotSet for container job containerID,
// covering exactly [start,finish] with available = resources and empty
// quota counters. Container jobs do not propagate their own
// time-sharing or placeholder attributes into the sub-SlotSet.
func (r *Registry) OpenContainer(containerID string, start, finish int64, resources procset.ProcSet) (*slot.SlotSet, error) {
	name := ContainerSlotSetName(containerID)
	if _, exists := r.sets[name]; exists {
		return nil, fmt.Errorf("registry: container slotset %q already exists", name)
	}
	ss := slot.New(name, start, resources)
	// Cap the sub-slotset's horizon at the container's finish time by
	// carving away everything past it: a single CommitJob over
	// [finish+1, Infinity) with the full resources makes that tail
	// permanently unavailable, so no inner job can ever be placed there.
	if finish < slot.Infinity-1 {
		if err := ss.CommitJob(finish+1, slot.Infinity-1, resources, slot.Counters{}, nil, "", procset.ProcSet{}); err != nil {
			return nil, fmt.Errorf("registry: failed to bound container slotset horizon: %w", err)
		}
	}
	r.sets[name] = ss
	return ss, nil
}

// ContainerSlotSetName returns the deterministic sub-SlotSet name for a
// container job id.
func ContainerSlotSetName(containerID string) string { return "c_" + containerID }

// CloseContainer removes a container's sub-SlotSet, e.g. once the container
// job itself has terminated. It is not called during a normal scheduling
// cycle (the registry is discarded wholesale at cycle end) but
// is exposed for long-lived callers (tests, simulators) that keep a
// Registry across cycles.
func (r *Registry) CloseContainer(containerID string) {
	delete(r.sets, ContainerSlotSetName(containerID))
}

// Names returns every SlotSet name currently registered.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.sets))
	for n := range r.sets {
		out = append(out, n)
	}
	return out
}

// TotalSlots returns the number of slots summed over every SlotSet in the
// registry, the value the scheduling loop returns to the caller for
// benchmarking.
func (r *Registry) TotalSlots() int {
	n := 0
	for _, ss := range r.sets {
		n += ss.Len()
	}
	return n
}
