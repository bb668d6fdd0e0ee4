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

// Package slot implements the SlotSet: a dynamic, ordered partition of the
// time axis into maximal intervals of constant resource availability, the
// interval-tree of resource commitments over time.
//
// Slots are arena-allocated nodes addressed by dense integer handles; prev
// and next links are handles, not pointers, so the structure has no cycles
// for the garbage collector to reason about and split/merge run in O(1)
// plus the cost of maintaining the order index.
package slot

import (
	"fmt"
	"sort"

	"github.com/oar-team/kamelot/internal/procset"
)

// Infinity is the sentinel "end" of the last slot in a SlotSet: it always
// covers [t0, +∞).
const Infinity int64 = 1<<63 - 1

// Handle addresses a slot node in a SlotSet's arena. Handles are only valid
// for the SlotSet that issued them.
type Handle int64

// Counters are the quota accounting fields the quota engine maintains
// per slot per matching rule.
type Counters struct {
	NbResources   int
	NbJobs        int
	ResourcesTime int64
}

// Add returns the element-wise sum of c and d.
func (c Counters) Add(d Counters) Counters {
	return Counters{
		NbResources:   c.NbResources + d.NbResources,
		NbJobs:        c.NbJobs + d.NbJobs,
		ResourcesTime: c.ResourcesTime + d.ResourcesTime,
	}
}

// Sub returns c - d.
func (c Counters) Sub(d Counters) Counters {
	return Counters{
		NbResources:   c.NbResources - d.NbResources,
		NbJobs:        c.NbJobs - d.NbJobs,
		ResourcesTime: c.ResourcesTime - d.ResourcesTime,
	}
}

type node struct {
	start, end   int64
	available    procset.ProcSet
	quotas       map[string]Counters          // rule key -> counters
	placeholders map[string]procset.ProcSet   // placeholder name -> reserved proc-set
	prev, next   Handle
}

func (n *node) quotaFor(key string) Counters { return n.quotas[key] }

// View is a read-only snapshot of one slot, returned by iteration methods so
// callers cannot mutate the SlotSet by aliasing internal state.
type View struct {
	Handle    Handle
	Start     int64
	End       int64
	Available procset.ProcSet
}

// SlotSet is a named, gapless, ordered sequence of slots covering
// [t0, +∞).
type SlotSet struct {
	Name string

	nodes      map[Handle]*node
	order      []Handle // ascending by start
	posOf      map[Handle]int
	nextHandle Handle
}

// New creates a SlotSet with a single slot [t0, +∞) available = full.
func New(name string, t0 int64, full procset.ProcSet) *SlotSet {
	ss := &SlotSet{
		Name:  name,
		nodes: make(map[Handle]*node),
		posOf: make(map[Handle]int),
	}
	h := ss.alloc(&node{start: t0, end: Infinity, available: full, prev: -1, next: -1})
	ss.order = []Handle{h}
	ss.posOf[h] = 0
	return ss
}

func (ss *SlotSet) alloc(n *node) Handle {
	h := ss.nextHandle
	ss.nextHandle++
	ss.nodes[h] = n
	return h
}

// Len returns the number of slots currently in the SlotSet.
func (ss *SlotSet) Len() int { return len(ss.order) }

// First returns the handle of the earliest slot.
func (ss *SlotSet) First() Handle { return ss.order[0] }

// Next returns the handle following h, or -1 if h is the last slot.
func (ss *SlotSet) Next(h Handle) Handle { return ss.nodes[h].next }

// Prev returns the handle preceding h, or -1 if h is the first slot.
func (ss *SlotSet) Prev(h Handle) Handle { return ss.nodes[h].prev }

// View returns a read-only snapshot of h.
func (ss *SlotSet) View(h Handle) View {
	n := ss.nodes[h]
	return View{Handle: h, Start: n.start, End: n.end, Available: n.available}
}

// PlaceholderReserved returns the proc-set that placeholder name has
// reserved in slot h (empty if none).
func (ss *SlotSet) PlaceholderReserved(h Handle, name string) procset.ProcSet {
	n := ss.nodes[h]
	if n.placeholders == nil {
		return procset.ProcSet{}
	}
	return n.placeholders[name]
}

// QuotaCounters returns the counters for ruleKey in slot h.
func (ss *SlotSet) QuotaCounters(h Handle, ruleKey string) Counters {
	return ss.nodes[h].quotaFor(ruleKey)
}

// find returns the order-index of the slot containing t. t must be >= the
// SlotSet's origin.
func (ss *SlotSet) find(t int64) int {
	return sort.Search(len(ss.order), func(i int) bool {
		return ss.nodes[ss.order[i]].end >= t
	})
}

// HeadAt returns the handle of the slot containing t.
func (ss *SlotSet) HeadAt(t int64) (Handle, bool) {
	i := ss.find(t)
	if i >= len(ss.order) {
		return -1, false
	}
	return ss.order[i], true
}

// splitAt ensures a slot boundary exists at t (t must be inside the
// SlotSet's range). Returns the order-index of the slot that starts at t.
// If t already is a boundary, it is a no-op.
func (ss *SlotSet) splitAt(t int64) int {
	i := ss.find(t)
	h := ss.order[i]
	n := ss.nodes[h]
	if n.start == t {
		return i
	}
	// t is strictly inside (n.start, n.end]: split into [n.start, t-1] and [t, n.end].
	right := &node{
		start:        t,
		end:          n.end,
		available:    n.available,
		next:         n.next,
		prev:         h,
		quotas:       copyCounters(n.quotas),
		placeholders: copyPlaceholders(n.placeholders),
	}
	rh := ss.alloc(right)
	if n.next != -1 {
		ss.nodes[n.next].prev = rh
	}
	n.end = t - 1
	n.next = rh

	ss.order = append(ss.order, -1)
	copy(ss.order[i+2:], ss.order[i+1:])
	ss.order[i+1] = rh
	for k := i + 1; k < len(ss.order); k++ {
		ss.posOf[ss.order[k]] = k
	}
	return i + 1
}

func copyCounters(m map[string]Counters) map[string]Counters {
	if m == nil {
		return nil
	}
	out := make(map[string]Counters, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyPlaceholders(m map[string]procset.ProcSet) map[string]procset.ProcSet {
	if m == nil {
		return nil
	}
	out := make(map[string]procset.ProcSet, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Window returns read-only views of every slot intersecting [a,b], without
// mutating the SlotSet. Used by the assigner to compute the running
// intersection of available resources over a candidate window before
// committing anything.
func (ss *SlotSet) Window(a, b int64) []View {
	i := ss.find(a)
	var out []View
	for i < len(ss.order) {
		h := ss.order[i]
		n := ss.nodes[h]
		if n.start > b {
			break
		}
		out = append(out, View{Handle: h, Start: n.start, End: n.end, Available: n.available})
		i++
	}
	return out
}

// Intersection computes ⋂ available over every slot intersecting [a,b],
// aborting early (returning ok=false) the moment the running intersection
// becomes empty.
func (ss *SlotSet) Intersection(a, b int64) (procset.ProcSet, bool) {
	i := ss.find(a)
	if i >= len(ss.order) {
		return procset.ProcSet{}, false
	}
	first := true
	var acc procset.ProcSet
	for i < len(ss.order) {
		h := ss.order[i]
		n := ss.nodes[h]
		if n.start > b {
			break
		}
		if first {
			acc = n.available
			first = false
		} else {
			acc = procset.Intersection(acc, n.available)
		}
		if acc.Empty() {
			return acc, false
		}
		i++
	}
	if first {
		// no slot at all covered [a,b], which cannot happen since the
		// SlotSet is gapless from its origin to +∞, but guard anyway.
		return procset.ProcSet{}, false
	}
	return acc, !acc.Empty()
}

// QuotaKeyFunc resolves the per-slot rule key a quota contribution should be
// booked under, given the slot's start time. It may return different keys
// for different slots of the same job window when a periodical/one-shot
// rule boundary falls inside that window. A false second return means "no
// applicable rule for this slot".
type QuotaKeyFunc func(slotStart int64) (key string, ok bool)

// CommitJob subtracts resources from every slot fully inside [a,b],
// splitting boundary slots first, and books
// contribution against whatever rule keyAt resolves for each touched slot
// If placeholderName is non-empty, the resources are also recorded
// as that placeholder's reservation in every touched slot.
//
// sharedWithPeers is the union of resources a time-sharing equivalence class
// already holds over [a,b] (see Context.TimesharingPeers in package assign).
// The portion of resources overlapping it is treated as already unavailable
// rather than required to still be free, so two compatible time-sharing jobs
// can commit to the same ids. Pass the zero value for ordinary exclusive
// jobs.
func (ss *SlotSet) CommitJob(a, b int64, resources procset.ProcSet, contribution Counters, keyAt QuotaKeyFunc, placeholderName string, sharedWithPeers procset.ProcSet) error {
	if a > b {
		return fmt.Errorf("slot: invalid window [%d,%d]", a, b)
	}
	startIdx := ss.splitAt(a)
	var endIdx int
	if b+1 <= Infinity-1 {
		endIdx = ss.splitAt(b+1) - 1
	} else {
		endIdx = len(ss.order) - 1
	}
	needed := resources
	if !sharedWithPeers.Empty() {
		needed = procset.Difference(resources, sharedWithPeers)
	}
	for i := startIdx; i <= endIdx; i++ {
		h := ss.order[i]
		n := ss.nodes[h]
		if !procset.IsSubset(needed, n.available) {
			return fmt.Errorf("slot: invariant violation: resources %s not available in slot [%d,%d] (%s)", needed, n.start, n.end, n.available)
		}
		n.available = procset.Difference(n.available, needed)
		if keyAt != nil {
			if key, ok := keyAt(n.start); ok {
				if n.quotas == nil {
					n.quotas = make(map[string]Counters)
				}
				n.quotas[key] = n.quotas[key].Add(contribution)
			}
		}
		if placeholderName != "" {
			if n.placeholders == nil {
				n.placeholders = make(map[string]procset.ProcSet)
			}
			n.placeholders[placeholderName] = procset.Union(n.placeholders[placeholderName], resources)
		}
	}
	ss.tryMergeRange(startIdx-1, endIdx+1)
	return nil
}

// RestoreJob is the inverse of CommitJob: it adds resources back to every
// slot inside [a,b] and reverses the quota contribution, used for
// besteffort eviction.
func (ss *SlotSet) RestoreJob(a, b int64, resources procset.ProcSet, contribution Counters, keyAt QuotaKeyFunc, placeholderName string) error {
	if a > b {
		return fmt.Errorf("slot: invalid window [%d,%d]", a, b)
	}
	startIdx := ss.splitAt(a)
	var endIdx int
	if b+1 <= Infinity-1 {
		endIdx = ss.splitAt(b+1) - 1
	} else {
		endIdx = len(ss.order) - 1
	}
	for i := startIdx; i <= endIdx; i++ {
		h := ss.order[i]
		n := ss.nodes[h]
		n.available = procset.Union(n.available, resources)
		if keyAt != nil {
			if key, ok := keyAt(n.start); ok {
				if n.quotas == nil {
					n.quotas = make(map[string]Counters)
				}
				n.quotas[key] = n.quotas[key].Sub(contribution)
			}
		}
		if placeholderName != "" && n.placeholders != nil {
			n.placeholders[placeholderName] = procset.Difference(n.placeholders[placeholderName], resources)
		}
	}
	ss.tryMergeRange(startIdx-1, endIdx+1)
	return nil
}

// tryMergeRange opportunistically merges adjacent slots between indices
// lo and hi (inclusive, clamped) whose content re-matches after a mutation.
// It is best-effort: failing to merge never violates an invariant.
func (ss *SlotSet) tryMergeRange(lo, hi int) {
	if lo < 0 {
		lo = 0
	}
	if hi > len(ss.order)-1 {
		hi = len(ss.order) - 1
	}
	i := lo
	for i < hi && i+1 < len(ss.order) {
		if ss.mergeIfEqual(i) {
			hi--
			continue
		}
		i++
	}
}

// mergeIfEqual merges order[i] and order[i+1] into one slot if their
// available proc-sets and quota counters are identical, returning true if a
// merge happened.
func (ss *SlotSet) mergeIfEqual(i int) bool {
	if i < 0 || i+1 >= len(ss.order) {
		return false
	}
	lh, rh := ss.order[i], ss.order[i+1]
	l, r := ss.nodes[lh], ss.nodes[rh]
	if l.end+1 != r.start {
		return false // not adjacent
	}
	if !procset.Equal(l.available, r.available) || !countersEqual(l.quotas, r.quotas) || !placeholdersEqual(l.placeholders, r.placeholders) {
		return false
	}
	l.end = r.end
	l.next = r.next
	if r.next != -1 {
		ss.nodes[r.next].prev = lh
	}
	delete(ss.nodes, rh)
	ss.order = append(ss.order[:i+1], ss.order[i+2:]...)
	delete(ss.posOf, rh)
	for k := i + 1; k < len(ss.order); k++ {
		ss.posOf[ss.order[k]] = k
	}
	return true
}

func countersEqual(a, b map[string]Counters) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func placeholdersEqual(a, b map[string]procset.ProcSet) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || !procset.Equal(v, bv) {
			return false
		}
	}
	return true
}

// CheckContiguity validates that adjacent slots are exactly contiguous
// with no gap or overlap across the whole SlotSet. It is intended for
// tests and for a paranoid pre-flush check, not the hot path.
func (ss *SlotSet) CheckContiguity() error {
	for i := 0; i+1 < len(ss.order); i++ {
		l := ss.nodes[ss.order[i]]
		r := ss.nodes[ss.order[i+1]]
		if l.end+1 != r.start {
			return fmt.Errorf("slot: contiguity violated between [%d,%d] and [%d,%d]", l.start, l.end, r.start, r.end)
		}
	}
	if len(ss.order) > 0 {
		last := ss.nodes[ss.order[len(ss.order)-1]]
		if last.end != Infinity {
			return fmt.Errorf("slot: last slot does not extend to infinity: ends at %d", last.end)
		}
	}
	return nil
}
