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

// Package procset implements the ProcSet algebra: a compact, canonical
// representation of a set of resource ids as a sorted list of disjoint
// closed intervals.
package procset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Interval is a closed range [Low, High] of resource ids. Ids fit in 32 bits.
type Interval struct {
	Low  int32
	High int32
}

// ProcSet is a canonical sorted list of disjoint, non-adjacent intervals.
// The zero value is the empty set.
type ProcSet struct {
	intervals []Interval
}

// New builds a canonical ProcSet from arbitrary (possibly overlapping,
// unsorted) intervals.
func New(ivs ...Interval) ProcSet {
	if len(ivs) == 0 {
		return ProcSet{}
	}
	cp := make([]Interval, len(ivs))
	copy(cp, ivs)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Low < cp[j].Low })

	out := make([]Interval, 0, len(cp))
	cur := cp[0]
	for _, iv := range cp[1:] {
		if iv.Low <= cur.High+1 {
			if iv.High > cur.High {
				cur.High = iv.High
			}
			continue
		}
		out = append(out, cur)
		cur = iv
	}
	out = append(out, cur)
	return ProcSet{intervals: out}
}

// FromIDs builds a ProcSet from individual resource ids.
func FromIDs(ids ...int32) ProcSet {
	ivs := make([]Interval, len(ids))
	for i, id := range ids {
		ivs[i] = Interval{Low: id, High: id}
	}
	return New(ivs...)
}

// Empty reports whether the set contains no ids.
func (p ProcSet) Empty() bool { return len(p.intervals) == 0 }

// Intervals returns the canonical interval list. Callers must not mutate it.
func (p ProcSet) Intervals() []Interval { return p.intervals }

// Count returns the cardinality of the set.
func (p ProcSet) Count() int {
	n := 0
	for _, iv := range p.intervals {
		n += int(iv.High-iv.Low) + 1
	}
	return n
}

// Contains reports whether id belongs to the set.
func (p ProcSet) Contains(id int32) bool {
	ivs := p.intervals
	lo, hi := 0, len(ivs)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case id < ivs[mid].Low:
			hi = mid - 1
		case id > ivs[mid].High:
			lo = mid + 1
		default:
			return true
		}
	}
	return false
}

// Union returns a ∪ b in canonical form.
func Union(a, b ProcSet) ProcSet {
	merged := make([]Interval, 0, len(a.intervals)+len(b.intervals))
	merged = append(merged, a.intervals...)
	merged = append(merged, b.intervals...)
	return New(merged...)
}

// Intersection returns a ∩ b via a two-pointer merge over the canonical
// interval lists, in O(len(a)+len(b)).
func Intersection(a, b ProcSet) ProcSet {
	var out []Interval
	i, j := 0, 0
	for i < len(a.intervals) && j < len(b.intervals) {
		ai, bj := a.intervals[i], b.intervals[j]
		lo := max32(ai.Low, bj.Low)
		hi := min32(ai.High, bj.High)
		if lo <= hi {
			out = append(out, Interval{Low: lo, High: hi})
		}
		if ai.High < bj.High {
			i++
		} else {
			j++
		}
	}
	return ProcSet{intervals: out}
}

// Difference returns a \ b: ids in a that are not in b. b's intervals that
// end before the current a-interval starts are skipped permanently, so the
// whole call runs in O(len(a)+len(b)).
func Difference(a, b ProcSet) ProcSet {
	var out []Interval
	j := 0
	for _, ai := range a.intervals {
		lo := ai.Low
		for j < len(b.intervals) && b.intervals[j].High < lo {
			j++
		}
		for k := j; k < len(b.intervals) && b.intervals[k].Low <= ai.High; k++ {
			bk := b.intervals[k]
			if bk.Low > lo {
				out = append(out, Interval{Low: lo, High: bk.Low - 1})
			}
			if bk.High >= lo {
				lo = bk.High + 1
			}
			if bk.High >= ai.High {
				break
			}
		}
		if lo <= ai.High {
			out = append(out, Interval{Low: lo, High: ai.High})
		}
	}
	return ProcSet{intervals: out}
}

// IsSubset reports whether every id of a is also in b.
func IsSubset(a, b ProcSet) bool {
	return Intersection(a, b).Count() == a.Count()
}

// Equal reports whether a and b contain exactly the same ids.
func Equal(a, b ProcSet) bool {
	if len(a.intervals) != len(b.intervals) {
		return false
	}
	for i := range a.intervals {
		if a.intervals[i] != b.intervals[i] {
			return false
		}
	}
	return true
}

// FirstN returns the sub-ProcSet holding the k smallest ids of p (or all of
// p, if it has fewer than k ids).
func (p ProcSet) FirstN(k int) ProcSet {
	if k <= 0 {
		return ProcSet{}
	}
	var out []Interval
	remaining := k
	for _, iv := range p.intervals {
		if remaining <= 0 {
			break
		}
		width := int(iv.High-iv.Low) + 1
		if width <= remaining {
			out = append(out, iv)
			remaining -= width
			continue
		}
		out = append(out, Interval{Low: iv.Low, High: iv.Low + int32(remaining) - 1})
		remaining = 0
	}
	return ProcSet{intervals: out}
}

// String renders the set as "a-b,c,d-e", the notation used throughout the
// CLI and test fixtures.
func (p ProcSet) String() string {
	if p.Empty() {
		return ""
	}
	parts := make([]string, len(p.intervals))
	for i, iv := range p.intervals {
		if iv.Low == iv.High {
			parts[i] = strconv.Itoa(int(iv.Low))
		} else {
			parts[i] = fmt.Sprintf("%d-%d", iv.Low, iv.High)
		}
	}
	return strings.Join(parts, ",")
}

// Parse parses the "a-b,c,d-e" notation produced by String.
func Parse(s string) (ProcSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ProcSet{}, nil
	}
	var ivs []Interval
	for _, chunk := range strings.Split(s, ",") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if idx := strings.IndexByte(chunk, '-'); idx >= 0 {
			lo, err := strconv.Atoi(chunk[:idx])
			if err != nil {
				return ProcSet{}, fmt.Errorf("procset: invalid interval %q: %w", chunk, err)
			}
			hi, err := strconv.Atoi(chunk[idx+1:])
			if err != nil {
				return ProcSet{}, fmt.Errorf("procset: invalid interval %q: %w", chunk, err)
			}
			if hi < lo {
				return ProcSet{}, fmt.Errorf("procset: invalid interval %q: high < low", chunk)
			}
			ivs = append(ivs, Interval{Low: int32(lo), High: int32(hi)})
			continue
		}
		id, err := strconv.Atoi(chunk)
		if err != nil {
			return ProcSet{}, fmt.Errorf("procset: invalid id %q: %w", chunk, err)
		}
		ivs = append(ivs, Interval{Low: int32(id), High: int32(id)})
	}
	return New(ivs...), nil
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
