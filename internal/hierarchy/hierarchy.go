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

// Package hierarchy indexes the global ProcSet by administrator-defined
// resource labels (switch, node, core, ...), grouping resources that share
// the same label value.
package hierarchy

import (
	"sort"
	"strconv"

	"github.com/oar-team/kamelot/internal/procset"
)

// Resource is one schedulable unit: a dense id plus its attribute bag.
type Resource struct {
	ID         int32
	Attributes map[string]string
}

// Index holds, for one label, the ordered list of groups that partition the
// global ProcSet.
type Index struct {
	label  string
	groups []procset.ProcSet
	byRes  map[int32]int // resource id -> group index
}

// Build groups resources by the value of label, breaking ties on the
// group's key using natural (numeric-aware) string ordering.
func Build(label string, resources []Resource) *Index {
	byValue := make(map[string][]int32)
	for _, r := range resources {
		v := r.Attributes[label]
		byValue[v] = append(byValue[v], r.ID)
	}

	keys := make([]string, 0, len(byValue))
	for k := range byValue {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return naturalLess(keys[i], keys[j]) })

	idx := &Index{
		label: label,
		byRes: make(map[int32]int, len(resources)),
	}
	for gi, k := range keys {
		ids := byValue[k]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		g := procset.FromIDs(ids...)
		idx.groups = append(idx.groups, g)
		for _, id := range ids {
			idx.byRes[id] = gi
		}
	}
	return idx
}

// Groups returns the ordered list of groups for this label.
func (idx *Index) Groups() []procset.ProcSet { return idx.groups }

// GroupOf returns the group containing resource id, or the empty set if the
// resource is unknown for this label.
func (idx *Index) GroupOf(id int32) procset.ProcSet {
	gi, ok := idx.byRes[id]
	if !ok {
		return procset.ProcSet{}
	}
	return idx.groups[gi]
}

// Label returns the hierarchy label this index was built for.
func (idx *Index) Label() string { return idx.label }

// naturalLess orders strings numeric-aware when both sides parse as
// integers, lexicographic otherwise.
func naturalLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

// Set is a registry of built indexes, one per configured hierarchy label.
type Set struct {
	byLabel map[string]*Index
}

// NewSet builds an Index for every requested label from the resource table.
func NewSet(labels []string, resources []Resource) *Set {
	s := &Set{byLabel: make(map[string]*Index, len(labels))}
	for _, l := range labels {
		s.byLabel[l] = Build(l, resources)
	}
	return s
}

// Index returns the built index for label, or nil if it was not configured.
func (s *Set) Index(label string) *Index { return s.byLabel[label] }
