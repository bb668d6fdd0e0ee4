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

// Package evaluate implements the resource-request evaluator: given a
// candidate ProcSet and a hierarchical request, decide whether and how the
// request can be satisfied, via the "basic" (scattered, greedy) or "tree"
// (recursive with backtracking) strategy.
package evaluate

import (
	"fmt"

	"github.com/oar-team/kamelot/internal/hierarchy"
	"github.com/oar-team/kamelot/internal/job"
	"github.com/oar-team/kamelot/internal/procset"
)

// Strategy selects which evaluation algorithm to run. Both must produce a
// valid solution for the same input, though not necessarily an identical
// one.
type Strategy string

const (
	Basic Strategy = "basic"
	Tree  Strategy = "tree"
)

// PropertyFilter narrows the candidate set to resources matching a job's
// property expression, evaluated once per resource id by the caller.
type PropertyFilter func(resourceID int32) bool

// Find applies strategy to satisfy req within candidate, optionally
// narrowed by filter. It returns the chosen sub-ProcSet and true on
// success.
func Find(strategy Strategy, candidate procset.ProcSet, req job.Request, hset *hierarchy.Set, filter PropertyFilter) (procset.ProcSet, bool) {
	if filter != nil {
		candidate = applyFilter(candidate, filter)
	}
	if req.TotalCount() == 0 {
		return procset.ProcSet{}, true
	}
	switch strategy {
	case Tree:
		memo := make(map[string]solveResult)
		return treeSolve(candidate, req.Levels, req.LeafCount, hset, memo)
	default:
		return basicSolve(candidate, req.Levels, req.LeafCount, hset)
	}
}

func applyFilter(candidate procset.ProcSet, filter PropertyFilter) procset.ProcSet {
	var ids []int32
	for _, iv := range candidate.Intervals() {
		for id := iv.Low; id <= iv.High; id++ {
			if filter(id) {
				ids = append(ids, id)
			}
		}
	}
	return procset.FromIDs(ids...)
}

// basicSolve is the scattered strategy: top-down, greedy, no
// backtracking across sibling groups. It picks the first n_i groups whose
// intersection with the surviving candidate is large enough to plausibly
// host the remaining sub-request, then descends into each — if a chosen
// group's descent later fails, the whole level fails rather than trying a
// different group.
func basicSolve(current procset.ProcSet, levels []job.Level, leafCount int, hset *hierarchy.Set) (procset.ProcSet, bool) {
	if len(levels) == 0 {
		if current.Count() < leafCount {
			return procset.ProcSet{}, false
		}
		return current.FirstN(leafCount), true
	}
	level := levels[0]
	rest := levels[1:]
	idx := hset.Index(level.Label)
	if idx == nil {
		return procset.ProcSet{}, false
	}
	neededPerGroup := leafCount
	for _, l := range rest {
		neededPerGroup *= l.Count
	}

	var chosen []procset.ProcSet
	for _, g := range idx.Groups() {
		gc := procset.Intersection(g, current)
		if gc.Count() >= neededPerGroup {
			chosen = append(chosen, gc)
			if len(chosen) == level.Count {
				break
			}
		}
	}
	if len(chosen) < level.Count {
		return procset.ProcSet{}, false
	}

	var result procset.ProcSet
	for _, gc := range chosen {
		sub, ok := basicSolve(gc, rest, leafCount, hset)
		if !ok {
			return procset.ProcSet{}, false
		}
		result = procset.Union(result, sub)
	}
	return result, true
}

type solveResult struct {
	set procset.ProcSet
	ok  bool
}

// treeSolve is the recursive strategy with backtracking: at each
// level, groups are tried in order and a group that cannot host the
// sub-request is simply skipped in favor of the next one, instead of
// failing the whole level. Results are memoized per (level, candidate)
// pair within one evaluation.
func treeSolve(current procset.ProcSet, levels []job.Level, leafCount int, hset *hierarchy.Set, memo map[string]solveResult) (procset.ProcSet, bool) {
	if len(levels) == 0 {
		if current.Count() < leafCount {
			return procset.ProcSet{}, false
		}
		return current.FirstN(leafCount), true
	}
	level := levels[0]
	rest := levels[1:]
	key := fmt.Sprintf("%d:%s", len(levels), current.String())
	if r, ok := memo[key]; ok {
		return r.set, r.ok
	}

	idx := hset.Index(level.Label)
	if idx == nil {
		memo[key] = solveResult{}
		return procset.ProcSet{}, false
	}

	var chosen []procset.ProcSet
	for _, g := range idx.Groups() {
		if len(chosen) == level.Count {
			break
		}
		gc := procset.Intersection(g, current)
		if gc.Empty() {
			continue
		}
		sub, ok := treeSolve(gc, rest, leafCount, hset, memo)
		if ok {
			chosen = append(chosen, sub)
		}
	}
	if len(chosen) < level.Count {
		memo[key] = solveResult{}
		return procset.ProcSet{}, false
	}
	var result procset.ProcSet
	for _, c := range chosen {
		result = procset.Union(result, c)
	}
	memo[key] = solveResult{set: result, ok: true}
	return result, true
}
