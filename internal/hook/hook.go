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

// Package hook defines the optional override points the core consults
// before falling back to its own logic: sort order, whole-job
// assignment, and leaf-level resource search. A hook returning ok=false
// means "use the default behavior".
package hook

import (
	"github.com/oar-team/kamelot/internal/job"
	"github.com/oar-team/kamelot/internal/procset"
)

// Sorter replaces the default waiting-job ordering entirely.
type Sorter interface {
	Sort(jobs []*job.Job) ([]*job.Job, bool)
}

// Assigner replaces the whole-job assignment the default algorithm would otherwise compute.
type Assigner interface {
	Assign(slotSetName string, j *job.Job) (job.Assignment, bool)
}

// Finder replaces the leaf-level search for a single moldable.
type Finder interface {
	Find(candidate procset.ProcSet, req job.Request, filter func(int32) bool) (procset.ProcSet, bool)
}

// Set bundles every registered hook. Any field may be nil, meaning that
// override point uses the core's default behavior.
type Set struct {
	Sorter   Sorter
	Assigner Assigner
	Finder   Finder
}
