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

package job

import "github.com/oar-team/kamelot/internal/procset"

// Assignment is the outcome of successfully scheduling a job: which
// moldable was chosen, when it starts, and on which resources.
type Assignment struct {
	JobID         string
	MoldableIndex int
	Start         int64
	Walltime      int64 // nominal walltime, as recorded via save_assignment, excluding security-time padding
	Resources     procset.ProcSet
	SlotSetName   string
}

// Finish returns the last second occupied by this assignment.
func (a Assignment) Finish() int64 { return a.Start + a.Walltime - 1 }

// Window returns [Start, Finish].
func (a Assignment) Window() (int64, int64) { return a.Start, a.Finish() }
