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
	"github.com/oar-team/kamelot/internal/procset"
	"github.com/oar-team/kamelot/internal/slot"
)

// BesteffortPeer is an already-committed besteffort job the eviction pass
// may undo to free resources for a higher-priority job.
type BesteffortPeer struct {
	JobID        string
	Start        int64
	PaddedEnd    int64
	Resources    procset.ProcSet
	Contribution slot.Counters
	KeyAt        slot.QuotaKeyFunc
}

// EvictBesteffort restores every peer's resources into ss, in the order
// given. It is invoked from the scheduling loop after Assign has failed for
// a job and before the loop retries that same job once, never from inside
// Assign itself: only the loop knows which besteffort jobs it is willing to
// sacrifice this cycle.
func EvictBesteffort(ss *slot.SlotSet, peers []BesteffortPeer) ([]string, error) {
	evicted := make([]string, 0, len(peers))
	for _, p := range peers {
		if err := ss.RestoreJob(p.Start, p.PaddedEnd, p.Resources, p.Contribution, p.KeyAt, ""); err != nil {
			return evicted, err
		}
		evicted = append(evicted, p.JobID)
	}
	return evicted, nil
}
