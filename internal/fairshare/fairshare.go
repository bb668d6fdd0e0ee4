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

// Package fairshare computes the karma value the scheduling loop uses as
// its secondary sort key: jobs from owners who have recently consumed more
// resource-seconds get a higher (worse) karma, so they sort behind owners
// who have consumed less.
package fairshare

import (
	"github.com/oar-team/kamelot/internal/platform"
)

// Coefficients holds the two factors of the karma formula; both multiply
// the owner's resource-seconds consumption.
type Coefficients struct {
	Karma    float64 // overall karma weight
	Consumed float64 // weight applied to recent resource-seconds consumption
}

// Compute returns, for every owner appearing in scheduled, a karma value:
// coef.Karma * coef.Consumed * Σ(|resources| * walltime) over that owner's jobs. Owners
// with no scheduled jobs implicitly have karma 0, matching the disabled
// case's fallback to submission-time ordering.
func Compute(scheduled []platform.ScheduledJob, ownerOf func(jobID string) string, coef Coefficients) map[string]float64 {
	karma := make(map[string]float64)
	for _, sj := range scheduled {
		owner := ownerOf(sj.JobID)
		if owner == "" {
			continue
		}
		consumed := float64(sj.Resources.Count()) * float64(sj.Walltime)
		karma[owner] += coef.Karma * coef.Consumed * consumed
	}
	return karma
}
