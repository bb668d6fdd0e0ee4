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

// Package platform defines the capability contract the scheduling core
// consumes to read cluster state and persist decisions. The core never
// talks to a database or an external service directly; every I/O boundary
// crosses through a Platform implementation.
package platform

import (
	"context"

	"github.com/oar-team/kamelot/internal/hierarchy"
	"github.com/oar-team/kamelot/internal/job"
	"github.com/oar-team/kamelot/internal/procset"
	"github.com/oar-team/kamelot/internal/quota"
)

// ScheduledJob is an already-placed job, used to seed the initial SlotSet
// before a cycle runs.
type ScheduledJob struct {
	JobID       string
	Owner       string
	Start       int64
	Walltime    int64
	Resources   procset.ProcSet
	SlotSetName string
	Types       job.Types
}

// Platform is the read/write surface the scheduling loop needs each cycle.
// Every method is synchronous: the core assumes the returned data is
// already fully materialized, matching the "single-threaded and
// synchronous" model.
type Platform interface {
	Now(ctx context.Context) (int64, error)
	GlobalProcSet(ctx context.Context) (procset.ProcSet, error)
	Hierarchy(ctx context.Context, labels []string) (*hierarchy.Set, error)
	WaitingJobs(ctx context.Context, queues []string) ([]*job.Job, error)
	ScheduledJobs(ctx context.Context) ([]ScheduledJob, error)
	QuotasConfig(ctx context.Context) (quota.Config, error)
	Config(ctx context.Context, key string) (string, error)
	SaveAssignment(ctx context.Context, a job.Assignment) error
}
