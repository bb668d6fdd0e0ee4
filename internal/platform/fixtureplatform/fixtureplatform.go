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

// Package fixtureplatform is an in-memory platform.Platform used by tests
// and the "kamelot run" CLI when pointed at a local fixture file instead of
// a live cluster.
package fixtureplatform

import (
	"context"
	"sync"

	"github.com/oar-team/kamelot/internal/hierarchy"
	"github.com/oar-team/kamelot/internal/job"
	"github.com/oar-team/kamelot/internal/platform"
	"github.com/oar-team/kamelot/internal/procset"
	"github.com/oar-team/kamelot/internal/quota"
)

// Fixture is the plain data a Platform snapshot needs; it is what a test or
// a "kamelot run --fixture" JSON/YAML file supplies.
type Fixture struct {
	Now       int64
	Global    procset.ProcSet
	Resources []hierarchy.Resource
	Waiting   []*job.Job
	Scheduled []platform.ScheduledJob
	Quotas    quota.Config
	Config    map[string]string
}

// Platform implements platform.Platform over a Fixture held entirely in
// memory. Assignments saved during a cycle accumulate in Saved rather than
// being written anywhere external.
type Platform struct {
	mu    sync.Mutex
	fix   Fixture
	Saved []job.Assignment
}

// New wraps fixture in a Platform.
func New(fixture Fixture) *Platform {
	return &Platform{fix: fixture}
}

func (p *Platform) Now(context.Context) (int64, error) { return p.fix.Now, nil }

func (p *Platform) GlobalProcSet(context.Context) (procset.ProcSet, error) { return p.fix.Global, nil }

func (p *Platform) Hierarchy(_ context.Context, labels []string) (*hierarchy.Set, error) {
	return hierarchy.NewSet(labels, p.fix.Resources), nil
}

func (p *Platform) WaitingJobs(_ context.Context, queues []string) ([]*job.Job, error) {
	if len(queues) == 0 {
		return p.fix.Waiting, nil
	}
	active := make(map[string]bool, len(queues))
	for _, q := range queues {
		active[q] = true
	}
	var out []*job.Job
	for _, j := range p.fix.Waiting {
		if active[j.Queue] {
			out = append(out, j)
		}
	}
	return out, nil
}

func (p *Platform) ScheduledJobs(context.Context) ([]platform.ScheduledJob, error) {
	return p.fix.Scheduled, nil
}

func (p *Platform) QuotasConfig(context.Context) (quota.Config, error) { return p.fix.Quotas, nil }

func (p *Platform) Config(_ context.Context, key string) (string, error) {
	return p.fix.Config[key], nil
}

func (p *Platform) SaveAssignment(_ context.Context, a job.Assignment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Saved = append(p.Saved, a)
	return nil
}
