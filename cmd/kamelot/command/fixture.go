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

package command

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/oar-team/kamelot/internal/hierarchy"
	"github.com/oar-team/kamelot/internal/job"
	"github.com/oar-team/kamelot/internal/platform"
	"github.com/oar-team/kamelot/internal/platform/fixtureplatform"
	"github.com/oar-team/kamelot/internal/procset"
	"github.com/oar-team/kamelot/internal/quota"
)

// fixtureDoc is the on-disk JSON/YAML shape of a bench fixture: plain
// strings and numbers only, so it can round-trip through sigs.k8s.io/yaml
// the way tagged config structs round-trip through it.
type fixtureDoc struct {
	Now       int64             `json:"now"`
	Global    string            `json:"global"`
	Resources []resourceDoc     `json:"resources"`
	Waiting   []jobDoc          `json:"waiting"`
	Scheduled []scheduledDoc    `json:"scheduled"`
	Quotas    quota.Config      `json:"quotas"`
	Config    map[string]string `json:"config"`
}

type resourceDoc struct {
	ID         int32             `json:"id"`
	Attributes map[string]string `json:"attributes"`
}

type levelDoc struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type requestDoc struct {
	Levels    []levelDoc `json:"levels"`
	LeafCount int        `json:"leaf_count"`
	LeafLabel string     `json:"leaf_label"`
}

type moldableDoc struct {
	Index    int        `json:"index"`
	Walltime int64      `json:"walltime"`
	Request  requestDoc `json:"request"`
}

type dependencyDoc struct {
	JobID          string   `json:"job_id"`
	AcceptedStates []string `json:"accepted_states"`
}

type jobDoc struct {
	ID                 string          `json:"id"`
	Owner              string          `json:"owner"`
	Queue              string          `json:"queue"`
	Project            string          `json:"project"`
	SubmitTime         int64           `json:"submit_time"`
	Priority           int             `json:"priority"`
	Types              []string        `json:"types"`
	Moldables          []moldableDoc   `json:"moldables"`
	Deps               []dependencyDoc `json:"deps"`
	AdvanceReservation *int64          `json:"advance_reservation"`
}

type scheduledDoc struct {
	JobID       string   `json:"job_id"`
	Start       int64    `json:"start"`
	Walltime    int64    `json:"walltime"`
	Resources   string   `json:"resources"`
	SlotSetName string   `json:"slotset_name"`
	Types       []string `json:"types"`
}

// loadFixture reads a JSON or YAML fixture file into a
// fixtureplatform.Fixture. sigs.k8s.io/yaml accepts both since JSON is a
// YAML subset.
func loadFixture(path string) (fixtureplatform.Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fixtureplatform.Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var doc fixtureDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fixtureplatform.Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}

	global, err := procset.Parse(doc.Global)
	if err != nil {
		return fixtureplatform.Fixture{}, fmt.Errorf("fixture global procset: %w", err)
	}

	resources := make([]hierarchy.Resource, len(doc.Resources))
	for i, r := range doc.Resources {
		resources[i] = hierarchy.Resource{ID: r.ID, Attributes: r.Attributes}
	}

	waiting := make([]*job.Job, 0, len(doc.Waiting))
	for _, jd := range doc.Waiting {
		id := jd.ID
		if id == "" {
			id = job.NewSyntheticID()
		}
		j := &job.Job{
			ID:                 id,
			Owner:              jd.Owner,
			Queue:              jd.Queue,
			Project:            jd.Project,
			SubmitTime:         jd.SubmitTime,
			Priority:           jd.Priority,
			Types:              job.ParseTypes(jd.Types),
			AdvanceReservation: jd.AdvanceReservation,
			State:              job.StateWaiting,
		}
		for _, dep := range jd.Deps {
			j.Deps = append(j.Deps, job.Dependency{JobID: dep.JobID, AcceptedStates: dep.AcceptedStates})
		}
		for _, m := range jd.Moldables {
			var levels []job.Level
			for _, lv := range m.Request.Levels {
				levels = append(levels, job.Level{Label: lv.Label, Count: lv.Count})
			}
			j.Moldables = append(j.Moldables, job.Moldable{
				Index:    m.Index,
				Walltime: m.Walltime,
				Request: job.Request{
					Levels:    levels,
					LeafCount: m.Request.LeafCount,
					LeafLabel: m.Request.LeafLabel,
				},
			})
		}
		waiting = append(waiting, j)
	}

	scheduled := make([]platform.ScheduledJob, 0, len(doc.Scheduled))
	for _, sd := range doc.Scheduled {
		res, err := procset.Parse(sd.Resources)
		if err != nil {
			return fixtureplatform.Fixture{}, fmt.Errorf("fixture scheduled job %s: %w", sd.JobID, err)
		}
		scheduled = append(scheduled, platform.ScheduledJob{
			JobID:       sd.JobID,
			Start:       sd.Start,
			Walltime:    sd.Walltime,
			Resources:   res,
			SlotSetName: sd.SlotSetName,
			Types:       job.ParseTypes(sd.Types),
		})
	}

	return fixtureplatform.Fixture{
		Now:       doc.Now,
		Global:    global,
		Resources: resources,
		Waiting:   waiting,
		Scheduled: scheduled,
		Quotas:    doc.Quotas,
		Config:    doc.Config,
	}, nil
}
