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

// Package httpplatform implements platform.Platform against a meta-
// scheduler's REST snapshot endpoint, dispatching to external HTTP
// endpoints via a shared resty.Client.
package httpplatform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	resty "github.com/go-resty/resty/v2"
	timestamppb "github.com/gogo/protobuf/types"
	"go.uber.org/zap"

	"github.com/oar-team/kamelot/internal/hierarchy"
	"github.com/oar-team/kamelot/internal/job"
	"github.com/oar-team/kamelot/internal/platform"
	"github.com/oar-team/kamelot/internal/procset"
	"github.com/oar-team/kamelot/internal/quota"
)

// Platform calls a base URL exposing the snapshot/assignment endpoints this
// adapter expects: GET {base}/snapshot, GET {base}/config?key=..., GET
// {base}/quotas, POST {base}/assignments.
type Platform struct {
	baseURL string
	client  *resty.Client
	logger  *zap.Logger
}

// New builds an httpplatform.Platform, configuring resty's retry the same
// way a resilient REST client should.
func New(baseURL string, logger *zap.Logger) *Platform {
	client := resty.New().
		SetRetryCount(3).
		SetRetryWaitTime(5 * time.Second).
		SetRetryMaxWaitTime(20 * time.Second)
	return &Platform{baseURL: baseURL, client: client, logger: logger.Named("httpplatform")}
}

type snapshotResource struct {
	ID         int32             `json:"id"`
	Attributes map[string]string `json:"attributes"`
}

type snapshotScheduledJob struct {
	JobID       string   `json:"job_id"`
	Owner       string   `json:"owner"`
	Start       int64    `json:"start"`
	Walltime    int64    `json:"walltime"`
	Resources   string   `json:"resources"` // ProcSet interval notation, see procset.Parse
	SlotSetName string   `json:"slotset_name"`
	Types       []string `json:"types"`
}

type snapshotJob struct {
	ID         string   `json:"id"`
	Owner      string   `json:"owner"`
	Queue      string   `json:"queue"`
	Project    string   `json:"project"`
	SubmitTime int64    `json:"submit_time"`
	Priority   int      `json:"priority"`
	Types      []string `json:"types"`
	Moldables  []struct {
		Index    int `json:"index"`
		Walltime int64 `json:"walltime"`
		Request  struct {
			Levels []struct {
				Label string `json:"label"`
				Count int    `json:"count"`
			} `json:"levels"`
			LeafCount int    `json:"leaf_count"`
			LeafLabel string `json:"leaf_label"`
		} `json:"request"`
	} `json:"moldables"`
	Deps []struct {
		JobID          string   `json:"job_id"`
		AcceptedStates []string `json:"accepted_states"`
	} `json:"deps"`
	AdvanceReservation *int64 `json:"advance_reservation"`
}

type snapshotBody struct {
	Now       int64                  `json:"now"`
	NowTS     *timestamppb.Timestamp `json:"now_ts,omitempty"`
	Global    string                 `json:"global"`
	Resources []snapshotResource     `json:"resources"`
	Waiting   []snapshotJob          `json:"waiting"`
	Scheduled []snapshotScheduledJob `json:"scheduled"`
}

// snapshot fetches and decodes the full cluster snapshot. Nothing is cached
// on the Platform value: every read method below issues its own GET, so two
// reads within one cycle can see different snapshots if the server state
// changes in between.
func (p *Platform) snapshot(ctx context.Context) (*snapshotBody, error) {
	resp, err := p.client.R().SetContext(ctx).Get(p.baseURL + "/snapshot")
	if err != nil {
		p.logger.Warn("snapshot request failed", zap.Error(err))
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("httpplatform: snapshot returned status %d", resp.StatusCode())
	}
	var body snapshotBody
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("httpplatform: decode snapshot: %w", err)
	}
	return &body, nil
}

// Now returns the meta-scheduler's clock, preferring the protobuf-style
// timestamp field when the snapshot carries one over the plain unix-seconds
// fallback, round-tripping through gogo/protobuf/types.
func (p *Platform) Now(ctx context.Context) (int64, error) {
	s, err := p.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if s.NowTS != nil {
		now, err := platform.TimestampToUnix(s.NowTS)
		if err != nil {
			return 0, fmt.Errorf("httpplatform: decode now_ts: %w", err)
		}
		return now, nil
	}
	return s.Now, nil
}

func (p *Platform) GlobalProcSet(ctx context.Context) (procset.ProcSet, error) {
	s, err := p.snapshot(ctx)
	if err != nil {
		return procset.ProcSet{}, err
	}
	return procset.Parse(s.Global)
}

func (p *Platform) Hierarchy(ctx context.Context, labels []string) (*hierarchy.Set, error) {
	s, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	resources := make([]hierarchy.Resource, len(s.Resources))
	for i, r := range s.Resources {
		resources[i] = hierarchy.Resource{ID: r.ID, Attributes: r.Attributes}
	}
	return hierarchy.NewSet(labels, resources), nil
}

func (p *Platform) WaitingJobs(ctx context.Context, queues []string) ([]*job.Job, error) {
	s, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[string]bool, len(queues))
	for _, q := range queues {
		active[q] = true
	}
	var out []*job.Job
	for _, sj := range s.Waiting {
		if len(active) > 0 && !active[sj.Queue] {
			continue
		}
		j := &job.Job{
			ID:                 sj.ID,
			Owner:              sj.Owner,
			Queue:              sj.Queue,
			Project:            sj.Project,
			SubmitTime:         sj.SubmitTime,
			Priority:           sj.Priority,
			Types:              job.ParseTypes(sj.Types),
			AdvanceReservation: sj.AdvanceReservation,
			State:              job.StateWaiting,
		}
		for _, dep := range sj.Deps {
			j.Deps = append(j.Deps, job.Dependency{JobID: dep.JobID, AcceptedStates: dep.AcceptedStates})
		}
		for _, m := range sj.Moldables {
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
		out = append(out, j)
	}
	return out, nil
}

func (p *Platform) ScheduledJobs(ctx context.Context) ([]platform.ScheduledJob, error) {
	s, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]platform.ScheduledJob, 0, len(s.Scheduled))
	for _, sj := range s.Scheduled {
		res, err := procset.Parse(sj.Resources)
		if err != nil {
			return nil, fmt.Errorf("httpplatform: scheduled job %s: %w", sj.JobID, err)
		}
		out = append(out, platform.ScheduledJob{
			JobID:       sj.JobID,
			Owner:       sj.Owner,
			Start:       sj.Start,
			Walltime:    sj.Walltime,
			Resources:   res,
			SlotSetName: sj.SlotSetName,
			Types:       job.ParseTypes(sj.Types),
		})
	}
	return out, nil
}

func (p *Platform) QuotasConfig(ctx context.Context) (quota.Config, error) {
	resp, err := p.client.R().SetContext(ctx).Get(p.baseURL + "/quotas")
	if err != nil {
		return quota.Config{}, err
	}
	if resp.StatusCode() == 404 {
		return quota.Config{}, nil
	}
	if resp.StatusCode() != 200 {
		return quota.Config{}, fmt.Errorf("httpplatform: quotas returned status %d", resp.StatusCode())
	}
	var cfg quota.Config
	if err := json.Unmarshal(resp.Body(), &cfg); err != nil {
		return quota.Config{}, fmt.Errorf("httpplatform: decode quotas: %w", err)
	}
	return cfg, nil
}

func (p *Platform) Config(ctx context.Context, key string) (string, error) {
	resp, err := p.client.R().SetContext(ctx).SetQueryParam("key", key).Get(p.baseURL + "/config")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() == 404 {
		return "", nil
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("httpplatform: config returned status %d", resp.StatusCode())
	}
	return string(resp.Body()), nil
}

func (p *Platform) SaveAssignment(ctx context.Context, a job.Assignment) error {
	startTS, err := platform.UnixToTimestamp(a.Start)
	if err != nil {
		return fmt.Errorf("httpplatform: encode start timestamp: %w", err)
	}
	body := map[string]interface{}{
		"job_id":         a.JobID,
		"moldable_index": a.MoldableIndex,
		"start":          a.Start,
		"start_ts":       startTS,
		"walltime":       a.Walltime,
		"resources":      a.Resources.String(),
		"slotset_name":   a.SlotSetName,
	}
	resp, err := p.client.R().SetContext(ctx).SetHeader("Content-Type", "application/json").SetBody(body).Post(p.baseURL + "/assignments")
	if err != nil {
		p.logger.Warn("save assignment failed", zap.String("job_id", a.JobID), zap.Error(err))
		return err
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("httpplatform: save assignment returned status %d", resp.StatusCode())
	}
	return nil
}
