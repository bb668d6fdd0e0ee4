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

// Package kamelot implements the scheduling loop: fetch waiting jobs, sort
// them, hand each to the assigner in turn, and mutate the registry on
// success.
package kamelot

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/oar-team/kamelot/internal/assign"
	"github.com/oar-team/kamelot/internal/config"
	"github.com/oar-team/kamelot/internal/evaluate"
	"github.com/oar-team/kamelot/internal/fairshare"
	"github.com/oar-team/kamelot/internal/hook"
	"github.com/oar-team/kamelot/internal/job"
	"github.com/oar-team/kamelot/internal/kerrors"
	"github.com/oar-team/kamelot/internal/platform"
	"github.com/oar-team/kamelot/internal/procset"
	"github.com/oar-team/kamelot/internal/quota"
	"github.com/oar-team/kamelot/internal/registry"
	"github.com/oar-team/kamelot/internal/slot"
)

// Result summarizes one scheduling cycle.
type Result struct {
	Assigned     []job.Assignment
	Failed       map[string]*kerrors.SchedulingError
	EvictedCount int
	TotalSlots   int
}

// Loop runs one scheduling cycle against a Platform snapshot.
type Loop struct {
	Strategy evaluate.Strategy
	Hooks    hook.Set
	logger   *zap.Logger
}

// New builds a Loop, naming its logger per component the way the rest of
// the core does.
func New(strategy evaluate.Strategy, hooks hook.Set, logger *zap.Logger) *Loop {
	return &Loop{Strategy: strategy, Hooks: hooks, logger: logger.Named("kamelot")}
}

// Run executes one full cycle: build the registry from the platform
// snapshot, sort waiting jobs, assign them one by one, and persist every
// successful assignment.
func (l *Loop) Run(ctx context.Context, p platform.Platform) (Result, error) {
	now, err := p.Now(ctx)
	if err != nil {
		return Result{}, err
	}
	global, err := p.GlobalProcSet(ctx)
	if err != nil {
		return Result{}, err
	}

	sc, err := config.Load(func(key string) (string, bool) {
		v, cerr := p.Config(ctx, key)
		return v, cerr == nil && v != ""
	})
	if err != nil {
		return Result{}, err
	}

	hset, err := p.Hierarchy(ctx, sc.HierarchyLabels)
	if err != nil {
		return Result{}, err
	}

	qcfg, err := p.QuotasConfig(ctx)
	if err != nil {
		return Result{}, err
	}
	qcfg.Enabled = qcfg.Enabled && sc.QuotasEnabled
	qe := quota.NewEngine(qcfg, l.logger)

	reg := registry.New(now, global)
	scheduled, err := p.ScheduledJobs(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := seedScheduled(reg, scheduled); err != nil {
		l.logger.Warn("skipped malformed scheduled jobs while seeding", zap.Error(err))
	}

	waiting, err := p.WaitingJobs(ctx, sc.ActiveQueues)
	if err != nil {
		return Result{}, err
	}

	waiting = l.sortJobs(waiting, scheduled, sc)

	horizon := now + int64(sc.QuotasWindowTimeLimit.Seconds())
	if horizon <= now {
		horizon = now + int64((7 * 24 * 3600))
	}
	strategy := l.Strategy
	switch sc.Strategy {
	case string(evaluate.Basic):
		strategy = evaluate.Basic
	case string(evaluate.Tree):
		strategy = evaluate.Tree
	}
	asn := assign.New(strategy, hset, qe, l.Hooks, sc.JobSecurityTime, horizon, l.logger)

	res := Result{Failed: make(map[string]*kerrors.SchedulingError)}
	byID := make(map[string]*job.Job, len(waiting))
	for _, j := range waiting {
		byID[j.ID] = j
	}
	besteffort := make(map[string]assign.BesteffortPeer)
	assignedFinish := make(map[string]int64)
	assignedState := make(map[string]job.State)
	var timesharingThisCycle []timesharingRecord

	depLookup := func(jobID string) (int64, job.State, bool) {
		if finish, ok := assignedFinish[jobID]; ok {
			return finish, assignedState[jobID], true
		}
		for _, sj := range scheduled {
			if sj.JobID == jobID {
				return sj.Start + sj.Walltime - 1, job.StateScheduled, true
			}
		}
		return 0, "", false
	}
	tsPeers := func(ts *job.Timesharing, a, b int64) procset.ProcSet {
		var acc procset.ProcSet
		for _, sj := range scheduled {
			if sj.Types.Besteffort || sj.Types.Timesharing == nil {
				continue
			}
			if !sj.Types.Timesharing.Matches(ts) {
				continue
			}
			if overlaps(sj.Start, sj.Start+sj.Walltime-1, a, b) {
				acc = procset.Union(acc, sj.Resources)
			}
		}
		for _, tr := range timesharingThisCycle {
			if !tr.timesharing.Matches(ts) {
				continue
			}
			if overlaps(tr.start, tr.finish, a, b) {
				acc = procset.Union(acc, tr.resources)
			}
		}
		return acc
	}
	assignCtx := assign.Context{DependencyLookup: depLookup, TimesharingPeers: tsPeers}

	for _, j := range waiting {
		ss := reg.Get(j.TargetSlotSet())
		if ss == nil {
			res.Failed[j.ID] = kerrors.NewUnsatisfiable(j.ID, "target slotset does not exist")
			continue
		}

		a, err := asn.Assign(ss, j, assignCtx)
		if err != nil {
			if se, ok := kerrors.AsScheduling(err); ok && !se.Soft() {
				return res, err
			}
			if sc.BesteffortEviction && len(besteffort) > 0 {
				if _, evErr := assign.EvictBesteffort(ss, peerList(besteffort)); evErr == nil {
					besteffort = make(map[string]assign.BesteffortPeer)
					a, err = asn.Assign(ss, j, assignCtx)
				}
			}
		}
		if err != nil {
			if se, ok := kerrors.AsScheduling(err); ok {
				res.Failed[j.ID] = se
				l.logger.Warn("job not scheduled", zap.String("job_id", j.ID), zap.String("reason", string(se.Code)))
			}
			continue
		}

		if err := p.SaveAssignment(ctx, a); err != nil {
			return res, err
		}
		res.Assigned = append(res.Assigned, a)
		assignedFinish[j.ID] = a.Finish()
		assignedState[j.ID] = job.StateScheduled
		if !j.Types.Besteffort && j.Types.Timesharing != nil {
			timesharingThisCycle = append(timesharingThisCycle, timesharingRecord{
				timesharing: j.Types.Timesharing,
				start:       a.Start,
				finish:      a.Finish(),
				resources:   a.Resources,
			})
		}

		if j.Types.Besteffort {
			contribution, keyAt := asn.QuotaContribution(ss, j, a.Start, a.Finish(), a.Resources)
			besteffort[j.ID] = assign.BesteffortPeer{
				JobID:        j.ID,
				Start:        a.Start,
				PaddedEnd:    a.Start + a.Walltime + sc.JobSecurityTime - 1,
				Resources:    a.Resources,
				Contribution: contribution,
				KeyAt:        keyAt,
			}
		}
		if j.Types.Container {
			if _, err := reg.OpenContainer(j.ID, a.Start, a.Finish(), a.Resources); err != nil {
				return res, err
			}
		}
	}

	res.TotalSlots = reg.TotalSlots()
	return res, nil
}

// timesharingRecord is a this-cycle assignment tsPeers must consider a peer
// alongside jobs already in the scheduled snapshot: two waiting jobs in the
// same equivalence class submitted together must still see each other's
// resources even though neither was scheduled before this cycle started.
type timesharingRecord struct {
	timesharing *job.Timesharing
	start       int64
	finish      int64
	resources   procset.ProcSet
}

func peerList(m map[string]assign.BesteffortPeer) []assign.BesteffortPeer {
	out := make([]assign.BesteffortPeer, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}

func overlaps(aStart, aEnd, bStart, bEnd int64) bool {
	return aStart <= bEnd && bStart <= aEnd
}

// seedScheduled books every already-scheduled job into its target SlotSet.
// A malformed snapshot entry does not abort the cycle: it is skipped and
// its error collected, so one bad record from the platform does not take
// down scheduling for every other already-running job. Time-sharing peers
// scheduled together in an earlier cycle must still be able to replay onto
// the same ids here, so each is committed against the union already seeded
// for its equivalence class.
func seedScheduled(reg *registry.Registry, scheduled []platform.ScheduledJob) error {
	ss := reg.Default()
	var errs []error
	var seededTS []timesharingRecord
	for _, sj := range scheduled {
		target := ss
		if sj.SlotSetName != "" && sj.SlotSetName != registry.DefaultName {
			target = reg.Get(sj.SlotSetName)
			if target == nil {
				continue
			}
		}
		finish := sj.Start + sj.Walltime - 1
		var shared procset.ProcSet
		if !sj.Types.Besteffort && sj.Types.Timesharing != nil {
			for _, tr := range seededTS {
				if tr.timesharing.Matches(sj.Types.Timesharing) && overlaps(tr.start, tr.finish, sj.Start, finish) {
					shared = procset.Union(shared, tr.resources)
				}
			}
		}
		if err := target.CommitJob(sj.Start, finish, sj.Resources, slot.Counters{}, nil, "", shared); err != nil {
			errs = append(errs, fmt.Errorf("seed scheduled job %s: %w", sj.JobID, err))
			continue
		}
		if !sj.Types.Besteffort && sj.Types.Timesharing != nil {
			seededTS = append(seededTS, timesharingRecord{
				timesharing: sj.Types.Timesharing,
				start:       sj.Start,
				finish:      finish,
				resources:   sj.Resources,
			})
		}
	}
	return combineErrors(errs)
}

// sortJobs applies the sort hook if registered, otherwise the default
// order: priority desc, karma asc, submission time asc, id asc.
func (l *Loop) sortJobs(waiting []*job.Job, scheduled []platform.ScheduledJob, sc config.Scheduler) []*job.Job {
	if l.Hooks.Sorter != nil {
		if sorted, ok := l.Hooks.Sorter.Sort(waiting); ok {
			return sorted
		}
	}

	karma := make(map[string]float64)
	if sc.FairsharingEnabled {
		karma = fairshare.Compute(scheduled, func(jobID string) string {
			for _, sj := range scheduled {
				if sj.JobID == jobID {
					return sj.Owner
				}
			}
			return ""
		}, fairshare.Coefficients{Karma: sc.FairsharingCoefKarma, Consumed: sc.FairsharingCoefConsumed})
	}

	sorted := make([]*job.Job, len(waiting))
	copy(sorted, waiting)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if ka, kb := karma[a.Owner], karma[b.Owner]; ka != kb {
			return ka < kb
		}
		if a.SubmitTime != b.SubmitTime {
			return a.SubmitTime < b.SubmitTime
		}
		return a.ID < b.ID
	})
	return sorted
}

// combineErrors aggregates zero or more errors into one reportable error
// using hashicorp/go-multierror, or nil if errs is empty.
func combineErrors(errs []error) error {
	var merr *multierror.Error
	for _, e := range errs {
		merr = multierror.Append(merr, e)
	}
	return merr.ErrorOrNil()
}
