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

// Package assign implements the job assigner: for one job against one
// SlotSet, iterate moldables, scan candidate windows, apply the evaluator
// and every admission filter (property, time-sharing, placeholder,
// dependency, quota), and commit the best candidate found.
package assign

import (
	"go.uber.org/zap"

	"github.com/oar-team/kamelot/internal/evaluate"
	"github.com/oar-team/kamelot/internal/hierarchy"
	"github.com/oar-team/kamelot/internal/hook"
	"github.com/oar-team/kamelot/internal/job"
	"github.com/oar-team/kamelot/internal/kerrors"
	"github.com/oar-team/kamelot/internal/procset"
	"github.com/oar-team/kamelot/internal/quota"
	"github.com/oar-team/kamelot/internal/registry"
	"github.com/oar-team/kamelot/internal/slot"
)

// Context bundles the per-cycle state that Assign needs but does not own:
// resolving dependencies and peer resource sets is the caller's job (it has
// visibility across every job in the cycle), Assign only consumes the
// results.
type Context struct {
	// DependencyLookup resolves a job id this job depends on. known is
	// false when the dependency hasn't been observed at all this cycle
	// (Platform never returned it): that is a hard soft-fail. When known,
	// state is checked against the accepted-states list and, if the
	// dependency has a settled finish time, the candidate origin is
	// bumped past it.
	DependencyLookup func(jobID string) (finish int64, state job.State, known bool)

	// TimesharingPeers returns the union of resources held by jobs sharing
	// ts's equivalence class and overlapping [a,b]. Callers must exclude
	// besteffort peers (besteffort jobs are never counted
	// as time-sharing/placeholder peers).
	TimesharingPeers func(ts *job.Timesharing, a, b int64) procset.ProcSet
}

// Assigner runs the assignment algorithm against one SlotSet at a time. It is stateless besides
// its logger and config; every mutable per-cycle input flows through
// Context and the SlotSet argument.
type Assigner struct {
	Strategy        evaluate.Strategy
	Hierarchy       *hierarchy.Set
	Quota           *quota.Engine
	Hooks           hook.Set
	JobSecurityTime int64
	Horizon         int64
	logger          *zap.Logger
}

// New builds an Assigner, naming its logger per component.
func New(strategy evaluate.Strategy, hset *hierarchy.Set, qe *quota.Engine, hooks hook.Set, jobSecurityTime, horizon int64, logger *zap.Logger) *Assigner {
	return &Assigner{
		Strategy:        strategy,
		Hierarchy:       hset,
		Quota:           qe,
		Hooks:           hooks,
		JobSecurityTime: jobSecurityTime,
		Horizon:         horizon,
		logger:          logger.Named("assign"),
	}
}

// candidate is one moldable's best (start, resources) pair, kept internal
// until Assign picks a winner across all moldables.
type candidate struct {
	moldableIndex int
	start         int64
	paddedEnd     int64 // start + walltime + security time - 1, the window actually reserved
	finish        int64 // start + nominal walltime - 1, what gets recorded
	walltime      int64 // nominal, as recorded on the assignment
	resources     procset.ProcSet
	tsShared      procset.ProcSet // resources a matching time-sharing peer already holds over [start,paddedEnd]
}

func firstID(p procset.ProcSet) int32 {
	ivs := p.Intervals()
	if len(ivs) == 0 {
		return -1
	}
	return ivs[0].Low
}

// better reports whether b should replace a as the winning candidate:
// smallest finish, then smallest moldable index, then smallest first id.
func better(a, b candidate) bool {
	if a.finish != b.finish {
		return b.finish < a.finish
	}
	if a.moldableIndex != b.moldableIndex {
		return b.moldableIndex < a.moldableIndex
	}
	return firstID(b.resources) < firstID(a.resources)
}

// jobTypeTag returns the string quota rules match a job's "job_type" field
// against.
func jobTypeTag(j *job.Job) string {
	if j.Types.Besteffort {
		return "besteffort"
	}
	return "default"
}

// Assign computes and commits the best assignment for j against ss, or
// returns a soft *kerrors.SchedulingError describing why none could be
// found within the horizon.
func (a *Assigner) Assign(ss *slot.SlotSet, j *job.Job, ctx Context) (job.Assignment, error) {
	if j.Types.Placeholder != "" && j.Types.Timesharing != nil {
		return job.Assignment{}, kerrors.NewIncompatibleJobTypes(j.ID, "placeholder and timesharing cannot be combined")
	}
	if j.Types.Allow != "" && j.Types.Timesharing != nil {
		return job.Assignment{}, kerrors.NewIncompatibleJobTypes(j.ID, "allow and timesharing cannot be combined")
	}

	if a.Hooks.Assigner != nil {
		if want, ok := a.Hooks.Assigner.Assign(ss.Name, j); ok {
			if err := a.commit(ss, j, want.Start, want.Start+want.Walltime-1, want.Start+want.Walltime+a.JobSecurityTime-1, want.Resources, procset.ProcSet{}); err != nil {
				return job.Assignment{}, err
			}
			return want, nil
		}
	}

	origin := ss.View(ss.First()).Start
	if j.AdvanceReservation != nil {
		origin = *j.AdvanceReservation
	}

	var best candidate
	haveBest := false
	var lastErr error
	for _, m := range j.Moldables {
		c, err := a.tryMoldable(ss, j, m, origin, ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if !haveBest || better(best, c) {
			best = c
			haveBest = true
		}
	}
	if !haveBest {
		if lastErr == nil {
			lastErr = kerrors.NewUnsatisfiable(j.ID, "no moldable could be satisfied")
		}
		return job.Assignment{}, lastErr
	}

	if err := a.commit(ss, j, best.start, best.finish, best.paddedEnd, best.resources, best.tsShared); err != nil {
		return job.Assignment{}, err
	}

	return job.Assignment{
		JobID:         j.ID,
		MoldableIndex: best.moldableIndex,
		Start:         best.start,
		Walltime:      best.walltime,
		Resources:     best.resources,
		SlotSetName:   ss.Name,
	}, nil
}

func (a *Assigner) commit(ss *slot.SlotSet, j *job.Job, start, finish, paddedEnd int64, resources, tsShared procset.ProcSet) error {
	contribution, keyAt := a.QuotaContribution(ss, j, start, finish, resources)
	return ss.CommitJob(start, paddedEnd, resources, contribution, keyAt, j.Types.Placeholder, tsShared)
}

// QuotaContribution computes the quota counters and per-slot rule-key
// resolver a successful assignment of j to [start,finish] with resources
// books against ss, or the zero value when quotas do not apply to this job.
// Callers that later need to reverse a commit outside of RestoreJob's normal
// pairing (besteffort eviction bookkeeping kept across a scheduling cycle)
// use this to recompute the same numbers rather than duplicate the logic.
func (a *Assigner) QuotaContribution(ss *slot.SlotSet, j *job.Job, start, finish int64, resources procset.ProcSet) (slot.Counters, slot.QuotaKeyFunc) {
	if !a.quotaApplies(ss, j) {
		return slot.Counters{}, nil
	}
	totalCount := resources.Count()
	contribution := slot.Counters{
		NbResources:   totalCount,
		NbJobs:        1,
		ResourcesTime: int64(totalCount) * (finish - start + 1),
	}
	var keyAt slot.QuotaKeyFunc
	if !j.Types.Container {
		keyAt = a.Quota.KeyAt(j.Queue, j.Project, j.Owner, jobTypeTag(j))
	}
	return contribution, keyAt
}

func (a *Assigner) quotaApplies(ss *slot.SlotSet, j *job.Job) bool {
	return a.Quota != nil && a.Quota.Enabled() && ss.Name == registry.DefaultName && !j.IsInner()
}

// tryMoldable scans candidate start times from origin forward until it
// finds one this moldable can use, or the horizon is exceeded.
func (a *Assigner) tryMoldable(ss *slot.SlotSet, j *job.Job, m job.Moldable, origin int64, ctx Context) (candidate, error) {
	t := origin
	effectiveWalltime := m.Walltime + a.JobSecurityTime
	quotaRejectedLast := false

	for {
		if t > a.Horizon {
			if quotaRejectedLast {
				return candidate{}, kerrors.NewQuotaRejected(j.ID)
			}
			return candidate{}, kerrors.NewNoSlotInHorizon(j.ID)
		}

		paddedEnd := t + effectiveWalltime - 1
		views := ss.Window(t, paddedEnd)
		if len(views) == 0 {
			quotaRejectedLast = false
			t++
			continue
		}

		A, ok := ss.Intersection(t, paddedEnd)

		// A time-sharing job may still land here even when raw availability
		// is fully exhausted, as long as what remains unavailable is held by
		// a matching peer: Intersection has no notion of sharing classes, so
		// the widening has to happen before the empty-intersection bailout
		// rather than after it.
		var tsShared procset.ProcSet
		if j.Types.Timesharing != nil && !j.Types.Besteffort && ctx.TimesharingPeers != nil {
			tsShared = ctx.TimesharingPeers(j.Types.Timesharing, t, paddedEnd)
			if !tsShared.Empty() {
				A = procset.Union(A, tsShared)
				ok = !A.Empty()
			}
		}
		if !ok {
			quotaRejectedLast = false
			t = views[0].End + 1
			continue
		}

		if j.Types.Allow != "" {
			A = procset.Union(A, placeholderUnion(ss, views, j.Types.Allow))
		}

		bumped, depErr := a.checkDependencies(j, t, ctx)
		if depErr != nil {
			return candidate{}, depErr
		}
		if bumped > t {
			quotaRejectedLast = false
			t = bumped
			continue
		}

		if a.quotaApplies(ss, j) {
			totalCount := m.Request.TotalCount()
			contribution := slot.Counters{
				NbResources:   totalCount,
				NbJobs:        1,
				ResourcesTime: int64(totalCount) * effectiveWalltime,
			}
			dec := a.Quota.CheckAdmission(ss, j.Queue, j.Project, j.Owner, jobTypeTag(j), t, paddedEnd, contribution)
			if !dec.OK {
				quotaRejectedLast = true
				if dec.NextTry <= t {
					t++
				} else {
					t = dec.NextTry
				}
				continue
			}
		}
		quotaRejectedLast = false

		var S procset.ProcSet
		found := false
		if a.Hooks.Finder != nil {
			S, found = a.Hooks.Finder.Find(A, m.Request, j.PropertyFilter)
		}
		if !found {
			S, found = evaluate.Find(a.Strategy, A, m.Request, a.Hierarchy, evaluate.PropertyFilter(j.PropertyFilter))
		}
		if !found {
			t = views[0].End + 1
			continue
		}

		return candidate{
			moldableIndex: m.Index,
			start:         t,
			paddedEnd:     paddedEnd,
			finish:        t + m.Walltime - 1,
			walltime:      m.Walltime,
			resources:     S,
			tsShared:      tsShared,
		}, nil
	}
}

// checkDependencies reports the earliest time t may advance to given j's
// dependencies, or a soft error if any dependency has not been observed at
// all this cycle.
func (a *Assigner) checkDependencies(j *job.Job, t int64, ctx Context) (int64, error) {
	if len(j.Deps) == 0 || ctx.DependencyLookup == nil {
		return t, nil
	}
	bumped := t
	for _, dep := range j.Deps {
		finish, state, known := ctx.DependencyLookup(dep.JobID)
		if !known {
			return 0, kerrors.NewDependencyUnresolved(j.ID, dep.JobID)
		}
		if !acceptedState(state, dep.AcceptedStates) {
			return 0, kerrors.NewDependencyUnresolved(j.ID, dep.JobID)
		}
		if finish+1 > bumped {
			bumped = finish + 1
		}
	}
	return bumped, nil
}

func acceptedState(state job.State, accepted []string) bool {
	for _, s := range accepted {
		if job.State(s) == state {
			return true
		}
	}
	return false
}

// placeholderUnion returns the union, over every slot the window touches,
// of the resources reserved under allowName.
func placeholderUnion(ss *slot.SlotSet, views []slot.View, allowName string) procset.ProcSet {
	var acc procset.ProcSet
	for _, v := range views {
		acc = procset.Union(acc, ss.PlaceholderReserved(v.Handle, allowName))
	}
	return acc
}
