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

package quota

import (
	"sort"

	"go.uber.org/zap"

	"github.com/oar-team/kamelot/internal/slot"
)

// Engine evaluates admission against a parsed Config.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	// warnedTies remembers rule-key groups we already warned about this
	// cycle, so a tie is logged once, not once per admission check.
	warnedTies map[string]bool
}

// NewEngine builds a quota Engine bound to logger, named per component.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger.Named("quota"), warnedTies: make(map[string]bool)}
}

// Enabled reports whether quotas are active for this cycle (config key
// QUOTAS).
func (e *Engine) Enabled() bool { return e.cfg.Enabled }

// SelectRule returns the most specific rule matching (queue, project, user,
// jobType) that is active at t, or nil if none applies. Ties in
// specificity are resolved lexicographically on the rule key and logged
// once.
func (e *Engine) SelectRule(queue, project, user, jobType string, t int64) *Rule {
	var candidates []Rule
	for _, r := range e.cfg.Rules {
		if r.Matches(queue, project, user, jobType) && r.ActiveAt(t) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Specificity() != candidates[j].Specificity() {
			return candidates[i].Specificity() > candidates[j].Specificity()
		}
		return candidates[i].Key() < candidates[j].Key()
	})
	if len(candidates) > 1 && candidates[0].Specificity() == candidates[1].Specificity() {
		tieKey := candidates[0].Key() + "/" + candidates[1].Key()
		if !e.warnedTies[tieKey] {
			e.warnedTies[tieKey] = true
			e.logger.Warn("quota rule specificity tie resolved lexicographically",
				zap.String("chosen", candidates[0].Key()),
				zap.String("runner_up", candidates[1].Key()))
		}
	}
	rule := candidates[0]
	return &rule
}

// Decision is the outcome of an admission pre-check.
type Decision struct {
	OK      bool
	NextTry int64 // valid only when !OK: the earliest time admission might succeed
}

// CheckAdmission applies the applicable rule to every existing slot
// overlapping [a,b] in ss, testing whether contribution can be added
// without exceeding the rule's caps. ss must be the "default" SlotSet;
// quotas do not apply elsewhere.
func (e *Engine) CheckAdmission(ss *slot.SlotSet, queue, project, user, jobType string, a, b int64, contribution slot.Counters) Decision {
	if !e.cfg.Enabled {
		return Decision{OK: true}
	}
	for _, v := range ss.Window(a, b) {
		// The first slot may start before a; resolve the rule at the part
		// of the slot the job actually covers.
		at := v.Start
		if at < a {
			at = a
		}
		rule := e.SelectRule(queue, project, user, jobType, at)
		if rule == nil {
			continue
		}
		cur := ss.QuotaCounters(v.Handle, rule.Key())
		if exceeds(rule.Cap.NbResources, cur.NbResources, contribution.NbResources) {
			return e.reject(*rule, at)
		}
		if exceeds(rule.Cap.NbJobs, cur.NbJobs, contribution.NbJobs) {
			return e.reject(*rule, at)
		}
		if exceedsI64(rule.Cap.ResourcesTime, cur.ResourcesTime, contribution.ResourcesTime) {
			return e.reject(*rule, at)
		}
	}
	return Decision{OK: true}
}

func (e *Engine) reject(rule Rule, at int64) Decision {
	if end, ok := rule.ActiveInstanceEnd(at); ok {
		return Decision{OK: false, NextTry: end + 1}
	}
	// Static rule: no instance end to jump to, so NextTry is the rejected
	// time itself and the caller moves its candidate start forward on its own.
	return Decision{OK: false, NextTry: at}
}

func exceeds(cap *int64, cur, delta int) bool {
	if cap == nil {
		return false
	}
	return int64(cur+delta) > *cap
}

func exceedsI64(cap *int64, cur, delta int64) bool {
	if cap == nil {
		return false
	}
	return cur+delta > *cap
}

// RuleKeyFor returns the counters map key CheckAdmission and the caller's
// subsequent slot.SlotSet.CommitJob call must agree on for a given job's
// attributes and the time its window starts at.
func (e *Engine) RuleKeyFor(queue, project, user, jobType string, at int64) (string, bool) {
	rule := e.SelectRule(queue, project, user, jobType, at)
	if rule == nil {
		return "", false
	}
	return rule.Key(), true
}

// KeyAt returns a slot.QuotaKeyFunc bound to a job's attributes, resolving
// the applicable rule independently for each slot CommitJob/RestoreJob
// touches. This is what lets a job whose window straddles a periodical rule
// boundary book its contribution against the correct rule on each side of
// the boundary instead of a single rule chosen once for the whole window.
func (e *Engine) KeyAt(queue, project, user, jobType string) slot.QuotaKeyFunc {
	if !e.cfg.Enabled {
		return nil
	}
	return func(at int64) (string, bool) {
		return e.RuleKeyFor(queue, project, user, jobType, at)
	}
}
