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

// Package quota implements the quota engine: static, periodical and
// one-shot temporal caps on per-slot resource/job/resources-time counters.
package quota

import (
	"fmt"
	"strings"
)

const wildcard = "*"

// Interval is a closed [Low,High] second-since-epoch range, matching the
// internal representation used everywhere else in the core (external
// half-open windows are converted to closed ones once, at parsing time).
type Interval struct {
	Low  int64 `json:"low"`
	High int64 `json:"high"`
}

// Kind distinguishes when a rule is active.
type Kind string

const (
	KindStatic     Kind = "static"
	KindPeriodical Kind = "periodical"
	KindOneShot    Kind = "one_shot"
)

// Cap is an optional cap on one counter; nil means unbounded.
type Cap struct {
	NbResources   *int64 `json:"nb_resources"`
	NbJobs        *int64 `json:"nb_jobs"`
	ResourcesTime *int64 `json:"resources_time"`
}

// Rule is a single quota rule: a predicate over (queue, project, user, job
// type) plus caps, optionally active only during specific closed time
// intervals.
type Rule struct {
	Queue   string `json:"queue"`
	Project string `json:"project"`
	User    string `json:"user"`
	JobType string `json:"job_type"`

	Kind Kind `json:"kind"`
	Cap  Cap  `json:"cap"`

	// Instances holds the concrete closed intervals during which the rule
	// is active, for Kind == Periodical or OneShot. Ignored for Static.
	Instances []Interval `json:"instances,omitempty"`
}

// Key is the deterministic identity used both as the per-slot counters map
// key and as the tie-break key when two rules are equally specific
// (lexicographic on rule key).
func (r Rule) Key() string {
	return strings.Join([]string{r.Queue, r.Project, r.User, r.JobType}, "|")
}

// Specificity is the count of non-wildcard fields; the most specific
// matching rule wins.
func (r Rule) Specificity() int {
	n := 0
	for _, f := range []string{r.Queue, r.Project, r.User, r.JobType} {
		if f != wildcard && f != "" {
			n++
		}
	}
	return n
}

// Matches reports whether the rule's predicate accepts a job with the given
// attributes.
func (r Rule) Matches(queue, project, user, jobType string) bool {
	return matchOne(r.Queue, queue) && matchOne(r.Project, project) &&
		matchOne(r.User, user) && matchOne(r.JobType, jobType)
}

func matchOne(pattern, value string) bool {
	return pattern == "" || pattern == wildcard || pattern == value
}

// ActiveAt reports whether the rule applies at time t.
func (r Rule) ActiveAt(t int64) bool {
	if r.Kind == KindStatic {
		return true
	}
	for _, iv := range r.Instances {
		if t >= iv.Low && t <= iv.High {
			return true
		}
	}
	return false
}

// ActiveInstanceEnd returns the High bound of the instance covering t, used
// to compute how far to jump forward past a rejection.
func (r Rule) ActiveInstanceEnd(t int64) (int64, bool) {
	for _, iv := range r.Instances {
		if t >= iv.Low && t <= iv.High {
			return iv.High, true
		}
	}
	return 0, false
}

// Config is the full parsed quota configuration.
type Config struct {
	Enabled bool   `json:"enabled"`
	Rules   []Rule `json:"rules"`
}

func (c Cap) headroom(kind string) *int64 {
	switch kind {
	case "nb_resources":
		return c.NbResources
	case "nb_jobs":
		return c.NbJobs
	case "resources_time":
		return c.ResourcesTime
	default:
		panic(fmt.Sprintf("quota: unknown counter kind %q", kind))
	}
}
