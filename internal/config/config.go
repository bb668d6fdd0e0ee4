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

// Package config holds the typed scheduler configuration and the YAML
// quota-rule file format, both parsed with sigs.k8s.io/yaml into
// YAML-tagged structs.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/oar-team/kamelot/internal/quota"
)

// Key names accepted by Platform.Config.
const (
	KeyHierarchyLabels           = "HIERARCHY_LABELS"
	KeyQuotas                    = "QUOTAS"
	KeyQuotasWindowTimeLimit     = "QUOTAS_WINDOW_TIME_LIMIT"
	KeySchedulerJobSecurityTime  = "SCHEDULER_JOB_SECURITY_TIME"
	KeyFairsharingEnabled        = "FAIRSHARING_ENABLED"
	KeyFairsharingCoefKarma      = "FAIRSHARING_COEF_KARMA"
	KeyFairsharingCoefConsumed   = "FAIRSHARING_COEF_CONSUMPTION"
	KeySchedulerResourceLookup   = "SCHEDULER_RESOURCE_SET_LOOKUP"
	KeySchedulerQueues           = "SCHEDULER_QUEUES"
	KeyBesteffortEviction        = "BESTEFFORT_EVICTION"
)

// Scheduler is the resolved, typed configuration for one scheduling cycle,
// built from raw Platform.Config lookups.
type Scheduler struct {
	HierarchyLabels          []string
	QuotasEnabled            bool
	QuotasWindowTimeLimit    time.Duration
	JobSecurityTime          int64 // seconds, added to walltime before window/subtraction
	FairsharingEnabled       bool
	FairsharingCoefKarma     float64
	FairsharingCoefConsumed  float64
	ActiveQueues             []string // queues the loop pulls waiting jobs from; empty means all
	BesteffortEviction       bool
	// Strategy names the evaluator strategy ("basic" or "tree") a Platform
	// wants this cycle to run with. Empty means the caller's own default
	// (e.g. a CLI --strategy flag) applies unchanged.
	Strategy string
}

// Resolver reads raw string config values, matching Platform.Config's
// signature so callers can adapt any Platform implementation directly.
type Resolver func(key string) (string, bool)

// Load builds a Scheduler from a Resolver, applying defaults when a key is
// absent: fairsharing off, besteffort eviction on, no queue filter (all
// queues active).
func Load(get Resolver) (Scheduler, error) {
	sc := Scheduler{
		BesteffortEviction: true,
	}

	if v, ok := get(KeyHierarchyLabels); ok && v != "" {
		sc.HierarchyLabels = splitCSV(v)
	}

	sc.QuotasEnabled = boolValue(get, KeyQuotas, false)

	if v, ok := get(KeyQuotasWindowTimeLimit); ok && v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return sc, fmt.Errorf("config: invalid %s: %w", KeyQuotasWindowTimeLimit, err)
		}
		sc.QuotasWindowTimeLimit = time.Duration(secs) * time.Second
	} else {
		sc.QuotasWindowTimeLimit = 7 * 24 * time.Hour
	}

	if v, ok := get(KeySchedulerJobSecurityTime); ok && v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return sc, fmt.Errorf("config: invalid %s: %w", KeySchedulerJobSecurityTime, err)
		}
		sc.JobSecurityTime = secs
	}

	sc.FairsharingEnabled = boolValue(get, KeyFairsharingEnabled, false)
	sc.FairsharingCoefKarma = floatValue(get, KeyFairsharingCoefKarma, 1.0)
	sc.FairsharingCoefConsumed = floatValue(get, KeyFairsharingCoefConsumed, 1.0)
	sc.BesteffortEviction = boolValue(get, KeyBesteffortEviction, true)

	if v, ok := get(KeySchedulerQueues); ok && v != "" {
		sc.ActiveQueues = splitCSV(v)
	}

	if v, ok := get(KeySchedulerResourceLookup); ok && v != "" {
		sc.Strategy = v
	}

	return sc, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolValue(get Resolver, key string, def bool) bool {
	v, ok := get(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func floatValue(get Resolver, key string, def float64) float64 {
	v, ok := get(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// quotaFile mirrors the YAML shape of a quota-rule file: a list of rules
// plus the top-level enabled switch, matching the field layout of
// quota.Rule/quota.Config so sigs.k8s.io/yaml can decode it via JSON tags.
type quotaFile struct {
	Enabled bool         `json:"enabled"`
	Rules   []quotaEntry `json:"rules"`
}

type quotaEntry struct {
	Queue     string          `json:"queue"`
	Project   string          `json:"project"`
	User      string          `json:"user"`
	JobType   string          `json:"job_type"`
	Kind      string          `json:"kind"`
	NbResources   *int64      `json:"nb_resources"`
	NbJobs        *int64      `json:"nb_jobs"`
	ResourcesTime *int64      `json:"resources_time"`
	TimeRange string          `json:"time_range"` // periodical only, "HH:MM-HH:MM"
	DayOfWeek string          `json:"day_of_week"` // periodical only
	Start     *int64          `json:"start"`        // one_shot only, half-open
	End       *int64          `json:"end"`          // one_shot only, half-open
}

// ParseQuotas decodes a quota-rule YAML document, expanding
// periodical rules into concrete instances over [from, from+windowLimit]
// and one-shot rules into their single closed instance.
func ParseQuotas(raw []byte, from time.Time, windowLimit time.Duration) (quota.Config, error) {
	var f quotaFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return quota.Config{}, fmt.Errorf("config: invalid quotas document: %w", err)
	}
	cfg := quota.Config{Enabled: f.Enabled}
	for _, e := range f.Rules {
		r := quota.Rule{
			Queue:   orWildcard(e.Queue),
			Project: orWildcard(e.Project),
			User:    orWildcard(e.User),
			JobType: orWildcard(e.JobType),
			Kind:    quota.Kind(e.Kind),
			Cap: quota.Cap{
				NbResources:   e.NbResources,
				NbJobs:        e.NbJobs,
				ResourcesTime: e.ResourcesTime,
			},
		}
		switch r.Kind {
		case quota.KindPeriodical:
			instances, err := quota.ExpandPeriodical(quota.PeriodicalSpec{
				TimeRange: e.TimeRange,
				DayOfWeek: e.DayOfWeek,
			}, from, windowLimit)
			if err != nil {
				return quota.Config{}, fmt.Errorf("config: rule %s: %w", r.Key(), err)
			}
			r.Instances = instances
		case quota.KindOneShot:
			if e.Start == nil || e.End == nil {
				return quota.Config{}, fmt.Errorf("config: one_shot rule %s missing start/end", r.Key())
			}
			r.Instances = []quota.Interval{quota.ExpandOneShot(*e.Start, *e.End)}
		case quota.KindStatic, "":
			r.Kind = quota.KindStatic
		default:
			return quota.Config{}, fmt.Errorf("config: rule %s: unknown kind %q", r.Key(), e.Kind)
		}
		cfg.Rules = append(cfg.Rules, r)
	}
	return cfg, nil
}

func orWildcard(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
