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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// PeriodicalSpec is the external, half-open description of a recurring
// weekly window, e.g. TimeRange "22:00-04:00" with DayOfWeek "fri". Only
// these two fields exist; there is no month or date qualifier.
type PeriodicalSpec struct {
	TimeRange string // "HH:MM-HH:MM"
	DayOfWeek string // "mon".."sun" or "*"
}

var dowNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// ExpandPeriodical unrolls spec into concrete closed second intervals over
// [from, from+windowLimit], one interval per occurrence, splitting
// overnight windows (start >= end) into two pieces: start to midnight on the
// start day, and midnight to end on the next day.
// Expansion happens once at cycle start, never per admission check.
func ExpandPeriodical(spec PeriodicalSpec, from time.Time, windowLimit time.Duration) ([]Interval, error) {
	startHH, startMM, endHH, endMM, err := parseTimeRange(spec.TimeRange)
	if err != nil {
		return nil, err
	}
	dowField, err := dowCronField(spec.DayOfWeek)
	if err != nil {
		return nil, err
	}

	startSchedule, err := cron.ParseStandard(fmt.Sprintf("%d %d * * %s", startMM, startHH, dowField))
	if err != nil {
		return nil, fmt.Errorf("quota: invalid periodical start spec: %w", err)
	}

	horizon := from.Add(windowLimit)
	var out []Interval

	cursor := from.Add(-24 * time.Hour) // look slightly into the past so a window straddling `from` is still found
	for {
		next := startSchedule.Next(cursor)
		if next.After(horizon) {
			break
		}
		dayStart := time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, next.Location())
		startSec := next
		var pieces []Interval
		if startHH < endHH || (startHH == endHH && startMM < endMM) {
			end := time.Date(next.Year(), next.Month(), next.Day(), endHH, endMM, 0, 0, next.Location())
			pieces = append(pieces, closedInterval(startSec, end))
		} else {
			// Overnight: [start, 23:59:59] same day + [00:00, end) next day.
			nextDay := dayStart.AddDate(0, 0, 1)
			pieces = append(pieces, closedInterval(startSec, nextDay))
			endTime := time.Date(nextDay.Year(), nextDay.Month(), nextDay.Day(), endHH, endMM, 0, 0, next.Location())
			pieces = append(pieces, closedInterval(nextDay, endTime))
		}
		for _, p := range pieces {
			if p.High >= from.Unix() {
				out = append(out, p)
			}
		}
		cursor = next
	}
	return out, nil
}

func closedInterval(start, endExclusive time.Time) Interval {
	// external syntax is half-open [a,b); convert to closed [a,b-1] once,
	// here at parse time.
	return Interval{Low: start.Unix(), High: endExclusive.Unix() - 1}
}

func parseTimeRange(s string) (startHH, startMM, endHH, endMM int, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, 0, 0, fmt.Errorf("quota: invalid time range %q", s)
	}
	startHH, startMM, err = parseHHMM(parts[0])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	endHH, endMM, err = parseHHMM(parts[1])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return
}

func parseHHMM(s string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("quota: invalid time %q", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("quota: invalid hour in %q: %w", s, err)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("quota: invalid minute in %q: %w", s, err)
	}
	return hh, mm, nil
}

func dowCronField(dow string) (string, error) {
	dow = strings.ToLower(strings.TrimSpace(dow))
	if dow == "" || dow == wildcard {
		return "*", nil
	}
	n, ok := dowNames[dow]
	if !ok {
		return "", fmt.Errorf("quota: unknown day of week %q", dow)
	}
	return strconv.Itoa(n), nil
}

// ExpandOneShot converts a single half-open [a,b) external window to the
// closed [a,b-1] internal representation.
func ExpandOneShot(startUnix, endExclusiveUnix int64) Interval {
	return Interval{Low: startUnix, High: endExclusiveUnix - 1}
}
