/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package schedule

import "time"

// maxCandidateScan bounds the search for the next allowed instant so sparse
// schedules with broad exclusions cannot spin forever.
const maxCandidateScan = 10000

// Allowed reports whether a candidate instant passes the guard: DST
// duplicate suppression, start/end bounds, excluded dates, and the hybrid
// ordinal predicate.
func (c *Compiled) Allowed(candidate time.Time) bool {
	local := candidate.In(c.Location)

	// During a fall-back transition two instants share one wall clock.
	// time.Date resolves an ambiguous wall clock to its first occurrence,
	// so a mismatch identifies (and rejects) the repeated instant.
	y, mo, d := local.Date()
	h, mi, s := local.Clock()
	canonical := time.Date(y, mo, d, h, mi, s, local.Nanosecond(), c.Location)
	if !canonical.Equal(local) {
		return false
	}

	if c.Start != nil && local.Before(*c.Start) {
		return false
	}
	if c.End != nil && local.After(*c.End) {
		return false
	}
	if _, excluded := c.Exclude[local.Format("2006-01-02")]; excluded {
		return false
	}
	if c.guard != nil && !c.guard(local) {
		return false
	}
	return true
}

// NextAfter returns the earliest allowed firing strictly after the given
// instant, in UTC. ok is false when the schedule has no future firing
// (end bound passed or scan budget exhausted).
func (c *Compiled) NextAfter(after time.Time) (next time.Time, ok bool) {
	if c.Kind == KindRuntimeOnly {
		return c.nextIntervalAfter(after)
	}
	return c.nextCronAfter(after)
}

func (c *Compiled) nextCronAfter(after time.Time) (time.Time, bool) {
	if c.sched == nil {
		return time.Time{}, false
	}
	cursor := after.In(c.Location)
	for i := 0; i < maxCandidateScan; i++ {
		candidate := c.sched.Next(cursor)
		if candidate.IsZero() {
			return time.Time{}, false
		}
		if c.Allowed(candidate) {
			return candidate.UTC(), true
		}
		if c.End != nil && candidate.After(*c.End) {
			return time.Time{}, false
		}
		cursor = candidate
	}
	return time.Time{}, false
}

func (c *Compiled) nextIntervalAfter(after time.Time) (time.Time, bool) {
	if c.Interval <= 0 {
		return time.Time{}, false
	}

	var candidate time.Time
	if c.Start != nil {
		if after.Before(*c.Start) {
			candidate = *c.Start
		} else {
			steps := int64(after.Sub(*c.Start)/c.Interval) + 1
			candidate = c.Start.Add(time.Duration(steps) * c.Interval)
		}
	} else {
		candidate = after.Add(c.Interval)
	}

	for i := 0; i < maxCandidateScan; i++ {
		if c.End != nil && candidate.After(*c.End) {
			return time.Time{}, false
		}
		if c.Allowed(candidate) {
			return candidate.UTC(), true
		}
		candidate = candidate.Add(c.Interval)
	}
	return time.Time{}, false
}

// NextTimes returns up to count future firings after now, deduplicated by
// local wall-clock minute so DST transitions cannot yield the same slot
// twice.
func (c *Compiled) NextTimes(now time.Time, count int) []time.Time {
	var runs []time.Time
	seen := make(map[string]struct{}, count)
	cursor := now
	for len(runs) < count {
		next, ok := c.NextAfter(cursor)
		if !ok {
			break
		}
		slot := next.In(c.Location).Format("2006-01-02 15:04")
		if _, dup := seen[slot]; !dup {
			runs = append(runs, next)
			seen[slot] = struct{}{}
		}
		cursor = next.Add(time.Second)
	}
	return runs
}

// IsDueAt reports whether the schedule fires in the minute containing the
// given instant.
func (c *Compiled) IsDueAt(at time.Time) bool {
	if c.Kind == KindRuntimeOnly {
		marker := at.Truncate(time.Minute)
		candidate, ok := c.NextAfter(marker.Add(-time.Second))
		if !ok {
			return false
		}
		diff := candidate.Sub(marker)
		if diff < 0 {
			diff = -diff
		}
		return diff < time.Second
	}

	if c.sched == nil {
		return false
	}
	local := at.In(c.Location)
	local = local.Add(-time.Duration(local.Second())*time.Second - time.Duration(local.Nanosecond()))
	if !c.Allowed(local) {
		return false
	}
	return c.sched.Next(local.Add(-time.Second)).Equal(local)
}
