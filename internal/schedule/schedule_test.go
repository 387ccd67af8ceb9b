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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utcSpec(frequency string, fields map[string]any) *Spec {
	return &Spec{
		Frequency:    frequency,
		Fields:       fields,
		Location:     time.UTC,
		TimezoneName: "UTC",
		Exclude:      map[string]struct{}{},
	}
}

func mustCompile(t *testing.T, spec *Spec) *Compiled {
	t.Helper()
	compiled, err := Compile(spec)
	require.NoError(t, err)
	return compiled
}

func TestCompileDaily(t *testing.T) {
	compiled := mustCompile(t, utcSpec("daily", map[string]any{"time": "08:30"}))
	assert.Equal(t, KindPureCron, compiled.Kind)
	assert.Equal(t, "30 8 * * *", compiled.CronExpr)
	assert.Equal(t, "Runs daily at 08:30 (UTC)", compiled.Description)

	weekdays := mustCompile(t, utcSpec("daily", map[string]any{"time": "08:30", "weekdays_only": true}))
	assert.Equal(t, "30 8 * * 1-5", weekdays.CronExpr)
	assert.Contains(t, weekdays.Description, "every weekday")
}

func TestCompileWeekly(t *testing.T) {
	compiled := mustCompile(t, utcSpec("weekly", map[string]any{
		"time": "09:00",
		"day":  []any{"monday", "friday"},
	}))
	assert.Equal(t, KindPureCron, compiled.Kind)
	assert.Equal(t, "0 9 * * 1,5", compiled.CronExpr)

	ranged := mustCompile(t, utcSpec("weekly", map[string]any{
		"time": "09:00",
		"day":  "monday-friday",
	}))
	assert.Equal(t, "0 9 * * 1-5", ranged.CronExpr)
}

func TestCompileMonthlyDayOfMonth(t *testing.T) {
	compiled := mustCompile(t, utcSpec("monthly", map[string]any{
		"time":         "06:15",
		"day_of_month": 15,
	}))
	assert.Equal(t, KindPureCron, compiled.Kind)
	assert.Equal(t, "15 6 15 * *", compiled.CronExpr)
}

func TestCompileMonthlyOrdinalIsHybrid(t *testing.T) {
	compiled := mustCompile(t, utcSpec("monthly", map[string]any{
		"time":    "18:00",
		"ordinal": "last",
		"day":     "friday",
	}))
	assert.Equal(t, KindHybrid, compiled.Kind)
	assert.Equal(t, "0 18 * * 5", compiled.CronExpr)

	// 2026-02-27 is the last Friday of February; 2026-02-20 is not.
	assert.True(t, compiled.Allowed(time.Date(2026, 2, 27, 18, 0, 0, 0, time.UTC)))
	assert.False(t, compiled.Allowed(time.Date(2026, 2, 20, 18, 0, 0, 0, time.UTC)))
}

func TestCompileYearly(t *testing.T) {
	compiled := mustCompile(t, utcSpec("yearly", map[string]any{
		"time":         "00:05",
		"month":        "march",
		"day_of_month": 1,
	}))
	assert.Equal(t, "5 0 1 3 *", compiled.CronExpr)
	assert.Contains(t, compiled.Description, "march 1")
}

func TestCompileIntervalClassification(t *testing.T) {
	cases := []struct {
		every string
		kind  Kind
		expr  string
	}{
		{"30m", KindPureCron, "*/30 * * * *"},
		{"60m", KindPureCron, "0 * * * *"},
		{"90m", KindRuntimeOnly, ""},
		{"2h", KindPureCron, "0 */2 * * *"},
		{"5h", KindRuntimeOnly, ""},
		{"1d", KindPureCron, "0 0 * * *"},
		{"3d", KindRuntimeOnly, ""},
	}
	for _, tc := range cases {
		compiled := mustCompile(t, utcSpec("interval", map[string]any{"every": tc.every}))
		assert.Equal(t, tc.kind, compiled.Kind, "every=%s", tc.every)
		assert.Equal(t, tc.expr, compiled.CronExpr, "every=%s", tc.every)
	}
}

func TestCompileIntervalRejectsSeconds(t *testing.T) {
	_, err := Compile(utcSpec("interval", map[string]any{"every": "30s"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seconds intervals are unsupported")
}

func TestCompileCustomDefaultsMissingFields(t *testing.T) {
	compiled := mustCompile(t, utcSpec("custom", map[string]any{
		"minute":      "*/15",
		"day_of_week": "monday",
	}))
	assert.Equal(t, "*/15 * * * 1", compiled.CronExpr)

	sunday := mustCompile(t, utcSpec("custom", map[string]any{
		"minute":      0,
		"day_of_week": 7,
	}))
	assert.Equal(t, "0 * * * 0", sunday.CronExpr)
}

func TestCompileCustomRejectsOutOfRangeToken(t *testing.T) {
	_, err := Compile(utcSpec("custom", map[string]any{"minute": "75"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule.minute")
}

func TestParseHHMMRejectsBadValues(t *testing.T) {
	for _, bad := range []string{"24:00", "7:30", "12:60", "noon", ""} {
		_, _, err := ParseHHMM(bad, "schedule.time")
		assert.Error(t, err, "value=%q", bad)
	}
	h, m, err := ParseHHMM("23:59", "schedule.time")
	require.NoError(t, err)
	assert.Equal(t, 23, h)
	assert.Equal(t, 59, m)
}

func TestNextAfterCron(t *testing.T) {
	compiled := mustCompile(t, utcSpec("interval", map[string]any{"every": "30m"}))
	next, ok := compiled.NextAfter(time.Date(2026, 1, 5, 10, 7, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 5, 10, 30, 0, 0, time.UTC), next)

	// A candidate exactly on the boundary is excluded; the next slot wins.
	next, ok = compiled.NextAfter(time.Date(2026, 1, 5, 10, 30, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC), next)
}

func TestNextAfterRuntimeIntervalWithAnchor(t *testing.T) {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	spec := utcSpec("interval", map[string]any{"every": "90m"})
	spec.Start = &start
	compiled := mustCompile(t, spec)
	require.Equal(t, KindRuntimeOnly, compiled.Kind)

	next, ok := compiled.NextAfter(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, start, next)

	next, ok = compiled.NextAfter(time.Date(2026, 1, 5, 9, 45, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, start.Add(90*time.Minute), next)

	next, ok = compiled.NextAfter(start)
	require.True(t, ok)
	assert.Equal(t, start.Add(90*time.Minute), next)
}

func TestNextAfterRuntimeIntervalWithoutAnchor(t *testing.T) {
	compiled := mustCompile(t, utcSpec("interval", map[string]any{"every": "90m"}))
	after := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	next, ok := compiled.NextAfter(after)
	require.True(t, ok)
	assert.Equal(t, after.Add(90*time.Minute), next)
}

func TestNextAfterHonorsEndBound(t *testing.T) {
	end := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	spec := utcSpec("daily", map[string]any{"time": "13:00"})
	spec.End = &end
	compiled := mustCompile(t, spec)

	_, ok := compiled.NextAfter(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestNextAfterSkipsExcludedDates(t *testing.T) {
	spec := utcSpec("daily", map[string]any{"time": "08:00"})
	spec.Exclude = map[string]struct{}{"2026-01-06": {}}
	compiled := mustCompile(t, spec)

	next, ok := compiled.NextAfter(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 7, 8, 0, 0, 0, time.UTC), next)
}

func TestSpringForwardSkipsNonexistentSlot(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	spec := &Spec{
		Frequency:    "daily",
		Fields:       map[string]any{"time": "02:30"},
		Location:     loc,
		TimezoneName: "America/New_York",
	}
	compiled := mustCompile(t, spec)

	// DST starts 2026-03-08 in the US; 02:30 local does not exist that day.
	after := time.Date(2026, 3, 7, 12, 0, 0, 0, loc)
	next, ok := compiled.NextAfter(after)
	require.True(t, ok)
	local := next.In(loc)
	assert.Equal(t, time.Date(2026, 3, 9, 2, 30, 0, 0, loc).UTC(), next)
	assert.Equal(t, 9, local.Day())
}

func TestFallBackFiresExactlyOnce(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	spec := &Spec{
		Frequency:    "daily",
		Fields:       map[string]any{"time": "01:30"},
		Location:     loc,
		TimezoneName: "America/New_York",
	}
	compiled := mustCompile(t, spec)

	// DST ends 2026-11-01; wall clock 01:30 occurs twice that morning.
	after := time.Date(2026, 10, 31, 12, 0, 0, 0, loc)
	runs := compiled.NextTimes(after, 3)
	require.Len(t, runs, 3)

	onTransitionDay := 0
	for _, run := range runs {
		local := run.In(loc)
		if local.Year() == 2026 && local.Month() == time.November && local.Day() == 1 {
			onTransitionDay++
			assert.Equal(t, "01:30", local.Format("15:04"))
		}
	}
	assert.Equal(t, 1, onTransitionDay)
}

func TestNextTimesLastFridayWithExclusion(t *testing.T) {
	spec := utcSpec("monthly", map[string]any{
		"time":    "18:00",
		"ordinal": "last",
		"day":     "friday",
	})
	spec.Exclude = map[string]struct{}{"2026-12-25": {}}
	compiled := mustCompile(t, spec)

	base := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)
	runs := compiled.NextTimes(base, 2)
	require.Len(t, runs, 2)
	assert.Equal(t, time.Date(2027, 1, 29, 18, 0, 0, 0, time.UTC), runs[0])
	assert.Equal(t, time.Date(2027, 2, 26, 18, 0, 0, 0, time.UTC), runs[1])
}

func TestIsDueAt(t *testing.T) {
	cron := mustCompile(t, utcSpec("interval", map[string]any{"every": "30m"}))
	assert.True(t, cron.IsDueAt(time.Date(2026, 1, 5, 10, 30, 12, 0, time.UTC)))
	assert.False(t, cron.IsDueAt(time.Date(2026, 1, 5, 10, 31, 0, 0, time.UTC)))

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	spec := utcSpec("interval", map[string]any{"every": "90m"})
	spec.Start = &start
	runtime := mustCompile(t, spec)
	assert.True(t, runtime.IsDueAt(start.Add(90*time.Minute)))
	assert.False(t, runtime.IsDueAt(start.Add(91*time.Minute)))
}

func TestWeekdayTokens(t *testing.T) {
	token, human, err := ParseWeekdayExpr("monday, wednesday", "schedule.day")
	require.NoError(t, err)
	assert.Equal(t, "1,3", token)
	assert.Equal(t, "monday, wednesday", human)

	token, _, err = ParseWeekdayExpr(7, "schedule.day")
	require.NoError(t, err)
	assert.Equal(t, "0", token)

	_, _, err = ParseWeekdayExpr("friday-monday", "schedule.day")
	assert.Error(t, err)

	_, _, err = ParseSingleWeekday([]any{"monday", "friday"}, "schedule.day")
	assert.Error(t, err)
}

func TestValidateCronToken(t *testing.T) {
	token, err := ValidateCronToken("1-5", "schedule.day_of_week", 0, 7)
	require.NoError(t, err)
	assert.Equal(t, "1-5", token)

	_, err = ValidateCronToken("*/0", "schedule.minute", 0, 59)
	assert.Error(t, err)

	_, err = ValidateCronToken("10-5", "schedule.hour", 0, 23)
	assert.Error(t, err)

	_, err = ValidateCronToken("61", "schedule.minute", 0, 59)
	assert.Error(t, err)
}
