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

// Package schedule compiles the YAML scheduling DSL into an executable plan.
// A compiled schedule is either pure cron, cron plus a runtime guard, or a
// runtime-only interval timer.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind classifies how a compiled schedule advances.
type Kind string

const (
	KindPureCron    Kind = "pure_cron"
	KindHybrid      Kind = "hybrid"
	KindRuntimeOnly Kind = "runtime_only"
)

// Spec is a validated schedule definition ready for compilation. Fields holds
// the frequency-specific keys exactly as parsed from YAML.
type Spec struct {
	Frequency    string
	Fields       map[string]any
	Location     *time.Location
	TimezoneName string
	Start        *time.Time
	End          *time.Time
	Exclude      map[string]struct{}
}

// Compiled is the execution plan for one schedule.
type Compiled struct {
	Kind         Kind
	CronExpr     string
	Description  string
	Location     *time.Location
	TimezoneName string
	Start        *time.Time
	End          *time.Time
	Exclude      map[string]struct{}
	Interval     time.Duration
	IntervalText string

	guard func(local time.Time) bool
	sched cron.Schedule
}

// Compile translates a validated spec into its execution plan. Errors carry
// the offending schedule field path.
func Compile(spec *Spec) (*Compiled, error) {
	switch spec.Frequency {
	case "daily":
		return compileDaily(spec)
	case "weekly":
		return compileWeekly(spec)
	case "monthly":
		return compileMonthly(spec)
	case "yearly":
		return compileYearly(spec)
	case "interval":
		return compileInterval(spec)
	case "custom":
		return compileCustom(spec)
	default:
		return nil, errAt("schedule.frequency", "unsupported frequency %q", spec.Frequency)
	}
}

func compileDaily(spec *Spec) (*Compiled, error) {
	hour, minute, err := ParseHHMM(spec.Fields["time"], "schedule.time")
	if err != nil {
		return nil, err
	}
	timeText := fmt.Sprintf("%02d:%02d", hour, minute)
	weekdaysOnly, _ := spec.Fields["weekdays_only"].(bool)

	dow := "*"
	desc := fmt.Sprintf("Runs daily at %s (%s)", timeText, spec.TimezoneName)
	if weekdaysOnly {
		dow = "1-5"
		desc = fmt.Sprintf("Runs every weekday at %s (%s)", timeText, spec.TimezoneName)
	}
	expr := fmt.Sprintf("%d %d * * %s", minute, hour, dow)
	return newCompiled(spec, KindPureCron, expr, nil, desc, 0, "")
}

func compileWeekly(spec *Spec) (*Compiled, error) {
	hour, minute, err := ParseHHMM(spec.Fields["time"], "schedule.time")
	if err != nil {
		return nil, err
	}
	dowToken, humanDays, err := ParseWeekdayExpr(spec.Fields["day"], "schedule.day")
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf("%d %d * * %s", minute, hour, dowToken)
	desc := fmt.Sprintf("Runs every %s at %02d:%02d (%s)", humanDays, hour, minute, spec.TimezoneName)
	return newCompiled(spec, KindPureCron, expr, nil, desc, 0, "")
}

func compileMonthly(spec *Spec) (*Compiled, error) {
	hour, minute, err := ParseHHMM(spec.Fields["time"], "schedule.time")
	if err != nil {
		return nil, err
	}
	if rawDay, ok := spec.Fields["day_of_month"]; ok {
		dayOfMonth, err := ValidateDayOfMonth(rawDay, "schedule.day_of_month")
		if err != nil {
			return nil, err
		}
		expr := fmt.Sprintf("%d %d %d * *", minute, hour, dayOfMonth)
		desc := fmt.Sprintf("Runs monthly on day %d at %02d:%02d (%s)", dayOfMonth, hour, minute, spec.TimezoneName)
		return newCompiled(spec, KindPureCron, expr, nil, desc, 0, "")
	}

	ordinal := strings.ToLower(strings.TrimSpace(fmt.Sprint(spec.Fields["ordinal"])))
	if _, ok := ordinalToIndex[ordinal]; !ok {
		return nil, errAt("schedule.ordinal", "invalid ordinal %q", ordinal)
	}
	cronDow, weekdayName, err := ParseSingleWeekday(spec.Fields["day"], "schedule.day")
	if err != nil {
		return nil, err
	}
	target := time.Weekday(cronDow)
	guard := func(local time.Time) bool {
		return ordinalWeekdayMatches(local, target, ordinal)
	}
	expr := fmt.Sprintf("%d %d * * %d", minute, hour, cronDow)
	desc := fmt.Sprintf("Runs monthly on the %s %s at %02d:%02d (%s)", ordinal, weekdayName, hour, minute, spec.TimezoneName)
	return newCompiled(spec, KindHybrid, expr, guard, desc, 0, "")
}

func compileYearly(spec *Spec) (*Compiled, error) {
	hour, minute, err := ParseHHMM(spec.Fields["time"], "schedule.time")
	if err != nil {
		return nil, err
	}
	month, err := NormalizeMonth(spec.Fields["month"], "schedule.month")
	if err != nil {
		return nil, err
	}
	dayOfMonth, err := ValidateDayOfMonth(spec.Fields["day_of_month"], "schedule.day_of_month")
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf("%d %d %d %d *", minute, hour, dayOfMonth, month)
	desc := fmt.Sprintf("Runs yearly on %s %d at %02d:%02d (%s)",
		strings.ToLower(time.Month(month).String()), dayOfMonth, hour, minute, spec.TimezoneName)
	return newCompiled(spec, KindPureCron, expr, nil, desc, 0, "")
}

func compileInterval(spec *Spec) (*Compiled, error) {
	amount, unit, err := ParseInterval(spec.Fields["every"], "schedule.every")
	if err != nil {
		return nil, err
	}
	interval := intervalDuration(amount, unit)
	intervalText := fmt.Sprintf("%d%c", amount, unit)

	switch {
	case unit == 'm' && 60%amount == 0:
		expr := fmt.Sprintf("*/%d * * * *", amount)
		if amount == 60 {
			expr = "0 * * * *"
		}
		desc := fmt.Sprintf("Runs every %d minute(s) (%s)", amount, spec.TimezoneName)
		return newCompiled(spec, KindPureCron, expr, nil, desc, interval, intervalText)
	case unit == 'h' && 24%amount == 0:
		expr := fmt.Sprintf("0 */%d * * *", amount)
		if amount == 24 {
			expr = "0 0 * * *"
		}
		desc := fmt.Sprintf("Runs every %d hour(s) (%s)", amount, spec.TimezoneName)
		return newCompiled(spec, KindPureCron, expr, nil, desc, interval, intervalText)
	case unit == 'd' && amount == 1:
		desc := fmt.Sprintf("Runs every day at 00:00 (%s)", spec.TimezoneName)
		return newCompiled(spec, KindPureCron, "0 0 * * *", nil, desc, interval, intervalText)
	}

	desc := fmt.Sprintf("Runs every %s using runtime scheduler (%s)", intervalText, spec.TimezoneName)
	return newCompiled(spec, KindRuntimeOnly, "", nil, desc, interval, intervalText)
}

func compileCustom(spec *Spec) (*Compiled, error) {
	minute, err := customField(spec.Fields, "minute", 0, 59, nil)
	if err != nil {
		return nil, err
	}
	hour, err := customField(spec.Fields, "hour", 0, 23, nil)
	if err != nil {
		return nil, err
	}
	dayOfMonth, err := customField(spec.Fields, "day_of_month", 1, 31, nil)
	if err != nil {
		return nil, err
	}
	month, err := customField(spec.Fields, "month", 1, 12, monthNameToNum)
	if err != nil {
		return nil, err
	}
	dayOfWeek, err := customField(spec.Fields, "day_of_week", 0, 7, dayNameToCron)
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf("%s %s %s %s %s", minute, hour, dayOfMonth, month, normalizeDowSeven(dayOfWeek))
	desc := fmt.Sprintf("Runs on custom schedule (%s)", spec.TimezoneName)
	return newCompiled(spec, KindPureCron, expr, nil, desc, 0, "")
}

func customField(fields map[string]any, name string, minValue, maxValue int, names map[string]int) (string, error) {
	fieldPath := "schedule." + name
	raw, ok := fields[name]
	if !ok {
		return "*", nil
	}
	if names != nil {
		token := strings.ToLower(strings.TrimSpace(fmt.Sprint(raw)))
		replaced, err := ReplaceNamedTokens(token, names, fieldPath)
		if err != nil {
			return "", err
		}
		raw = replaced
	}
	return ValidateCronToken(raw, fieldPath, minValue, maxValue)
}

// normalizeDowSeven rewrites day-of-week 7 (an accepted alias for Sunday) into
// 0 so the cron parser sees only 0..6.
func normalizeDowSeven(token string) string {
	parts := strings.Split(token, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch {
		case part == "7":
			out = append(out, "0")
		case strings.HasSuffix(part, "-7"):
			out = append(out, strings.TrimSuffix(part, "-7")+"-6", "0")
		default:
			out = append(out, part)
		}
	}
	return strings.Join(out, ",")
}

func newCompiled(spec *Spec, kind Kind, expr string, guard func(time.Time) bool, desc string, interval time.Duration, intervalText string) (*Compiled, error) {
	c := &Compiled{
		Kind:         kind,
		CronExpr:     expr,
		Description:  desc,
		Location:     spec.Location,
		TimezoneName: spec.TimezoneName,
		Start:        spec.Start,
		End:          spec.End,
		Exclude:      spec.Exclude,
		Interval:     interval,
		IntervalText: intervalText,
		guard:        guard,
	}
	if c.Exclude == nil {
		c.Exclude = map[string]struct{}{}
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if expr != "" {
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, errAt("schedule", "cannot parse cron expression %q: %v", expr, err)
		}
		c.sched = sched
	}
	return c, nil
}

func intervalDuration(amount int, unit byte) time.Duration {
	switch unit {
	case 'm':
		return time.Duration(amount) * time.Minute
	case 'h':
		return time.Duration(amount) * time.Hour
	default:
		return time.Duration(amount) * 24 * time.Hour
	}
}

// ordinalWeekdayMatches reports whether local falls on the requested ordinal
// occurrence of the target weekday within its month.
func ordinalWeekdayMatches(local time.Time, target time.Weekday, ordinal string) bool {
	if local.Weekday() != target {
		return false
	}
	if ordinal == "last" {
		return local.AddDate(0, 0, 7).Month() != local.Month()
	}
	return (local.Day()-1)/7 == ordinalToIndex[ordinal]
}
