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
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	intervalRe  = regexp.MustCompile(`^(\d+)([smhd])$`)
	hhmmRe      = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)
	cronFieldRe = regexp.MustCompile(`^[0-9*,/\-]+$`)
	wordRe      = regexp.MustCompile(`[A-Za-z]+`)
)

// dayNameToCron maps weekday names to cron numbers (0 = Sunday).
var dayNameToCron = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

var cronToDayName = map[int]string{
	0: "sunday",
	1: "monday",
	2: "tuesday",
	3: "wednesday",
	4: "thursday",
	5: "friday",
	6: "saturday",
}

var monthNameToNum = map[string]int{
	"january":   1,
	"february":  2,
	"march":     3,
	"april":     4,
	"may":       5,
	"june":      6,
	"july":      7,
	"august":    8,
	"september": 9,
	"october":   10,
	"november":  11,
	"december":  12,
}

// ordinalToIndex maps ordinal words to a zero-based occurrence index;
// "last" is handled separately.
var ordinalToIndex = map[string]int{
	"first":  0,
	"second": 1,
	"third":  2,
	"fourth": 3,
	"last":   -1,
}

func errAt(fieldPath, format string, args ...any) error {
	return fmt.Errorf("%s: %s", fieldPath, fmt.Sprintf(format, args...))
}

// ParseHHMM validates a 24-hour HH:MM string and returns its components.
func ParseHHMM(value any, fieldPath string) (hour, minute int, err error) {
	s, ok := value.(string)
	if !ok {
		return 0, 0, errAt(fieldPath, "must be HH:MM string")
	}
	m := hhmmRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, errAt(fieldPath, "must be HH:MM (24-hour), got %q", s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

func normalizeWeekdayToken(token, fieldPath string) (int, error) {
	tok := strings.ToLower(strings.TrimSpace(token))
	if num, ok := dayNameToCron[tok]; ok {
		return num, nil
	}
	if n, err := strconv.Atoi(tok); err == nil {
		if n == 7 {
			return 0, nil
		}
		if n >= 0 && n <= 6 {
			return n, nil
		}
	}
	return 0, errAt(fieldPath, "invalid weekday %q", token)
}

// ParseWeekdayExpr accepts a weekday name/number, a comma list, a range, or a
// YAML list of any of those, and returns the cron day-of-week token together
// with a human-readable rendering.
func ParseWeekdayExpr(value any, fieldPath string) (cronToken, human string, err error) {
	switch v := value.(type) {
	case []any:
		if len(v) == 0 {
			return "", "", errAt(fieldPath, "cannot be empty")
		}
		tokens := make([]string, 0, len(v))
		names := make([]string, 0, len(v))
		for _, item := range v {
			tok, name, err := ParseWeekdayExpr(item, fieldPath+"[]")
			if err != nil {
				return "", "", err
			}
			tokens = append(tokens, tok)
			names = append(names, name)
		}
		return strings.Join(tokens, ","), strings.Join(names, ", "), nil
	case string:
		raw := strings.ToLower(strings.TrimSpace(v))
		if strings.Contains(raw, ",") {
			var tokens, names []string
			for _, seg := range strings.Split(raw, ",") {
				seg = strings.TrimSpace(seg)
				if seg == "" {
					continue
				}
				tok, name, err := ParseWeekdayExpr(seg, fieldPath)
				if err != nil {
					return "", "", err
				}
				tokens = append(tokens, tok)
				names = append(names, name)
			}
			if len(tokens) == 0 {
				return "", "", errAt(fieldPath, "is empty")
			}
			return strings.Join(tokens, ","), strings.Join(names, ", "), nil
		}
		if strings.Count(raw, "-") == 1 {
			parts := strings.SplitN(raw, "-", 2)
			left, err := normalizeWeekdayToken(parts[0], fieldPath)
			if err != nil {
				return "", "", err
			}
			right, err := normalizeWeekdayToken(parts[1], fieldPath)
			if err != nil {
				return "", "", err
			}
			if left > right {
				return "", "", errAt(fieldPath, "invalid weekday range %q", raw)
			}
			return fmt.Sprintf("%d-%d", left, right),
				fmt.Sprintf("%s-%s", cronToDayName[left], cronToDayName[right]), nil
		}
		num, err := normalizeWeekdayToken(raw, fieldPath)
		if err != nil {
			return "", "", err
		}
		return strconv.Itoa(num), cronToDayName[num], nil
	case int:
		num, err := normalizeWeekdayToken(strconv.Itoa(v), fieldPath)
		if err != nil {
			return "", "", err
		}
		return strconv.Itoa(num), cronToDayName[num], nil
	default:
		return "", "", errAt(fieldPath, "must be weekday string or list")
	}
}

// ParseSingleWeekday rejects lists and ranges; frequencies like monthly
// ordinal need exactly one weekday.
func ParseSingleWeekday(value any, fieldPath string) (cronNum int, human string, err error) {
	token, human, err := ParseWeekdayExpr(value, fieldPath)
	if err != nil {
		return 0, "", err
	}
	if strings.ContainsAny(token, ",-") {
		return 0, "", errAt(fieldPath, "must be a single weekday for this frequency")
	}
	cronNum, _ = strconv.Atoi(token)
	return cronNum, human, nil
}

// NormalizeMonth accepts a month name or number and returns 1..12.
func NormalizeMonth(value any, fieldPath string) (int, error) {
	var month int
	switch v := value.(type) {
	case int:
		month = v
	case string:
		raw := strings.ToLower(strings.TrimSpace(v))
		if num, ok := monthNameToNum[raw]; ok {
			month = num
		} else if n, err := strconv.Atoi(raw); err == nil {
			month = n
		} else {
			return 0, errAt(fieldPath, "invalid month %q", v)
		}
	default:
		return 0, errAt(fieldPath, "must be month name or number")
	}
	if month < 1 || month > 12 {
		return 0, errAt(fieldPath, "must be between 1 and 12")
	}
	return month, nil
}

// ValidateDayOfMonth checks an integer day 1..31.
func ValidateDayOfMonth(value any, fieldPath string) (int, error) {
	day, ok := value.(int)
	if !ok {
		return 0, errAt(fieldPath, "must be an integer")
	}
	if day < 1 || day > 31 {
		return 0, errAt(fieldPath, "must be between 1 and 31")
	}
	return day, nil
}

// ParseInterval parses an every value like "5m", "2h", "1d". Seconds are
// rejected with a distinct message.
func ParseInterval(value any, fieldPath string) (amount int, unit byte, err error) {
	s, ok := value.(string)
	if !ok {
		return 0, 0, errAt(fieldPath, "must be interval string like 5m, 2h, 1d")
	}
	m := intervalRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, 0, errAt(fieldPath, "must be in format <number><m|h|d>, got %q", s)
	}
	amount, _ = strconv.Atoi(m[1])
	if amount <= 0 {
		return 0, 0, errAt(fieldPath, "must be > 0")
	}
	unit = m[2][0]
	if unit == 's' {
		return 0, 0, errAt(fieldPath, "seconds intervals are unsupported; use m, h, or d")
	}
	return amount, unit, nil
}

// ReplaceNamedTokens rewrites alphabetic tokens (month or weekday names)
// inside a cron field using the given mapping.
func ReplaceNamedTokens(raw string, mapping map[string]int, fieldPath string) (string, error) {
	var badToken string
	out := wordRe.ReplaceAllStringFunc(raw, func(word string) string {
		num, ok := mapping[strings.ToLower(word)]
		if !ok {
			if badToken == "" {
				badToken = word
			}
			return word
		}
		return strconv.Itoa(num)
	})
	if badToken != "" {
		return "", errAt(fieldPath, "invalid token %q", badToken)
	}
	return out, nil
}

// ValidateCronToken checks a single cron field (lists, ranges, steps, *)
// against the allowed numeric range and returns the normalized token.
func ValidateCronToken(raw any, fieldPath string, minValue, maxValue int) (string, error) {
	var token string
	switch v := raw.(type) {
	case int:
		token = strconv.Itoa(v)
	case string:
		token = strings.TrimSpace(v)
	default:
		return "", errAt(fieldPath, "must be string/int cron token")
	}
	if token == "" {
		return "", errAt(fieldPath, "cannot be empty")
	}
	if !cronFieldRe.MatchString(token) {
		return "", errAt(fieldPath, "invalid cron token %q", token)
	}

	for _, part := range strings.Split(token, ",") {
		if part == "" {
			return "", errAt(fieldPath, "invalid cron token %q", token)
		}
		if strings.Contains(part, "/") {
			pieces := strings.SplitN(part, "/", 2)
			base, stepStr := pieces[0], pieces[1]
			step, err := strconv.Atoi(stepStr)
			if err != nil || step <= 0 {
				return "", errAt(fieldPath, "invalid step %q", part)
			}
			if base != "*" {
				if err := validateRangeOrSingle(base, fieldPath, minValue, maxValue); err != nil {
					return "", err
				}
			}
			if step > maxValue-minValue+1 {
				return "", errAt(fieldPath, "step %d too large", step)
			}
			continue
		}
		if err := validateRangeOrSingle(part, fieldPath, minValue, maxValue); err != nil {
			return "", err
		}
	}
	return token, nil
}

func validateRangeOrSingle(token, fieldPath string, minValue, maxValue int) error {
	if token == "*" {
		return nil
	}
	if strings.Contains(token, "-") {
		parts := strings.SplitN(token, "-", 2)
		start, err1 := strconv.Atoi(parts[0])
		end, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || start > end {
			return errAt(fieldPath, "invalid range %q", token)
		}
		if start < minValue || end > maxValue {
			return errAt(fieldPath, "range %q out of bounds %d-%d", token, minValue, maxValue)
		}
		return nil
	}
	value, err := strconv.Atoi(token)
	if err != nil {
		return errAt(fieldPath, "invalid token %q", token)
	}
	if value < minValue || value > maxValue {
		return errAt(fieldPath, "value %d out of bounds %d-%d", value, minValue, maxValue)
	}
	return nil
}
