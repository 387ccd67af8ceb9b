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

package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

func checkUnknownKeys(m map[string]any, fieldPath string, allowed []string) error {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, key := range allowed {
		allowedSet[key] = struct{}{}
	}
	var unknown []string
	for key := range m {
		if _, ok := allowedSet[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	if fieldPath == "" {
		return errf("", "unknown top-level keys: %v", unknown)
	}
	return errf(fieldPath, "unknown keys: %v", unknown)
}

func ensureBool(value any, fieldPath string, def bool) (bool, error) {
	if value == nil {
		return def, nil
	}
	b, ok := value.(bool)
	if !ok {
		return false, errf(fieldPath, "must be true or false")
	}
	return b, nil
}

func ensureInt(value any, fieldPath string, def, minimum int) (int, error) {
	if value == nil {
		return def, nil
	}
	var n int
	switch v := value.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	default:
		return 0, errf(fieldPath, "must be an integer")
	}
	if n < minimum {
		return 0, errf(fieldPath, "must be >= %d", minimum)
	}
	return n, nil
}

func ensureStr(value any, fieldPath string) (string, error) {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", errf(fieldPath, "must be a non-empty string")
	}
	return strings.TrimSpace(s), nil
}

func parseOverlap(value any, fieldPath string, def Overlap) (Overlap, error) {
	if value == nil {
		return def, nil
	}
	s, err := ensureStr(value, fieldPath)
	if err != nil {
		return "", err
	}
	overlap := strings.ToLower(s)
	if _, ok := validOverlaps[overlap]; !ok {
		return "", errf(fieldPath, "must be one of [parallel queue skip], got %q", overlap)
	}
	return Overlap(overlap), nil
}

func loadLocation(name, fieldPath string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errf(fieldPath, "invalid timezone %q", name)
	}
	return loc, nil
}

// systemTimezoneName resolves the host timezone for schedules that do not
// name one. TZ wins when set; otherwise the local zone name is used.
func systemTimezoneName() string {
	if tz := strings.TrimSpace(os.Getenv("TZ")); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	return time.Local.String()
}

func resolveWorkingDir(value any, configDir, fieldPath string) (string, error) {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", errf(fieldPath, "must be a non-empty path string")
	}
	dir := strings.TrimSpace(s)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(configDir, dir)
	}
	dir = filepath.Clean(dir)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", errf(fieldPath, "working directory does not exist: %s", dir)
	}
	return dir, nil
}

var isoDateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseISODateTime accepts ISO datetimes; naive values are interpreted in the
// schedule's timezone.
func parseISODateTime(value any, loc *time.Location, fieldPath string) (*time.Time, error) {
	s, ok := value.(string)
	if !ok {
		return nil, errf(fieldPath, "must be an ISO datetime string")
	}
	s = strings.TrimSpace(s)
	for _, layout := range isoDateTimeLayouts {
		var t time.Time
		var err error
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			t = t.In(loc)
			return &t, nil
		}
	}
	return nil, errf(fieldPath, "must be ISO datetime, got %q", s)
}

func parseExcludeDates(raw any, fieldPath string) (map[string]struct{}, error) {
	if raw == nil {
		return map[string]struct{}{}, nil
	}
	if m, isMap := raw.(map[string]any); isMap {
		if _, ok := m["holidays"]; ok {
			return nil, errf(fieldPath, "named holidays are disabled; use explicit date exclusions in exclude: [YYYY-MM-DD]")
		}
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, errf(fieldPath, "must be a list of YYYY-MM-DD dates")
	}
	out := make(map[string]struct{}, len(list))
	for idx, value := range list {
		s, isStr := value.(string)
		if !isStr {
			return nil, errf(fieldPath, "[%d] must be YYYY-MM-DD string", idx)
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return nil, errf(fieldPath, "[%d] must be YYYY-MM-DD, got %q", idx, s)
		}
		out[s] = struct{}{}
	}
	return out, nil
}
