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

import "fmt"

// Error is a config validation failure carrying the offending field path.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func errf(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// wrapField prefixes a nested error with the enclosing field path so schedule
// compilation errors surface as jobs[i].schedule.<field> paths.
func wrapField(prefix string, err error) *Error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*Error); ok {
		if ce.Field == "" {
			return &Error{Field: prefix, Reason: ce.Reason}
		}
		return &Error{Field: prefix + "." + ce.Field, Reason: ce.Reason}
	}
	return &Error{Field: prefix, Reason: err.Error()}
}
