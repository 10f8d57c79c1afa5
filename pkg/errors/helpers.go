// Copyright 2026 The Ferrymon Authors
//
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

package errors

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message, suggestion string) *ValidationError {
	return &ValidationError{
		Field:      field,
		Message:    message,
		Suggestion: suggestion,
	}
}

// NewConfigError creates a configuration error for a specific key.
func NewConfigError(key, reason string, cause error) *ConfigError {
	return &ConfigError{
		Key:    key,
		Reason: reason,
		Cause:  cause,
	}
}

// NewToolError creates an error for an external tool failure.
func NewToolError(tool string, exitCode int, message string, cause error) *ToolError {
	return &ToolError{
		Tool:     tool,
		ExitCode: exitCode,
		Message:  message,
		Cause:    cause,
	}
}
