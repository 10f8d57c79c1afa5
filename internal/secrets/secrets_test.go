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

package secrets

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

// fakeResolver returns a Resolver backed by in-memory maps instead of the
// system keyring.
func fakeResolver(keyringEntries, env map[string]string) *Resolver {
	return &Resolver{
		keyringGet: func(service, key string) (string, error) {
			if service != Service {
				return "", keyring.ErrNotFound
			}
			if v, ok := keyringEntries[key]; ok {
				return v, nil
			}
			return "", keyring.ErrNotFound
		},
		getenv: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := fakeResolver(
		map[string]string{"bcferries-email": "ops@example.com"},
		map[string]string{"BC_FERRIES_PASSWORD": "hunter2"},
	)

	t.Run("keyring reference", func(t *testing.T) {
		v, err := r.Resolve("keyring:bcferries-email")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if v != "ops@example.com" {
			t.Errorf("Resolve() = %q, want %q", v, "ops@example.com")
		}
	})

	t.Run("env reference", func(t *testing.T) {
		v, err := r.Resolve("env:BC_FERRIES_PASSWORD")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if v != "hunter2" {
			t.Errorf("Resolve() = %q, want %q", v, "hunter2")
		}
	})

	t.Run("missing keyring entry", func(t *testing.T) {
		_, err := r.Resolve("keyring:nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, err := r.Resolve("vault:something")
		if !errors.Is(err, ErrInvalidRef) {
			t.Errorf("Resolve() error = %v, want ErrInvalidRef", err)
		}
	})

	t.Run("bare value is rejected", func(t *testing.T) {
		_, err := r.Resolve("hunter2")
		if !errors.Is(err, ErrInvalidRef) {
			t.Errorf("Resolve() error = %v, want ErrInvalidRef", err)
		}
	})
}

func TestResolver_ResolveAll(t *testing.T) {
	r := fakeResolver(map[string]string{
		"cc-number": "4111111111111111",
		"cc-cvv":    "123",
	}, nil)

	t.Run("all present", func(t *testing.T) {
		values, err := r.ResolveAll(map[string]string{
			"number": "keyring:cc-number",
			"cvv":    "keyring:cc-cvv",
		})
		if err != nil {
			t.Fatalf("ResolveAll() error = %v", err)
		}
		if values["number"] != "4111111111111111" || values["cvv"] != "123" {
			t.Errorf("ResolveAll() = %v", values)
		}
	})

	t.Run("fails on first missing reference", func(t *testing.T) {
		_, err := r.ResolveAll(map[string]string{
			"number": "keyring:cc-number",
			"expiry": "keyring:cc-expiry",
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ResolveAll() error = %v, want ErrNotFound", err)
		}
	})
}
