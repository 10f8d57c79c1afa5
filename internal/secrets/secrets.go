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

// Package secrets resolves secret references from the configuration file
// into values. The configuration never stores credential or payment data in
// cleartext; it stores references which this package resolves at the moment
// of use.
//
// Reference formats:
//   - keyring:<name>  resolves <name> from the system keyring
//     (macOS Keychain, Secret Service on Linux, Credential Manager on Windows)
//   - env:<VAR>       resolves from the process environment
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// Service is the keyring service name all ferrymon entries live under.
const Service = "ferrymon"

var (
	// ErrNotFound is returned when a reference resolves to no stored value.
	ErrNotFound = errors.New("secret not found")

	// ErrInvalidRef is returned for references with an unknown scheme.
	ErrInvalidRef = errors.New("invalid secret reference")
)

// Resolver resolves secret references. The keyring and environment lookups
// are injectable so tests can run without a system keyring.
type Resolver struct {
	keyringGet func(service, key string) (string, error)
	getenv     func(key string) (string, bool)
}

// NewResolver creates a resolver backed by the system keyring and the
// process environment.
func NewResolver() *Resolver {
	return &Resolver{
		keyringGet: keyring.Get,
		getenv:     os.LookupEnv,
	}
}

// Resolve turns a reference like "keyring:bcferries-email" into its value.
func (r *Resolver) Resolve(ref string) (string, error) {
	scheme, name, ok := strings.Cut(ref, ":")
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %q (expected keyring:<name> or env:<VAR>)", ErrInvalidRef, ref)
	}

	switch scheme {
	case "keyring":
		value, err := r.keyringGet(Service, name)
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return "", fmt.Errorf("%w: keyring entry %q", ErrNotFound, name)
			}
			return "", fmt.Errorf("keyring access for %q: %w", name, err)
		}
		return value, nil

	case "env":
		value, ok := r.getenv(name)
		if !ok {
			return "", fmt.Errorf("%w: environment variable %q", ErrNotFound, name)
		}
		return value, nil

	default:
		return "", fmt.Errorf("%w: unknown scheme %q", ErrInvalidRef, scheme)
	}
}

// ResolveAll resolves every reference in refs, keyed by the same names.
// It fails on the first unresolvable reference so an incomplete auto-book
// setup is caught before the daemon starts.
func (r *Resolver) ResolveAll(refs map[string]string) (map[string]string, error) {
	values := make(map[string]string, len(refs))
	for name, ref := range refs {
		value, err := r.Resolve(ref)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		values[name] = value
	}
	return values, nil
}

// Set stores a value in the system keyring under the ferrymon service and
// returns the reference to record in the configuration.
func Set(name, value string) (string, error) {
	if err := keyring.Set(Service, name, value); err != nil {
		return "", fmt.Errorf("failed to store keyring entry %q: %w", name, err)
	}
	return "keyring:" + name, nil
}

// Delete removes a keyring entry. Missing entries are not an error.
func Delete(name string) error {
	err := keyring.Delete(Service, name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keyring entry %q: %w", name, err)
	}
	return nil
}
