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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	ferryerrors "github.com/ferrymon/ferrymon/pkg/errors"
)

var (
	// ErrNotConfigured is returned when no configuration file exists yet.
	ErrNotConfigured = errors.New("not configured (run 'ferrymon config' first)")
)

// MinPollInterval is the smallest permitted polling cadence. Shorter
// intervals risk upstream rate limiting.
const MinPollInterval = 10 * time.Second

// Party holds the passenger counts for a sailing.
type Party struct {
	// Adults is the number of adult passengers (12+).
	Adults int `yaml:"adults"`
	// Children is the number of child passengers (5-11).
	Children int `yaml:"children"`
	// Seniors is the number of senior passengers (65+).
	Seniors int `yaml:"seniors"`
	// Infants is the number of infants (0-4, travel free).
	Infants int `yaml:"infants"`
}

// Counted returns the number of fare-paying passengers. Infants travel free
// and do not count toward the at-least-one-passenger requirement.
func (p Party) Counted() int {
	return p.Adults + p.Children + p.Seniors
}

// MonitorConfig describes what to watch for. It is immutable once a daemon
// has been started with it; changing it requires a stop/start cycle.
type MonitorConfig struct {
	// From is the departure terminal (e.g., "Departure Bay", "tsawwassen").
	From string `yaml:"from"`
	// To is the arrival terminal (e.g., "Horseshoe Bay", "swartz_bay").
	To string `yaml:"to"`
	// Date is the departure date in MM/DD/YYYY format.
	Date string `yaml:"date"`
	// Time is the departure time (e.g., "1:20 pm", "13:20").
	Time string `yaml:"time"`

	Party Party `yaml:"party"`

	// Vehicle is true when travelling with a vehicle, false for walk-on.
	Vehicle bool `yaml:"vehicle"`

	// PollInterval is the cadence the prober checks availability at.
	// Default: 60s. Must be at least MinPollInterval.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout is the maximum duration a single monitoring cycle waits for
	// availability before giving up. Default: 1h.
	Timeout time.Duration `yaml:"timeout"`

	// Continuous re-enters monitoring after a timed-out cycle instead of
	// terminating. The daemon then runs until explicitly stopped.
	Continuous bool `yaml:"continuous"`
}

// Route returns a human-readable route description.
func (m MonitorConfig) Route() string {
	return m.From + " -> " + m.To
}

// CredentialRefs holds secret references for the booking account.
// Values are references (e.g., "keyring:bcferries-email"), never cleartext.
type CredentialRefs struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// PaymentRefs holds secret references for the payment instrument.
type PaymentRefs struct {
	Name     string `yaml:"name"`
	Number   string `yaml:"number"`
	Expiry   string `yaml:"expiry"`
	CVV      string `yaml:"cvv"`
	Address  string `yaml:"address"`
	City     string `yaml:"city"`
	Province string `yaml:"province"`
	Postal   string `yaml:"postal"`
	Country  string `yaml:"country"`
}

// BookingConfig describes the dependent booking action. Present only when
// auto-book is enabled.
type BookingConfig struct {
	// Date is the booking date in MM/DD/YYYY format. May differ from the
	// monitoring date. Defaults to the monitoring date when empty.
	Date string `yaml:"date,omitempty"`

	// VehicleHeight is the vehicle height bucket (e.g., "under_7ft").
	VehicleHeight string `yaml:"vehicle_height"`
	// VehicleLength is the vehicle length bucket (e.g., "under_20ft").
	VehicleLength string `yaml:"vehicle_length"`

	Credentials CredentialRefs `yaml:"credentials"`
	Payment     PaymentRefs    `yaml:"payment"`

	// DryRun runs the executor through every step short of payment
	// submission. Disabling it requires the live-booking confirmation
	// token at start time.
	DryRun bool `yaml:"dry_run"`
}

// Config is the full durable configuration record.
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`

	// AutoBook triggers the booking executor when availability is found.
	AutoBook bool `yaml:"auto_book"`

	// Booking must be present and complete when AutoBook is true.
	Booking *BookingConfig `yaml:"booking,omitempty"`
}

// Default returns the configuration defaults table. Every field with a
// default gets it here, in one place, rather than via scattered fallbacks
// at read sites.
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Party:        Party{Adults: 1},
			Vehicle:      true,
			PollInterval: 60 * time.Second,
			Timeout:      time.Hour,
		},
		Booking: &BookingConfig{
			VehicleHeight: "under_7ft",
			VehicleLength: "under_20ft",
			DryRun:        true,
		},
	}
}

// Load reads the configuration from path. If path is empty, the default
// XDG location is used. Defaults are applied before the file contents, so
// absent fields take their table value. Returns ErrNotConfigured when the
// file does not exist.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotConfigured
		}
		return nil, ferryerrors.NewConfigError("", "failed to read config file", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, ferryerrors.NewConfigError("", "failed to parse config file", err)
	}

	if cfg.Booking != nil && cfg.Booking.Date == "" {
		cfg.Booking.Date = cfg.Monitor.Date
	}

	return cfg, nil
}

// Save writes the configuration to path, creating parent directories as
// needed. If path is empty, the default XDG location is used. The write is
// a temp-file-plus-rename so concurrent readers see either the old or the
// new file, never a torn mix.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	return nil
}

// Validate checks the configuration invariants. It returns the first
// violation as a *ValidationError with a field name and suggestion.
func (c *Config) Validate() error {
	m := c.Monitor

	if m.From == "" {
		return ferryerrors.NewValidationError("monitor.from", "departure terminal is required", "set it with 'ferrymon config'")
	}
	if m.To == "" {
		return ferryerrors.NewValidationError("monitor.to", "arrival terminal is required", "set it with 'ferrymon config'")
	}
	if m.Date == "" {
		return ferryerrors.NewValidationError("monitor.date", "departure date is required", "use MM/DD/YYYY format, e.g. 10/15/2025")
	}
	if m.Time == "" {
		return ferryerrors.NewValidationError("monitor.time", "departure time is required", "e.g. '1:20 pm' or '13:20'")
	}
	if m.Party.Counted() < 1 {
		return ferryerrors.NewValidationError("monitor.party", "at least one counted passenger is required", "infants travel free and do not count")
	}
	if m.PollInterval <= 0 {
		return ferryerrors.NewValidationError("monitor.poll_interval", "poll interval must be positive", "60s is a safe default")
	}
	if m.PollInterval < MinPollInterval {
		return ferryerrors.NewValidationError("monitor.poll_interval",
			fmt.Sprintf("poll interval below %s risks upstream rate limits", MinPollInterval),
			"use 10s or longer")
	}
	if m.Timeout <= 0 {
		return ferryerrors.NewValidationError("monitor.timeout", "timeout must be positive", "1h is a safe default")
	}

	if c.AutoBook {
		if err := c.validateBooking(); err != nil {
			return err
		}
	}

	return nil
}

// validateBooking checks that the booking record carries every credential
// and payment reference. The daemon refuses to start an auto-book run that
// would fail at the payment step hours later.
func (c *Config) validateBooking() error {
	b := c.Booking
	if b == nil {
		return ferryerrors.NewValidationError("booking", "auto-book is enabled but no booking configuration exists", "run 'ferrymon config' to set it up")
	}

	required := []struct {
		field, value string
	}{
		{"booking.credentials.email", b.Credentials.Email},
		{"booking.credentials.password", b.Credentials.Password},
		{"booking.payment.name", b.Payment.Name},
		{"booking.payment.number", b.Payment.Number},
		{"booking.payment.expiry", b.Payment.Expiry},
		{"booking.payment.cvv", b.Payment.CVV},
		{"booking.payment.address", b.Payment.Address},
		{"booking.payment.city", b.Payment.City},
		{"booking.payment.province", b.Payment.Province},
		{"booking.payment.postal", b.Payment.Postal},
	}
	for _, r := range required {
		if r.value == "" {
			return ferryerrors.NewValidationError(r.field, "secret reference is required for auto-book", "store the value with 'ferrymon config' and reference it as keyring:<name>")
		}
	}

	return nil
}
