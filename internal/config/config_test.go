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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferryerrors "github.com/ferrymon/ferrymon/pkg/errors"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Monitor.From = "Departure Bay"
	cfg.Monitor.To = "Horseshoe Bay"
	cfg.Monitor.Date = "10/15/2025"
	cfg.Monitor.Time = "1:20 pm"
	cfg.Monitor.Party = Party{Adults: 2}
	return cfg
}

func TestLoad_NotConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := Load(path)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Load() error = %v, want ErrNotConfigured", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := validConfig()
	cfg.Monitor.Continuous = true
	cfg.Monitor.PollInterval = 30 * time.Second
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Departure Bay", loaded.Monitor.From)
	assert.Equal(t, "Horseshoe Bay", loaded.Monitor.To)
	assert.Equal(t, 30*time.Second, loaded.Monitor.PollInterval)
	assert.True(t, loaded.Monitor.Continuous)
	assert.Equal(t, 2, loaded.Monitor.Party.Adults)
}

func TestSave_RestrictivePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(validConfig(), path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode()&os.ModePerm)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	// A minimal file: every absent field must take its table default.
	minimal := `monitor:
  from: tsawwassen
  to: swartz_bay
  date: 12/25/2025
  time: 9:00 am
`
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, time.Hour, cfg.Monitor.Timeout)
	assert.Equal(t, 1, cfg.Monitor.Party.Adults)
	assert.True(t, cfg.Monitor.Vehicle)
	require.NotNil(t, cfg.Booking)
	assert.True(t, cfg.Booking.DryRun)
	assert.Equal(t, "under_7ft", cfg.Booking.VehicleHeight)
}

func TestLoad_BookingDateFallsBackToMonitorDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := validConfig()
	cfg.AutoBook = true
	cfg.Booking.Date = ""
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10/15/2025", loaded.Booking.Date)
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing route fields", func(t *testing.T) {
		cfg := validConfig()
		cfg.Monitor.From = ""

		var verr *ferryerrors.ValidationError
		err := cfg.Validate()
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "monitor.from", verr.Field)
	})

	t.Run("no counted passengers", func(t *testing.T) {
		cfg := validConfig()
		cfg.Monitor.Party = Party{Infants: 1}

		var verr *ferryerrors.ValidationError
		err := cfg.Validate()
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "monitor.party", verr.Field)
	})

	t.Run("poll interval below rate-limit floor", func(t *testing.T) {
		cfg := validConfig()
		cfg.Monitor.PollInterval = 5 * time.Second

		var verr *ferryerrors.ValidationError
		err := cfg.Validate()
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "monitor.poll_interval", verr.Field)
	})

	t.Run("auto-book requires complete secret references", func(t *testing.T) {
		cfg := validConfig()
		cfg.AutoBook = true
		cfg.Booking.Credentials = CredentialRefs{Email: "keyring:bcferries-email"}

		var verr *ferryerrors.ValidationError
		err := cfg.Validate()
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "booking.credentials.password", verr.Field)
	})

	t.Run("auto-book with full references passes", func(t *testing.T) {
		cfg := validConfig()
		cfg.AutoBook = true
		cfg.Booking.Credentials = CredentialRefs{
			Email:    "keyring:bcferries-email",
			Password: "keyring:bcferries-password",
		}
		cfg.Booking.Payment = PaymentRefs{
			Name:     "keyring:cc-name",
			Number:   "keyring:cc-number",
			Expiry:   "keyring:cc-expiry",
			CVV:      "keyring:cc-cvv",
			Address:  "keyring:cc-address",
			City:     "keyring:cc-city",
			Province: "keyring:cc-province",
			Postal:   "keyring:cc-postal",
		}
		assert.NoError(t, cfg.Validate())
	})
}
