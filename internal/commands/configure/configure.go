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

// Package configure implements the interactive configuration flow. Secrets
// entered here go straight into the OS keyring; the config file only ever
// holds references to them.
package configure

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ferrymon/ferrymon/internal/commands/shared"
	"github.com/ferrymon/ferrymon/internal/config"
	"github.com/ferrymon/ferrymon/internal/controller"
	"github.com/ferrymon/ferrymon/internal/secrets"
	"github.com/ferrymon/ferrymon/internal/state"
)

var dateRe = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// NewCommand creates the configure command.
func NewCommand() *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:     "configure",
		Aliases: []string{"config"},
		Short:   "Configure monitoring and auto-booking",
		Long: `Interactively configure what to monitor and, optionally, auto-booking.

Credentials and payment details are stored in the OS keyring; the config
file only records references to them. Disabling dry-run mints a
confirmation token that must be passed to 'ferrymon start --confirm-live'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if show {
				return runShow()
			}
			return runConfigure()
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Print the saved configuration and exit")

	return cmd
}

func runShow() error {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return shared.NewFailureError("failed to load configuration", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	return nil
}

func runConfigure() error {
	// Prefill from the saved config so re-running edits rather than resets.
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		cfg = config.Default()
	}

	if err := monitorForm(cfg); err != nil {
		return err
	}

	if cfg.AutoBook {
		if err := bookingForm(cfg); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	path := shared.GetConfigPath()
	if path == "" {
		path, err = config.ConfigPath()
		if err != nil {
			return err
		}
	}
	if err := config.Save(cfg, path); err != nil {
		return shared.NewFailureError("failed to save configuration", err)
	}

	fmt.Println(shared.RenderOK("configuration saved to " + path))

	if cfg.AutoBook && !cfg.Booking.DryRun {
		token, err := mintLiveToken()
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println(shared.RenderWarn("dry-run is DISABLED: the daemon will submit a real payment"))
		fmt.Println("To authorize, start with:")
		fmt.Println()
		fmt.Println("  " + shared.Bold.Render("ferrymon start --confirm-live "+token))
		fmt.Println()
		fmt.Println(shared.Muted.Render("The token is single-use. Re-run configure to mint another."))
	} else {
		fmt.Println(shared.Muted.Render("start monitoring with: ferrymon start"))
	}
	return nil
}

func monitorForm(cfg *config.Config) error {
	mon := &cfg.Monitor

	adults := strconv.Itoa(mon.Party.Adults)
	children := strconv.Itoa(mon.Party.Children)
	seniors := strconv.Itoa(mon.Party.Seniors)
	infants := strconv.Itoa(mon.Party.Infants)
	pollInterval := mon.PollInterval.String()
	timeout := mon.Timeout.String()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Departure terminal").
				Description("e.g. tsawwassen, horseshoe_bay, \"Departure Bay\"").
				Value(&mon.From).
				Validate(required("departure terminal")),
			huh.NewInput().
				Title("Arrival terminal").
				Value(&mon.To).
				Validate(required("arrival terminal")),
			huh.NewInput().
				Title("Sailing date").
				Description("MM/DD/YYYY").
				Value(&mon.Date).
				Validate(func(s string) error {
					if !dateRe.MatchString(s) {
						return fmt.Errorf("date must be MM/DD/YYYY")
					}
					return nil
				}),
			huh.NewInput().
				Title("Sailing time").
				Description("e.g. \"1:20 pm\"").
				Value(&mon.Time).
				Validate(required("sailing time")),
		),
		huh.NewGroup(
			huh.NewInput().Title("Adults (12+)").Value(&adults).Validate(count),
			huh.NewInput().Title("Children (5-11)").Value(&children).Validate(count),
			huh.NewInput().Title("Seniors (65+)").Value(&seniors).Validate(count),
			huh.NewInput().Title("Infants (0-4)").Value(&infants).Validate(count),
			huh.NewConfirm().
				Title("Travelling with a vehicle?").
				Value(&mon.Vehicle),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Poll interval").
				Description(fmt.Sprintf("How often to check (minimum %s)", config.MinPollInterval)).
				Value(&pollInterval).
				Validate(duration),
			huh.NewInput().
				Title("Timeout").
				Description("Give up on a monitoring cycle after this long").
				Value(&timeout).
				Validate(duration),
			huh.NewConfirm().
				Title("Continuous mode?").
				Description("Start a new cycle after each timeout instead of exiting").
				Value(&mon.Continuous),
			huh.NewConfirm().
				Title("Auto-book when space opens up?").
				Value(&cfg.AutoBook),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	mon.Party.Adults, _ = strconv.Atoi(adults)
	mon.Party.Children, _ = strconv.Atoi(children)
	mon.Party.Seniors, _ = strconv.Atoi(seniors)
	mon.Party.Infants, _ = strconv.Atoi(infants)
	mon.PollInterval, _ = time.ParseDuration(pollInterval)
	mon.Timeout, _ = time.ParseDuration(timeout)
	return nil
}

func bookingForm(cfg *config.Config) error {
	if cfg.Booking == nil {
		cfg.Booking = config.Default().Booking
	}
	bk := cfg.Booking
	dryRun := bk.DryRun

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Booking date").
				Description("MM/DD/YYYY; leave empty to book the monitored date").
				Value(&bk.Date).
				Validate(func(s string) error {
					if s != "" && !dateRe.MatchString(s) {
						return fmt.Errorf("date must be MM/DD/YYYY or empty")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Vehicle height").
				Options(
					huh.NewOption("Under 7 ft", "under_7ft"),
					huh.NewOption("Over 7 ft", "over_7ft"),
				).
				Value(&bk.VehicleHeight),
			huh.NewSelect[string]().
				Title("Vehicle length").
				Options(
					huh.NewOption("Under 20 ft", "under_20ft"),
					huh.NewOption("Over 20 ft", "over_20ft"),
				).
				Value(&bk.VehicleLength),
			huh.NewConfirm().
				Title("Keep dry-run enabled?").
				Description("Dry-run walks through every step but never submits payment").
				Value(&dryRun),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	bk.DryRun = dryRun

	// Account and payment secrets. Existing references are kept when the
	// input is left empty.
	prompts := []struct {
		title  string
		secret string // keyring entry name
		ref    *string
		masked bool
	}{
		{"BC Ferries account email", "bcferries-email", &bk.Credentials.Email, false},
		{"BC Ferries account password", "bcferries-password", &bk.Credentials.Password, true},
		{"Cardholder name", "cc-name", &bk.Payment.Name, false},
		{"Card number", "cc-number", &bk.Payment.Number, true},
		{"Card expiry (MM/YY)", "cc-expiry", &bk.Payment.Expiry, false},
		{"Card CVV", "cc-cvv", &bk.Payment.CVV, true},
		{"Billing address", "cc-address", &bk.Payment.Address, false},
		{"Billing city", "cc-city", &bk.Payment.City, false},
		{"Billing province", "cc-province", &bk.Payment.Province, false},
		{"Billing postal code", "cc-postal", &bk.Payment.Postal, false},
		{"Billing country", "cc-country", &bk.Payment.Country, false},
	}

	for _, p := range prompts {
		var value string
		title := p.title
		desc := ""
		if *p.ref != "" {
			desc = "leave empty to keep the stored value"
		}
		input := huh.NewInput().Title(title).Description(desc).Value(&value)
		if p.masked {
			input = input.EchoMode(huh.EchoModePassword)
		}
		validate := func(s string) error {
			if s == "" && *p.ref == "" {
				return fmt.Errorf("required")
			}
			return nil
		}
		if err := huh.NewForm(huh.NewGroup(input.Validate(validate))).Run(); err != nil {
			return err
		}
		if value == "" {
			continue
		}
		ref, err := secrets.Set(p.secret, value)
		if err != nil {
			return shared.NewFailureError("failed to store secret in keyring", err)
		}
		*p.ref = ref
	}

	return nil
}

func mintLiveToken() (string, error) {
	dir, err := config.StateDir()
	if err != nil {
		return "", err
	}
	store, err := state.NewStore(dir)
	if err != nil {
		return "", err
	}
	c := controller.New(controller.Options{Store: store})
	return c.MintLiveToken()
}

func required(name string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func count(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative number")
	}
	return nil
}

func duration(s string) error {
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("must be a duration like 60s or 5m")
	}
	return nil
}
