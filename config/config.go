/*
Package config provides JSON to Go circulation-policy conversion.

PURPOSE:
  Converts JSON policy definitions into circulation.LoanPolicy and
  circulation.FineSchedule values. This enables lending-rule configuration
  without code changes - librarians can adjust terms in JSON, and the
  loader creates the proper Go structs.

WHY JSON?
  - Non-developers can modify lending rules
  - Easy integration with an admin UI later
  - Version control for policy definitions

JSON SCHEMA:
  {
    "loan": {
      "term_days": 14,
      "horizon_days": 30
    },
    "fines": {
      "daily_rate": "2.00"
    }
  }

KEY FEATURES:
  - Validates structure and value ranges
  - Sets sensible defaults for omitted sections
  - Money parsed as decimal strings, never floats

USAGE:
  cfg, err := config.Load("./policy.json")
  if err != nil { ... }
  ledger := circulation.NewLoanLedger(store, nil, cfg.LoanPolicy(), fines)

SEE ALSO:
  - circulation/policy.go: LoanPolicy definition
  - circulation/fines.go: FineSchedule definition
  - cmd/server/main.go: flag-level overrides
*/
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/shelfwise/circulation-engine/circulation"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// Config is the JSON representation of the circulation rules.
type Config struct {
	Loan  LoanJSON  `json:"loan"`
	Fines FinesJSON `json:"fines"`
}

// LoanJSON configures the due-date window.
type LoanJSON struct {
	TermDays    int `json:"term_days,omitempty"`
	HorizonDays int `json:"horizon_days,omitempty"`
}

// FinesJSON configures overdue penalties. DailyRate is a decimal string
// ("2.00"); floats would drift.
type FinesJSON struct {
	DailyRate string `json:"daily_rate,omitempty"`
}

// =============================================================================
// LOADING
// =============================================================================

// Default returns the built-in rules: 14-day term, 30-day horizon, 2.00/day.
func Default() Config {
	policy := circulation.DefaultLoanPolicy()
	return Config{
		Loan:  LoanJSON{TermDays: policy.TermDays, HorizonDays: policy.HorizonDays},
		Fines: FinesJSON{DailyRate: circulation.DefaultFineSchedule().DailyRate.StringFixed(2)},
	}
}

// Load reads and validates a JSON config file. Omitted fields keep their
// defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a JSON config document.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Loan.TermDays <= 0 {
		return fmt.Errorf("loan.term_days must be positive, got %d", c.Loan.TermDays)
	}
	if c.Loan.HorizonDays < c.Loan.TermDays {
		return fmt.Errorf("loan.horizon_days (%d) cannot be shorter than loan.term_days (%d)",
			c.Loan.HorizonDays, c.Loan.TermDays)
	}
	rate, err := decimal.NewFromString(c.Fines.DailyRate)
	if err != nil {
		return fmt.Errorf("fines.daily_rate %q is not a decimal: %w", c.Fines.DailyRate, err)
	}
	if rate.IsNegative() {
		return fmt.Errorf("fines.daily_rate cannot be negative, got %s", c.Fines.DailyRate)
	}
	return nil
}

// =============================================================================
// CONVERSION
// =============================================================================

// LoanPolicy builds the domain policy. Call Validate first.
func (c Config) LoanPolicy() circulation.LoanPolicy {
	return circulation.LoanPolicy{TermDays: c.Loan.TermDays, HorizonDays: c.Loan.HorizonDays}
}

// FineSchedule builds the domain schedule. Call Validate first.
func (c Config) FineSchedule() circulation.FineSchedule {
	rate, _ := decimal.NewFromString(c.Fines.DailyRate)
	return circulation.FineSchedule{DailyRate: rate}
}
