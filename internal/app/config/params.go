package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// oneToken is the smallest-unit value of one whole staking token
// (8 decimal places).
const oneToken = 100_000_000

// Params holds the protocol economics. Amounts are in the token's smallest
// unit. Zero-valued fields in the YAML file fall back to defaults.
type Params struct {
	MinStake         int64         `yaml:"min_stake"`
	AdmissionFee     int64         `yaml:"admission_fee"`
	PricePerRead     int64         `yaml:"price_per_read"`
	RatOutReward     int64         `yaml:"rat_out_reward"`
	InactivityReward int64         `yaml:"inactivity_reward"`
	SlashPenalty     int64         `yaml:"slash_penalty"`
	CooldownPeriod   time.Duration `yaml:"cooldown_period"`
	WaitingPeriod    time.Duration `yaml:"waiting_period"`
	InactivityWindow time.Duration `yaml:"inactivity_window"`
	RateLimitWindow  time.Duration `yaml:"rate_limit_window"`

	DeviationBps       int64 `yaml:"deviation_bps"`
	ExpulsionThreshold int   `yaml:"expulsion_threshold"`
	MaxSeedFillers     int   `yaml:"max_seed_fillers"`

	SweepSchedule string `yaml:"sweep_schedule"`
}

// DefaultParams returns the protocol defaults.
func DefaultParams() Params {
	return Params{
		MinStake:           100 * oneToken,
		AdmissionFee:       oneToken,
		PricePerRead:       oneToken / 10,
		RatOutReward:       2 * oneToken,
		InactivityReward:   oneToken,
		SlashPenalty:       10 * oneToken,
		CooldownPeriod:     72 * time.Hour,
		WaitingPeriod:      48 * time.Hour,
		InactivityWindow:   7 * 24 * time.Hour,
		RateLimitWindow:    time.Hour,
		DeviationBps:       100,
		ExpulsionThreshold: 5,
		MaxSeedFillers:     3,
		SweepSchedule:      "@every 10m",
	}
}

// LoadParams reads the parameters file at path, filling unset fields with
// defaults. An empty path returns the defaults.
func LoadParams(path string) (Params, error) {
	params := DefaultParams()
	if path == "" {
		return params, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("read params file: %w", err)
	}

	var loaded Params
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return Params{}, fmt.Errorf("parse params file: %w", err)
	}
	merge(&params, loaded)

	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

func merge(dst *Params, src Params) {
	if src.MinStake > 0 {
		dst.MinStake = src.MinStake
	}
	if src.AdmissionFee > 0 {
		dst.AdmissionFee = src.AdmissionFee
	}
	if src.PricePerRead > 0 {
		dst.PricePerRead = src.PricePerRead
	}
	if src.RatOutReward > 0 {
		dst.RatOutReward = src.RatOutReward
	}
	if src.InactivityReward > 0 {
		dst.InactivityReward = src.InactivityReward
	}
	if src.SlashPenalty > 0 {
		dst.SlashPenalty = src.SlashPenalty
	}
	if src.CooldownPeriod > 0 {
		dst.CooldownPeriod = src.CooldownPeriod
	}
	if src.WaitingPeriod > 0 {
		dst.WaitingPeriod = src.WaitingPeriod
	}
	if src.InactivityWindow > 0 {
		dst.InactivityWindow = src.InactivityWindow
	}
	if src.RateLimitWindow > 0 {
		dst.RateLimitWindow = src.RateLimitWindow
	}
	if src.DeviationBps > 0 {
		dst.DeviationBps = src.DeviationBps
	}
	if src.ExpulsionThreshold > 0 {
		dst.ExpulsionThreshold = src.ExpulsionThreshold
	}
	if src.MaxSeedFillers > 0 {
		dst.MaxSeedFillers = src.MaxSeedFillers
	}
	if src.SweepSchedule != "" {
		dst.SweepSchedule = src.SweepSchedule
	}
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if p.MinStake <= 0 {
		return errors.New("min_stake must be positive")
	}
	if p.SlashPenalty <= 0 {
		return errors.New("slash_penalty must be positive")
	}
	if p.DeviationBps <= 0 || p.DeviationBps >= 10_000 {
		return errors.New("deviation_bps must be between 1 and 9999")
	}
	if p.ExpulsionThreshold <= 0 {
		return errors.New("expulsion_threshold must be positive")
	}
	if p.MaxSeedFillers <= 0 {
		return errors.New("max_seed_fillers must be positive")
	}
	return nil
}
