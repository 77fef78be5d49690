package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParams_Defaults(t *testing.T) {
	params, err := LoadParams("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if params != DefaultParams() {
		t.Fatalf("empty path should return defaults, got %#v", params)
	}
}

func TestLoadParams_MergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	raw := "min_stake: 500\nexpulsion_threshold: 9\nsweep_schedule: \"@every 1m\"\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	params, err := LoadParams(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if params.MinStake != 500 {
		t.Fatalf("min_stake = %d, want 500", params.MinStake)
	}
	if params.ExpulsionThreshold != 9 {
		t.Fatalf("expulsion_threshold = %d, want 9", params.ExpulsionThreshold)
	}
	if params.SweepSchedule != "@every 1m" {
		t.Fatalf("sweep_schedule = %q, want override", params.SweepSchedule)
	}
	// Unset fields keep their defaults.
	if params.SlashPenalty != DefaultParams().SlashPenalty {
		t.Fatalf("slash_penalty = %d, want default", params.SlashPenalty)
	}
}

func TestLoadParams_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(path, []byte("deviation_bps: 20000\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := LoadParams(path); err == nil {
		t.Fatal("out-of-range deviation should fail validation")
	}

	if _, err := LoadParams(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestOperatorSet(t *testing.T) {
	cfg := &Config{Operators: "op1, op2,,op3 "}
	set := cfg.OperatorSet()
	if len(set) != 3 || !set["op1"] || !set["op2"] || !set["op3"] {
		t.Fatalf("unexpected operator set: %v", set)
	}
}
