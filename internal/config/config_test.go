package config

import "testing"

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := defaultConfig(t)

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Trading.PriceCap != 0.55 {
		t.Errorf("price_cap default = %v, want 0.55", cfg.Trading.PriceCap)
	}
	if cfg.Trading.ConfirmDelaySeconds != 120 {
		t.Errorf("confirm_delay_seconds default = %d, want 120", cfg.Trading.ConfirmDelaySeconds)
	}
	if cfg.Execution.Mode != "paper" {
		t.Errorf("execution.mode default = %q, want paper", cfg.Execution.Mode)
	}
	if cfg.Loop.TickSeconds != 60 || cfg.Loop.SnapshotSeconds != 30 {
		t.Errorf("loop defaults = %d/%d, want 60/30", cfg.Loop.TickSeconds, cfg.Loop.SnapshotSeconds)
	}
}

func TestWithSettingsOverridesFileValues(t *testing.T) {
	cfg := defaultConfig(t)

	eff, errs := cfg.WithSettings(map[string]string{
		"trading.price_cap":            "0.60",
		"day_night.max_response_seconds": "120",
		"execution.mode":               "live",
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if eff.Trading.PriceCap != 0.60 {
		t.Errorf("price_cap = %v, want 0.60", eff.Trading.PriceCap)
	}
	if eff.DayNight.MaxResponseSeconds != 120 {
		t.Errorf("max_response_seconds = %d, want 120", eff.DayNight.MaxResponseSeconds)
	}
	if eff.Execution.Mode != "live" {
		t.Errorf("execution.mode = %q, want live", eff.Execution.Mode)
	}

	// Base config stays untouched.
	if cfg.Trading.PriceCap != 0.55 || cfg.Execution.Mode != "paper" {
		t.Error("WithSettings must not mutate the receiver")
	}
}

func TestWithSettingsRejectsBadValues(t *testing.T) {
	cfg := defaultConfig(t)

	eff, errs := cfg.WithSettings(map[string]string{
		"trading.price_cap":    "not-a-number",
		"execution.mode":       "yolo",
		"nonexistent.key":      "1",
		"trading.cap_min_ticks": "5",
	})
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
	// The bad values are skipped, the good one applies.
	if eff.Trading.PriceCap != 0.55 {
		t.Errorf("bad price_cap must not apply, got %v", eff.Trading.PriceCap)
	}
	if eff.Trading.CapMinTicks != 5 {
		t.Errorf("cap_min_ticks = %d, want 5", eff.Trading.CapMinTicks)
	}
}

func TestValidateCatchesBadRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty assets", func(c *Config) { c.Trading.Assets = nil }},
		{"cap out of range", func(c *Config) { c.Trading.PriceCap = 1.5 }},
		{"zero min ticks", func(c *Config) { c.Trading.CapMinTicks = 0 }},
		{"bad night mode", func(c *Config) { c.DayNight.NightSessionMode = "MAYBE" }},
		{"bad exec mode", func(c *Config) { c.Execution.Mode = "shadow" }},
		{"live without key", func(c *Config) { c.Execution.Mode = "live"; c.Execution.EthPrivateKey = "" }},
		{"bad timezone", func(c *Config) { c.DayNight.Timezone = "Mars/Olympus" }},
		{"zero tick period", func(c *Config) { c.Loop.TickSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
