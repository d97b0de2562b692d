package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Engine.TickSize != 0.25 {
		t.Fatalf("expected tick size default 0.25, got %v", cfg.Engine.TickSize)
	}
	if cfg.Engine.BaseSpreadThresholdTicks != 0.5 {
		t.Fatalf("expected spread threshold default 0.5, got %v", cfg.Engine.BaseSpreadThresholdTicks)
	}
	if cfg.Engine.WarmupUpdates != 200 {
		t.Fatalf("expected warmup default 200, got %v", cfg.Engine.WarmupUpdates)
	}
	if cfg.Engine.CancelTimeoutMS != 3000 {
		t.Fatalf("expected cancel timeout default 3000, got %v", cfg.Engine.CancelTimeoutMS)
	}
	if cfg.Kalman.InitP0 != 100.0 || cfg.Kalman.QBeta != 1e-12 || cfg.Kalman.QAlpha != 1e-6 || cfg.Kalman.RObs != 100.0 {
		t.Fatalf("unexpected kalman defaults: %+v", cfg.Kalman)
	}
	if cfg.Ridge.Lambda != 0.995 || cfg.Ridge.Alpha != 1e-4 {
		t.Fatalf("unexpected ridge defaults: %+v", cfg.Ridge)
	}
	if cfg.Iceberg.MinHidden != 200 || cfg.Iceberg.KRatio != 1.5 || cfg.Iceberg.BandTicks != 3 {
		t.Fatalf("unexpected iceberg defaults: %+v", cfg.Iceberg)
	}
	if cfg.Regime.ShortN != 60 || cfg.Regime.LongN != 600 || cfg.Regime.Trip != 3.0 || cfg.Regime.Reset != 2.0 {
		t.Fatalf("unexpected regime defaults: %+v", cfg.Regime)
	}
	if cfg.Feed.LeadSymbol != "ES" || cfg.Feed.BTCSymbol != "BTC" {
		t.Fatalf("unexpected symbol defaults: %+v", cfg.Feed)
	}
}

func TestLoadRejectsBadRidgeLambda(t *testing.T) {
	if _, err := Load(writeConfig(t, "ridge:\n  lambda: 0.9\n")); err == nil {
		t.Fatalf("lambda outside [0.99, 0.999] must be fatal")
	}
}

func TestLoadRejectsBadRidgeAlpha(t *testing.T) {
	if _, err := Load(writeConfig(t, "ridge:\n  alpha: 0.5\n")); err == nil {
		t.Fatalf("alpha outside [1e-5, 1e-2] must be fatal")
	}
}

func TestLoadRejectsBadOBIDecay(t *testing.T) {
	if _, err := Load(writeConfig(t, "engine:\n  obi_decay: 1.5\n")); err == nil {
		t.Fatalf("obi decay outside (0,1] must be fatal")
	}
}

func TestLoadRejectsInvertedRegimeWindows(t *testing.T) {
	if _, err := Load(writeConfig(t, "regime:\n  short_n: 600\n  long_n: 60\n")); err == nil {
		t.Fatalf("long window must exceed short window")
	}
}

func TestLoadRejectsTimescaleWithoutDSN(t *testing.T) {
	if _, err := Load(writeConfig(t, "timescale:\n  enabled: true\n")); err == nil {
		t.Fatalf("enabled timescale without dsn must be fatal")
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("empty config path must fail")
	}
}

func TestLoadEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "# comment\nTIMESCALE_DSN=\"postgres://local/test\"\nEMPTY\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("TIMESCALE_DSN", "")
	os.Unsetenv("TIMESCALE_DSN")
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env failed: %v", err)
	}
	if got := os.Getenv("TIMESCALE_DSN"); got != "postgres://local/test" {
		t.Fatalf("unexpected env value %q", got)
	}

	cfg := &Config{}
	ApplyEnvOverrides(cfg)
	if cfg.Timescale.DSN != "postgres://local/test" {
		t.Fatalf("env override not applied: %+v", cfg.Timescale)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file must not error, got %v", err)
	}
}
