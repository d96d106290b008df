package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Point the file search at an empty directory so a stray config.yaml
	// in the working directory cannot leak into the test.
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for explicitly named missing file")
	}

	cfg, err = loadFromDir(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "./data/pto.db" {
		t.Errorf("unexpected default db path: %s", cfg.Database.Path)
	}
	if cfg.Accrual.AnnualSickHours != 40 || cfg.Accrual.AnnualVacHours != 40 {
		t.Errorf("unexpected default grants: %+v", cfg.Accrual)
	}
	if cfg.Accrual.RolloverCapHours != 0 {
		t.Errorf("rollover cap should default to unlimited (0), got %v", cfg.Accrual.RolloverCapHours)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.Interval != time.Hour {
		t.Errorf("unexpected default scheduler: %+v", cfg.Scheduler)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PTO_SERVER_PORT", "9999")
	t.Setenv("PTO_DB_PATH", ":memory:")
	t.Setenv("PTO_ACCRUAL_ANNUAL_SICK_HOURS", "60")

	cfg, err := loadFromDir(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected env port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("expected env db path, got %s", cfg.Database.Path)
	}
	if cfg.Accrual.AnnualSickHours != 60 {
		t.Errorf("expected env sick hours 60, got %v", cfg.Accrual.AnnualSickHours)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cfg, err := loadFromDir(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := *cfg
	bad.Server.Port = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected rejection of port 0")
	}

	bad = *cfg
	bad.Accrual.RolloverCapHours = -1
	if err := bad.Validate(); err == nil {
		t.Error("expected rejection of negative rollover cap")
	}

	bad = *cfg
	bad.Scheduler.Interval = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected rejection of zero interval while enabled")
	}
}

// loadFromDir runs Load with the file search rooted in an empty temp dir.
func loadFromDir(t *testing.T) (*Config, error) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	return Load("")
}
