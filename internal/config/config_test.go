package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Transport != TransportHTTP || cfg.PollInterval() != time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)

	cfg := DefaultGlobalConfig()
	cfg.BackendURL = "https://migrate.example:8443"
	cfg.PollIntervalMS = 250
	if err := SaveFile(path, cfg); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.BackendURL != cfg.BackendURL || got.PollIntervalMS != 250 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestLoadFileKeepsDefaultsForOmittedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	os.WriteFile(path, []byte(`{"log_level":"debug"}`), 0600)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" || cfg.RequestTimeout != 120 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	os.WriteFile(path, []byte(`{not json`), 0600)

	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"WLANMIGRATE_TRANSPORT":        "grpc",
		"WLANMIGRATE_RELAY_ADDR":       "relay:9000",
		"WLANMIGRATE_POLL_INTERVAL_MS": "500",
		"WLANMIGRATE_CONFIRM_MIGRATE":  "false",
	}
	cfg := DefaultGlobalConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Transport != TransportGRPC || cfg.RelayAddr != "relay:9000" || cfg.PollIntervalMS != 500 || cfg.ConfirmMigrate {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := DefaultGlobalConfig()
	err := cfg.ApplyEnv(func(k string) string {
		if k == "WLANMIGRATE_REQUEST_TIMEOUT_S" {
			return "soon"
		}
		return ""
	})
	if err == nil {
		t.Error("expected error for non-numeric timeout")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GlobalConfig)
		wantErr bool
	}{
		{"defaults", func(*GlobalConfig) {}, false},
		{"relative backend url", func(c *GlobalConfig) { c.BackendURL = "localhost" }, true},
		{"unknown transport", func(c *GlobalConfig) { c.Transport = "carrier-pigeon" }, true},
		{"grpc without relay", func(c *GlobalConfig) { c.Transport = TransportGRPC; c.RelayAddr = "" }, true},
		{"grpc ignores backend url", func(c *GlobalConfig) { c.Transport = TransportGRPC; c.BackendURL = "" }, false},
		{"poll too fast", func(c *GlobalConfig) { c.PollIntervalMS = 10 }, true},
		{"zero timeout", func(c *GlobalConfig) { c.RequestTimeout = 0 }, true},
		{"no data dir", func(c *GlobalConfig) { c.DataDir = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultGlobalConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
