// Package config manages wlanmigrate user-level configuration.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	ConfigDirName   = ".wlanmigrate"
	ConfigFileName  = "config.json"
	DefaultLogLevel = "info"
	EnvPrefix       = "WLANMIGRATE_"

	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// GlobalConfig holds user-level configuration for the wlanmigrate CLI.
type GlobalConfig struct {
	BackendURL     string `json:"backend_url"`   // HTTP backend base URL
	Transport      string `json:"transport"`     // http | grpc
	RelayAddr      string `json:"relay_addr"`    // host:port of wlanmigrate-relay
	RelayPKIDir    string `json:"relay_pki_dir"` // client cert bundle for the relay; empty = insecure
	LogLevel       string `json:"log_level"`
	PollIntervalMS int    `json:"poll_interval_ms"` // backend log polling interval
	RequestTimeout int    `json:"request_timeout_s"`
	DataDir        string `json:"data_dir"`      // state db, audit db, exports
	InstanceUUID   string `json:"instance_uuid"` // audit chain owner, generated on first run
	ConfirmMigrate bool   `json:"confirm_migrate"`
	DefaultRegion  string `json:"default_region"` // Source API region
	Operator       string `json:"operator"`
}

// DefaultGlobalConfig returns sensible defaults.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		BackendURL:     "http://127.0.0.1:5000",
		Transport:      TransportHTTP,
		RelayAddr:      "127.0.0.1:50151",
		LogLevel:       DefaultLogLevel,
		PollIntervalMS: 1000,
		RequestTimeout: 120,
		DataDir:        filepath.Join(ConfigDir(), "data"),
		ConfirmMigrate: true,
		DefaultRegion:  "Global",
		Operator:       "local",
	}
}

// PollInterval returns the polling interval as a duration.
func (c GlobalConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Timeout returns the per-request backend timeout.
func (c GlobalConfig) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// Validate checks the values that the rest of the program relies on.
func (c GlobalConfig) Validate() error {
	switch c.Transport {
	case TransportHTTP:
		u, err := url.Parse(c.BackendURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("backend_url %q is not an absolute URL", c.BackendURL)
		}
	case TransportGRPC:
		if c.RelayAddr == "" {
			return fmt.Errorf("relay_addr is required for grpc transport")
		}
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", TransportHTTP, TransportGRPC, c.Transport)
	}
	if c.PollIntervalMS < 100 {
		return fmt.Errorf("poll_interval_ms must be at least 100, got %d", c.PollIntervalMS)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout_s must be positive, got %d", c.RequestTimeout)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	return nil
}

// ApplyEnv overrides fields from WLANMIGRATE_* environment variables.
func (c *GlobalConfig) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"BACKEND_URL":    &c.BackendURL,
		"TRANSPORT":      &c.Transport,
		"RELAY_ADDR":     &c.RelayAddr,
		"RELAY_PKI_DIR":  &c.RelayPKIDir,
		"LOG_LEVEL":      &c.LogLevel,
		"DATA_DIR":       &c.DataDir,
		"DEFAULT_REGION": &c.DefaultRegion,
		"OPERATOR":       &c.Operator,
	}
	for name, field := range strs {
		if v := getenv(EnvPrefix + name); v != "" {
			*field = v
		}
	}

	ints := map[string]*int{
		"POLL_INTERVAL_MS":  &c.PollIntervalMS,
		"REQUEST_TIMEOUT_S": &c.RequestTimeout,
	}
	for name, field := range ints {
		v := getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*field = n
	}

	if v := getenv(EnvPrefix + "CONFIRM_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sCONFIRM_MIGRATE: %w", EnvPrefix, err)
		}
		c.ConfirmMigrate = b
	}
	return nil
}

// ConfigDir returns the global wlanmigrate config directory path.
func ConfigDir() string {
	if dir := os.Getenv(EnvPrefix + "HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ConfigDirName)
}

// LoadGlobalConfig loads ~/.wlanmigrate/config.json, falling back to defaults
// when the file is absent, then applies environment overrides.
func LoadGlobalConfig() (GlobalConfig, error) {
	cfg, err := LoadFile(filepath.Join(ConfigDir(), ConfigFileName))
	if err != nil {
		return GlobalConfig{}, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return GlobalConfig{}, err
	}
	return cfg, nil
}

// LoadFile reads a config file over the defaults. A missing file yields the defaults.
func LoadFile(path string) (GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return GlobalConfig{}, err
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return GlobalConfig{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// SaveGlobalConfig persists the global config to ~/.wlanmigrate/config.json.
func SaveGlobalConfig(cfg GlobalConfig) error {
	return SaveFile(filepath.Join(ConfigDir(), ConfigFileName), cfg)
}

// SaveFile writes cfg to path, creating the parent directory.
func SaveFile(path string, cfg GlobalConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
