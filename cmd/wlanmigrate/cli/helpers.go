package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/wlanmigrate/wlanmigrate/internal/backend"
	"github.com/wlanmigrate/wlanmigrate/internal/config"
	"github.com/wlanmigrate/wlanmigrate/internal/core"
	"github.com/wlanmigrate/wlanmigrate/internal/pki"
)

// loadEngine loads the global config, assigns an instance id on first use
// and opens the local databases.
func loadEngine() (*core.Engine, error) {
	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if core.EnsureInstanceUUID(&cfg) {
		if err := config.SaveGlobalConfig(cfg); err != nil {
			return nil, fmt.Errorf("saving instance id: %w", err)
		}
	}

	engine, err := core.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening data dir: %w", err)
	}
	return engine, nil
}

// backendClient is a Backend that may hold a connection.
type backendClient interface {
	backend.Backend
	io.Closer
}

type httpBackend struct{ *backend.HTTPClient }

func (httpBackend) Close() error { return nil }

// newBackend builds the configured backend transport.
func newBackend(cfg config.GlobalConfig, logger zerolog.Logger) (backendClient, error) {
	switch cfg.Transport {
	case config.TransportGRPC:
		if cfg.RelayPKIDir == "" {
			logger.Warn().Str("relay", cfg.RelayAddr).Msg("relay_pki_dir not set, dialing relay without TLS")
			return backend.DialRelay(cfg.RelayAddr, nil)
		}
		client, caPEM, err := pki.LoadClientDir(cfg.RelayPKIDir)
		if err != nil {
			return nil, fmt.Errorf("loading relay client certificate: %w", err)
		}
		creds, err := pki.ClientTransportCredentials(client, caPEM)
		if err != nil {
			return nil, err
		}
		return backend.DialRelay(cfg.RelayAddr, creds)
	default:
		c, err := backend.NewHTTPClient(cfg.BackendURL,
			backend.WithTimeout(cfg.Timeout()),
			backend.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return httpBackend{c}, nil
	}
}

// readSecret returns the value of env when set, otherwise prompts on the terminal.
func readSecret(prompt, env string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	fmt.Fprint(os.Stderr, prompt+": ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
	}
	return string(b), nil
}

// splitIDs turns comma separated flag values into ids.
func splitIDs(values []string) []core.ID {
	var ids []core.ID
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, core.ID(part))
			}
		}
	}
	return ids
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
