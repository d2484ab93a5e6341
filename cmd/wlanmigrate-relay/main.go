// wlanmigrate-relay exposes a migration backend to remote wizard hosts over
// gRPC with JSON payloads. Wizard clients authenticate with mutual TLS using
// certificates issued by the relay's own CA.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wlanmigrate/wlanmigrate/internal/backend"
	"github.com/wlanmigrate/wlanmigrate/internal/config"
	"github.com/wlanmigrate/wlanmigrate/internal/core"
	"github.com/wlanmigrate/wlanmigrate/internal/grpcapi"
	"github.com/wlanmigrate/wlanmigrate/internal/pki"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "wlanmigrate-relay",
		Short:        "wlanmigrate relay — remote access to a migration backend",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newInitPKICmd())
	rootCmd.AddCommand(newGenClientCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// defaultPKIDir is <data_dir>/pki of the current configuration.
func defaultPKIDir() string {
	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		cfg = config.DefaultGlobalConfig()
	}
	return filepath.Join(cfg.DataDir, "pki")
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			socket, _ := cmd.Flags().GetString("socket")
			backendURL, _ := cmd.Flags().GetString("backend-url")
			pkiDir, _ := cmd.Flags().GetString("pki-dir")
			insecure, _ := cmd.Flags().GetBool("insecure")

			cfg, err := config.LoadGlobalConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if core.EnsureInstanceUUID(&cfg) {
				if err := config.SaveGlobalConfig(cfg); err != nil {
					return fmt.Errorf("saving instance id: %w", err)
				}
			}
			if backendURL != "" {
				cfg.BackendURL = backendURL
			}
			// The relay always talks HTTP to the backend and keeps its own
			// audit chain apart from a wizard on the same host.
			cfg.Transport = config.TransportHTTP
			cfg.DataDir = filepath.Join(cfg.DataDir, "relay")

			engine, err := core.Open(cfg)
			if err != nil {
				return fmt.Errorf("opening data dir: %w", err)
			}
			defer engine.Close()

			client, err := backend.NewHTTPClient(cfg.BackendURL,
				backend.WithTimeout(cfg.Timeout()),
				backend.WithLogger(engine.Logger),
			)
			if err != nil {
				return err
			}
			svc := grpcapi.NewService(client, engine.AuditLogger, engine.Logger)

			var server *grpcapi.Server
			switch {
			case socket != "":
				fmt.Printf("Listening on unix socket %s\n", socket)
				server, err = grpcapi.NewServer(socket, svc)
			case insecure:
				fmt.Printf("WARNING: Starting in insecure mode (no mTLS) on %s\n", addr)
				server, err = grpcapi.NewTCPServer(addr, svc)
			default:
				tlsCfg, tlsErr := loadPKI(pkiDir)
				if tlsErr != nil {
					return fmt.Errorf("loading PKI from %s: %w\nRun 'wlanmigrate-relay init-pki' first, or use --insecure for local testing", pkiDir, tlsErr)
				}
				fmt.Printf("mTLS enabled (PKI: %s)\n", pkiDir)
				server, err = grpcapi.NewMTLSServer(addr, svc, tlsCfg)
			}
			if err != nil {
				return fmt.Errorf("starting relay: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Println("\nShutting down...")
				server.Stop()
			}()

			engine.Logger.Info().Str("addr", server.Addr().String()).Str("backend", cfg.BackendURL).Msg("relay ready")
			fmt.Printf("Relay ready on %s, forwarding to %s\n", server.Addr(), cfg.BackendURL)
			if err := server.Serve(); err != nil {
				return err
			}

			stats := svc.Stats()
			engine.Logger.Info().Int64("calls", stats.Calls).Int64("failures", stats.Failures).Msg("relay stopped")
			return nil
		},
	}

	cmd.Flags().String("addr", ":50151", "Listen address")
	cmd.Flags().String("socket", "", "Serve on a unix socket instead of TCP (no TLS)")
	cmd.Flags().String("backend-url", "", "Migration backend URL (default: config backend_url)")
	cmd.Flags().String("pki-dir", defaultPKIDir(), "PKI directory")
	cmd.Flags().Bool("insecure", false, "Disable mTLS (local testing only)")

	return cmd
}

func newInitPKICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-pki",
		Short: "Generate the relay CA and server certificate",
		Long: `Generate a self-signed CA and a relay server certificate. The CA signs
the client certificates of wizard hosts.

The PKI directory will contain:
  ca.crt      CA certificate (copied to every wizard host)
  ca.key      CA private key (keep secure)
  relay.crt   Relay server certificate
  relay.key   Relay server private key`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pkiDir, _ := cmd.Flags().GetString("pki-dir")
			hosts, _ := cmd.Flags().GetStringSlice("hosts")
			validityDays, _ := cmd.Flags().GetInt("validity-days")

			created, err := pki.InitDir(pkiDir, hosts, time.Duration(validityDays)*24*time.Hour)
			if err != nil {
				return err
			}
			if !created {
				return fmt.Errorf("PKI already initialized in %s (ca.crt exists)", pkiDir)
			}

			fmt.Printf("PKI initialized in %s\n", pkiDir)
			fmt.Printf("Issue wizard certificates with: wlanmigrate-relay gen-client --pki-dir %s --name <host> --output <dir>\n", pkiDir)
			return nil
		},
	}

	cmd.Flags().String("pki-dir", defaultPKIDir(), "PKI output directory")
	cmd.Flags().StringSlice("hosts", nil, "Relay hostnames/IPs for the certificate (localhost and 127.0.0.1 are always included)")
	cmd.Flags().Int("validity-days", 365, "Certificate validity in days")

	return cmd
}

func newGenClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen-client",
		Short: "Issue a client certificate for a wizard host",
		Long: `Issue a client certificate signed by the relay CA. The host name is
embedded in the certificate's Common Name.

The output directory receives client.crt, client.key and ca.crt. Point the
wizard at it with:
  wlanmigrate config set relay_pki_dir <output>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pkiDir, _ := cmd.Flags().GetString("pki-dir")
			name, _ := cmd.Flags().GetString("name")
			outputDir, _ := cmd.Flags().GetString("output")
			validityDays, _ := cmd.Flags().GetInt("validity-days")

			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if outputDir == "" {
				return fmt.Errorf("--output is required")
			}

			client, err := pki.IssueClient(pkiDir, name, time.Duration(validityDays)*24*time.Hour)
			if err != nil {
				return fmt.Errorf("issuing client certificate: %w (run init-pki first)", err)
			}
			caPEM, err := pki.LoadCACert(pkiDir)
			if err != nil {
				return err
			}
			if err := pki.WriteClientDir(outputDir, client, caPEM); err != nil {
				return err
			}

			fmt.Printf("Client certificate issued for %s\n", name)
			fmt.Printf("  Bundle: %s (client.crt, client.key, ca.crt)\n", outputDir)
			return nil
		},
	}

	cmd.Flags().String("pki-dir", defaultPKIDir(), "PKI directory containing the CA")
	cmd.Flags().String("name", "", "Wizard host name (required)")
	cmd.Flags().String("output", "", "Output directory for the client bundle (required)")
	cmd.Flags().Int("validity-days", 90, "Client certificate validity in days")

	return cmd
}

// loadPKI reads the relay certificate and CA from pkiDir.
func loadPKI(pkiDir string) (*grpcapi.TLSConfig, error) {
	relay, err := pki.LoadBundle(pkiDir, pki.RelayName)
	if err != nil {
		return nil, err
	}
	caPEM, err := pki.LoadCACert(pkiDir)
	if err != nil {
		return nil, err
	}
	return &grpcapi.TLSConfig{ServerCert: relay, CACertPEM: caPEM}, nil
}
