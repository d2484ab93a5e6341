package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wlanmigrate/wlanmigrate/internal/config"
	"github.com/wlanmigrate/wlanmigrate/internal/core"
	"github.com/wlanmigrate/wlanmigrate/internal/logpoll"
	"github.com/wlanmigrate/wlanmigrate/internal/session"
)

// RegisterRunCommands adds the migration wizard commands.
func RegisterRunCommands(root *cobra.Command) {
	root.AddCommand(newRunCmd())
	root.AddCommand(newResetCmd())
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the migration wizard end to end",
		Long: `Connect to the Source, select resources, connect to the Target, convert,
assign services to profiles and execute the migration.

Passwords are read from WLANMIGRATE_SOURCE_PASSWORD / WLANMIGRATE_SOURCE_TOKEN /
WLANMIGRATE_TARGET_PASSWORD when set, otherwise prompted for.

Assignments take the form service=profile[:scope], where service is a
converted service id, name or SSID, profile is a Target profile id or name,
and scope is all, radio1, radio2 or radio3.

Example:
  wlanmigrate run --source-user admin --ssids 101,102 \
      --controller https://xiq.example.com --target-user admin \
      --assign-custom all --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			opts, err := wizardOptionsFromFlags(cmd, engine.Config)
			if err != nil {
				return err
			}

			b, err := newBackend(engine.Config, engine.Logger)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			poller, err := logpoll.New(logpoll.Config{
				Source:   b,
				Interval: engine.Config.PollInterval(),
				Logger:   engine.Logger,
				Deliver:  printBackendLogs(os.Stderr),
			})
			if err != nil {
				return err
			}

			yes, _ := cmd.Flags().GetBool("yes")
			var confirmer session.Confirmer = promptConfirmer(os.Stdin, os.Stderr, opts.Target.ControllerURL)
			if yes || !engine.Config.ConfirmMigrate {
				confirmer = session.ConfirmFunc(func(context.Context, session.Summary, session.ExecuteOptions) (bool, error) {
					return true, nil
				})
			}

			m, err := session.New(session.Config{
				Backend:   b,
				Vault:     engine.Vault,
				Audit:     engine.AuditLogger,
				Runs:      session.NewRunStore(engine.StateDB),
				Confirmer: confirmer,
				LogCursor: poller,
				Logger:    engine.Logger,
				Operator:  engine.Config.Operator,
			})
			if err != nil {
				return err
			}

			return runWithPoller(ctx, m, poller, opts, os.Stdout, engine.Logger)
		},
	}

	cmd.Flags().String("source-user", "", "Source username (omit to use an API token)")
	cmd.Flags().String("region", "", "Source API region (default: config default_region)")
	cmd.Flags().Bool("inventory-only", false, "Print the Source inventory and stop")
	cmd.Flags().StringSlice("ssids", nil, "SSID ids to migrate, or \"all\"")
	cmd.Flags().StringSlice("vlans", nil, "VLAN ids to migrate, or \"all\"")
	cmd.Flags().StringSlice("radius", nil, "RADIUS server ids to migrate, or \"all\"")
	cmd.Flags().Bool("no-auto-vlans", false, "Without --vlans, do not select the VLANs referenced by the selected SSIDs")
	cmd.Flags().String("controller", "", "Target controller URL")
	cmd.Flags().String("target-user", "", "Target username")
	cmd.Flags().StringArray("assign", nil, "Assignment service=profile[:scope] (repeatable)")
	cmd.Flags().String("assign-all", "", "Assign every service to every assignable profile with this scope")
	cmd.Flags().String("assign-custom", "", "Assign every service to every custom profile with this scope")
	cmd.Flags().Bool("dry-run", false, "Render the migration without pushing it to the Target")
	cmd.Flags().String("ssid-status", string(core.SSIDEnabled), "State of migrated SSIDs: enabled or disabled")
	cmd.Flags().Bool("yes", false, "Do not ask for confirmation before a real migration")
	cmd.Flags().Bool("worst-sites", false, "Show the worst sites after a real migration")
	cmd.Flags().Bool("export", false, "Write an XLSX workbook and JSON results to <data_dir>/exports")
	cmd.Flags().String("export-dir", "", "Write the export to this directory instead")

	return cmd
}

// wizardOptionsFromFlags reads the run flags and collects the secrets.
func wizardOptionsFromFlags(cmd *cobra.Command, cfg config.GlobalConfig) (wizardOptions, error) {
	var opts wizardOptions

	user, _ := cmd.Flags().GetString("source-user")
	region, _ := cmd.Flags().GetString("region")
	if region == "" {
		region = cfg.DefaultRegion
	}
	opts.Source = core.SourceCredentials{Username: user, Region: region}
	if user != "" {
		pw, err := readSecret("Source password", "WLANMIGRATE_SOURCE_PASSWORD")
		if err != nil {
			return opts, err
		}
		opts.Source.Password = pw
	} else {
		token, err := readSecret("Source API token", "WLANMIGRATE_SOURCE_TOKEN")
		if err != nil {
			return opts, err
		}
		opts.Source.APIToken = token
	}

	opts.InventoryOnly, _ = cmd.Flags().GetBool("inventory-only")
	if opts.InventoryOnly {
		return opts, nil
	}

	ssids, _ := cmd.Flags().GetStringSlice("ssids")
	vlans, _ := cmd.Flags().GetStringSlice("vlans")
	radius, _ := cmd.Flags().GetStringSlice("radius")
	noAuto, _ := cmd.Flags().GetBool("no-auto-vlans")
	opts.SSIDs, opts.VLANs, opts.Radius = splitIDs(ssids), splitIDs(vlans), splitIDs(radius)
	opts.AutoVLANs = !noAuto

	controller, _ := cmd.Flags().GetString("controller")
	targetUser, _ := cmd.Flags().GetString("target-user")
	if controller == "" || targetUser == "" {
		return opts, fmt.Errorf("--controller and --target-user are required")
	}
	pw, err := readSecret("Target password", "WLANMIGRATE_TARGET_PASSWORD")
	if err != nil {
		return opts, err
	}
	opts.Target = core.TargetCredentials{ControllerURL: controller, Username: targetUser, Password: pw}

	opts.Assign, _ = cmd.Flags().GetStringArray("assign")
	opts.AssignAll, _ = cmd.Flags().GetString("assign-all")
	opts.AssignCustom, _ = cmd.Flags().GetString("assign-custom")

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	status, _ := cmd.Flags().GetString("ssid-status")
	ssidStatus, err := core.ParseSSIDStatus(status)
	if err != nil {
		return opts, err
	}
	opts.Execute = session.ExecuteOptions{DryRun: dryRun, SSIDStatus: ssidStatus}

	opts.WorstSites, _ = cmd.Flags().GetBool("worst-sites")
	opts.ExportDir, _ = cmd.Flags().GetString("export-dir")
	if exp, _ := cmd.Flags().GetBool("export"); exp && opts.ExportDir == "" {
		opts.ExportDir = filepath.Join(cfg.DataDir, "exports")
	}
	return opts, nil
}

// runWithPoller runs the wizard while the log poller streams backend output.
// The poller stops as soon as the wizard returns.
func runWithPoller(ctx context.Context, m *session.Machine, poller *logpoll.Poller, opts wizardOptions, out io.Writer, logger zerolog.Logger) error {
	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	g, gctx := errgroup.WithContext(pollCtx)

	g.Go(func() error {
		return poller.Run(gctx)
	})
	g.Go(func() error {
		defer stopPolling()
		err := runWizard(gctx, m, opts, out)
		switch step := m.Step(); {
		case ctx.Err() != nil:
			logger.Info().Str("step", string(step)).Msg("interrupted, resetting session")
			m.Reset(context.WithoutCancel(ctx))
		case step.IsError():
			logger.Warn().Str("step", string(step)).Msg("wizard stopped at a failed backend call")
		}
		return err
	})

	err := g.Wait()
	if ctx.Err() == nil {
		// Flush whatever the backend logged after the last tick.
		poller.PollOnce(ctx)
	}
	return err
}

func printBackendLogs(w io.Writer) func([]core.LogEntry) {
	return func(entries []core.LogEntry) {
		for _, e := range entries {
			fmt.Fprintf(w, "  [backend %s] %s\n", strings.ToLower(e.Level), e.Message)
		}
	}
}

// promptConfirmer asks on w and reads a y/N answer from r.
func promptConfirmer(r io.Reader, w io.Writer, controller string) session.Confirmer {
	reader := bufio.NewReader(r)
	return session.ConfirmFunc(func(_ context.Context, s session.Summary, opts session.ExecuteOptions) (bool, error) {
		fmt.Fprintf(w, "Migrate %d SSIDs, %d VLANs, %d RADIUS servers and %d assignments to %s (SSIDs %s)? [y/N]: ",
			s.SSIDs, s.VLANs, s.Radius, s.Assignments, controller, opts.SSIDStatus)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	})
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the migration backend's session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			b, err := newBackend(engine.Config, engine.Logger)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Backend session reset.")
			return nil
		},
	}
}
