package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wlanmigrate/wlanmigrate/internal/core"
	"github.com/wlanmigrate/wlanmigrate/internal/logpoll"
)

// RegisterStatusCommands adds the backend status command.
func RegisterStatusCommands(root *cobra.Command) {
	root.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the migration backend's progress and log",
		RunE: func(cmd *cobra.Command, args []string) error {
			follow, _ := cmd.Flags().GetBool("follow")
			tail, _ := cmd.Flags().GetInt("tail")

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

			if !follow {
				report, err := b.PollStatus(cmd.Context())
				if err != nil {
					return err
				}
				printStatus(os.Stdout, report, tail)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			last := core.StatusReport{}
			poller, err := logpoll.New(logpoll.Config{
				Source:   b,
				Interval: engine.Config.PollInterval(),
				Logger:   engine.Logger,
				Deliver:  printBackendLogs(os.Stdout),
				Progress: func(r core.StatusReport) {
					if r.Status != last.Status || r.Progress != last.Progress || r.CurrentStep != last.CurrentStep {
						fmt.Fprintf(os.Stdout, "%s %d%% %s\n", r.Status, r.Progress, r.CurrentStep)
					}
					last = r
				},
			})
			if err != nil {
				return err
			}
			poller.PollOnce(ctx)
			return poller.Run(ctx)
		},
	}

	cmd.Flags().BoolP("follow", "f", false, "Keep polling until interrupted")
	cmd.Flags().Int("tail", 20, "Log lines to show (0 for all)")
	return cmd
}

func printStatus(w io.Writer, r core.StatusReport, tail int) {
	fmt.Fprintf(w, "Status:   %s\n", r.Status)
	fmt.Fprintf(w, "Progress: %d%%\n", r.Progress)
	if r.CurrentStep != "" {
		fmt.Fprintf(w, "Step:     %s\n", r.CurrentStep)
	}
	logs := r.Logs
	if tail > 0 && len(logs) > tail {
		logs = logs[len(logs)-tail:]
	}
	for _, e := range logs {
		fmt.Fprintf(w, "  %s [%s] %s\n", e.Timestamp, e.Level, e.Message)
	}
}
