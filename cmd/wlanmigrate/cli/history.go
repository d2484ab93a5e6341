package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wlanmigrate/wlanmigrate/internal/session"
)

// RegisterHistoryCommands adds migration run history commands.
func RegisterHistoryCommands(root *cobra.Command) {
	histCmd := &cobra.Command{
		Use:   "history",
		Short: "Show past migration runs",
	}

	histCmd.AddCommand(newHistoryListCmd())
	histCmd.AddCommand(newHistoryShowCmd())

	root.AddCommand(histCmd)
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			runs, err := session.NewRunStore(engine.StateDB).List(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No migration runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSESSION\tSTARTED\tMODE\tSSIDS\tSERVICES\tASSIGNMENTS\tSTATUS")
			for _, r := range runs {
				mode := "live"
				if r.DryRun {
					mode = "dry-run"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					r.UUID[:8], r.SessionUUID[:8], r.StartedAt.Local().Format(time.DateTime),
					mode, r.SSIDStatus, r.Services, r.Assignments, r.Status)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum runs to show (0 for all)")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-uuid-prefix>",
		Short: "Show one run including its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			runs, err := session.NewRunStore(engine.StateDB).List(0)
			if err != nil {
				return err
			}
			var match *session.Run
			for i := range runs {
				if len(args[0]) <= len(runs[i].UUID) && runs[i].UUID[:len(args[0])] == args[0] {
					if match != nil {
						return fmt.Errorf("run prefix %q is ambiguous", args[0])
					}
					match = &runs[i]
				}
			}
			if match == nil {
				return fmt.Errorf("no run matches %q", args[0])
			}

			data, err := json.MarshalIndent(match, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
