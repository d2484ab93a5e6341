package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wlanmigrate/wlanmigrate/internal/audit"
	"github.com/wlanmigrate/wlanmigrate/internal/widgets"
)

// RegisterWidgetCommands adds results dashboard layout commands.
func RegisterWidgetCommands(root *cobra.Command) {
	widgetCmd := &cobra.Command{
		Use:   "widgets",
		Short: "Manage the results dashboard layout",
	}

	widgetCmd.AddCommand(newWidgetListCmd())
	widgetCmd.AddCommand(newWidgetToggleCmd())
	widgetCmd.AddCommand(newWidgetSizeCmd())
	widgetCmd.AddCommand(newWidgetReorderCmd())
	widgetCmd.AddCommand(newWidgetResetCmd())

	root.AddCommand(widgetCmd)
}

func printWidgets(out io.Writer, p widgets.Preferences) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tTITLE\tSIZE\tVISIBLE")
	for i, id := range p.Order {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, id, widgets.Title(id), p.Sizes[id], yesNo(p.Visibility[id]))
	}
	w.Flush()

	visible := p.VisibleOrder()
	if len(visible) == 0 {
		fmt.Fprintln(out, "\nDashboard: (all widgets hidden)")
		return
	}
	titles := make([]string, len(visible))
	for i, id := range visible {
		titles[i] = widgets.Title(id)
	}
	fmt.Fprintf(out, "\nDashboard: %s\n", strings.Join(titles, " | "))
}

// updateWidgets applies change to the stored layout, records it and prints the result.
func updateWidgets(action string, detail map[string]any, change func(*widgets.Store) (widgets.Preferences, error)) error {
	engine, err := loadEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	p, err := change(engine.Widgets)
	if err != nil {
		return err
	}
	detail["action"] = action
	if err := engine.AuditLogger.Log(audit.EventPreferencesChanged, engine.Config.Operator, "", "", detail); err != nil {
		engine.Logger.Warn().Err(err).Msg("audit write failed")
	}
	printWidgets(os.Stdout, p)
	return nil
}

func newWidgetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the dashboard layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			printWidgets(os.Stdout, engine.Widgets.Current())
			return nil
		},
	}
}

func newWidgetToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <widget-id>",
		Short: "Show or hide a widget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateWidgets("toggle", map[string]any{"widget": args[0]}, func(s *widgets.Store) (widgets.Preferences, error) {
				return s.ToggleVisibility(args[0])
			})
		},
	}
}

func newWidgetSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size <widget-id> <small|medium|large>",
		Short: "Set a widget's size",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := widgets.ParseSize(args[1])
			if err != nil {
				return err
			}
			return updateWidgets("size", map[string]any{"widget": args[0], "size": size}, func(s *widgets.Store) (widgets.Preferences, error) {
				return s.SetSize(args[0], size)
			})
		},
	}
}

func newWidgetReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <widget-id>...",
		Short: "Set the widget order; widgets not named follow in default order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := splitIDs(args)
			order := make([]string, len(ids))
			for i, id := range ids {
				order[i] = string(id)
			}
			return updateWidgets("reorder", map[string]any{"order": order}, func(s *widgets.Store) (widgets.Preferences, error) {
				return s.Reorder(order)
			})
		},
	}
}

func newWidgetResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the default dashboard layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateWidgets("reset", map[string]any{}, func(s *widgets.Store) (widgets.Preferences, error) {
				return s.ResetToDefault()
			})
		},
	}
}
