// wlanmigrate drives a wireless configuration migration from a Source
// cloud-managed WLAN to a Target on-premises controller through the
// migration backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wlanmigrate/wlanmigrate/cmd/wlanmigrate/cli"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "wlanmigrate",
		Short: "wlanmigrate — WLAN configuration migration wizard",
		Long: `wlanmigrate connects to a Source WLAN management system, lets you pick the
SSIDs, VLANs and RADIUS servers to move, converts them through the migration
backend, assigns the converted services to Target profiles and executes the
migration (dry run first, then for real).

Credentials are held in memory for the duration of one run only.`,
		Version:      version,
		SilenceUsage: true,
	}

	cli.RegisterRunCommands(rootCmd)
	cli.RegisterStatusCommands(rootCmd)
	cli.RegisterWidgetCommands(rootCmd)
	cli.RegisterHistoryCommands(rootCmd)
	cli.RegisterAuditCommands(rootCmd)
	cli.RegisterConfigCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
