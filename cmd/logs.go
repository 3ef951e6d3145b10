package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	logsDomain string
	logsLines  int
	logsFollow bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show an application's service logs",
	Long: `Show the journal for an application's service.

Examples:
  webfleet logs --domain app.example.com
  webfleet logs --domain app.example.com --lines 200
  webfleet logs --domain app.example.com --follow`,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().StringVar(&logsDomain, "domain", "", "domain to show logs for (required)")
	logsCmd.Flags().IntVar(&logsLines, "lines", 50, "number of lines to show")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "stream new lines as they arrive")
	logsCmd.MarkFlagRequired("domain")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	m := newManager(cfg)

	if logsFollow {
		// -f never returns; stream straight to the terminal until ^C
		return m.FollowLogs(cmd.Context(), os.Stdout, logsDomain, logsLines)
	}

	text, err := m.Logs(cmd.Context(), logsDomain, logsLines)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}
