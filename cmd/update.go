package cmd

import (
	"github.com/spf13/cobra"
)

var updateDomain string

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Pull the latest source and rebuild an application",
	Long: `Update an application in place: pull the tracked branch, reinstall
dependencies when missing, rebuild and restart. The app shows a maintenance
page while updating; on failure the previous version is restored.

Examples:
  webfleet update --domain app.example.com`,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringVar(&updateDomain, "domain", "", "domain to update (required)")
	updateCmd.MarkFlagRequired("domain")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := newManager(cfg).Update(cmd.Context(), updateDomain); err != nil {
		return err
	}
	output().Success("%s updated", updateDomain)
	return nil
}
