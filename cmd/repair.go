package cmd

import (
	"github.com/spf13/cobra"
)

var repairDomain string

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Regenerate an application's managed files and restart it",
	Long: `Rebuild the environment file, nginx vhost and systemd unit for an
application from its registry record, then restart the service. Use this
after manual edits or a partial failure left the generated files broken.

Examples:
  webfleet repair --domain app.example.com`,
	RunE: runRepair,
}

func init() {
	rootCmd.AddCommand(repairCmd)
	repairCmd.Flags().StringVar(&repairDomain, "domain", "", "domain to repair (required)")
	repairCmd.MarkFlagRequired("domain")
}

func runRepair(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := newManager(cfg).RepairApp(cmd.Context(), repairDomain); err != nil {
		return err
	}
	output().Success("%s repaired", repairDomain)
	return nil
}
