package cmd

import (
	"github.com/spf13/cobra"
)

var restartDomain string

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart an application's service",
	RunE:  runRestart,
}

func init() {
	rootCmd.AddCommand(restartCmd)
	restartCmd.Flags().StringVar(&restartDomain, "domain", "", "domain to restart (required)")
	restartCmd.MarkFlagRequired("domain")
}

func runRestart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := newManager(cfg).Restart(cmd.Context(), restartDomain); err != nil {
		return err
	}
	output().Success("%s restarted", restartDomain)
	return nil
}
