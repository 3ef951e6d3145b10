package cmd

import (
	"github.com/spf13/cobra"
)

var diagnoseDomain string

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Run read-only health checks",
	Long: `Check one application (service state, port, nginx config, connectivity)
or, without --domain, the host prerequisites. Nothing is modified.

Examples:
  webfleet diagnose
  webfleet diagnose --domain app.example.com`,
	RunE: runDiagnose,
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
	diagnoseCmd.Flags().StringVar(&diagnoseDomain, "domain", "", "domain to check (host checks when omitted)")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := output()
	m := newManager(cfg)

	issues := m.CheckPrerequisites()
	if diagnoseDomain != "" {
		appIssues, err := m.Diagnose(cmd.Context(), diagnoseDomain)
		if err != nil {
			return err
		}
		issues = append(issues, appIssues...)
	}

	if len(issues) == 0 {
		out.Success("no problems found")
		return nil
	}
	for _, issue := range issues {
		if issue.Severity == "error" {
			out.Error("%s", issue.Message)
		} else {
			out.Warning("%s", issue.Message)
		}
	}
	return nil
}
