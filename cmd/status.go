package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var statusDomain string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show live status for one or all applications",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusDomain, "domain", "", "limit to one domain")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := output()
	m := newManager(cfg)

	domains := []string{statusDomain}
	if statusDomain == "" {
		doc, err := m.Registry().Load()
		if err != nil {
			return err
		}
		domains = domains[:0]
		for _, app := range doc.List() {
			domains = append(domains, app.Domain)
		}
		if len(domains) == 0 {
			out.Info("no applications deployed")
			return nil
		}
	}

	for _, domain := range domains {
		status, err := m.Status(cmd.Context(), domain)
		if err != nil {
			return err
		}
		out.Section(domain)
		out.KeyValue("type", status.App.AppType)
		out.KeyValue("port", strconv.Itoa(status.App.Port))
		out.KeyValue("service", status.ServiceState)
		out.KeyValue("nginx vhost", vhostLabel(status.VhostExists, status.VhostEnabled))
		out.KeyValue("reachable", strconv.FormatBool(status.Reachable))
		out.KeyValue("ssl", strconv.FormatBool(status.App.SSL))
	}
	return nil
}

func vhostLabel(exists, enabled bool) string {
	switch {
	case enabled:
		return "enabled"
	case exists:
		return "present but disabled"
	default:
		return "missing"
	}
}
