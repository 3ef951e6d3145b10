package cmd

import (
	"github.com/spf13/cobra"

	"github.com/webfleet-sh/webfleet/pkg/validator"
)

var (
	sslDomain string
	sslEmail  string
)

var sslCmd = &cobra.Command{
	Use:   "ssl",
	Short: "Provision a TLS certificate for a deployed application",
	Long: `Request a Let's Encrypt certificate for an already-deployed application
and switch its vhost to HTTPS with an HTTP redirect. The domain must resolve
to this host first.

Examples:
  webfleet ssl --domain app.example.com
  webfleet ssl --domain app.example.com --email ops@example.com`,
	RunE: runSSL,
}

func init() {
	rootCmd.AddCommand(sslCmd)
	sslCmd.Flags().StringVar(&sslDomain, "domain", "", "domain to provision (required)")
	sslCmd.Flags().StringVar(&sslEmail, "email", "", "certificate contact email (overrides config)")
	sslCmd.MarkFlagRequired("domain")
}

func runSSL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if sslEmail != "" {
		if err := validator.Email(sslEmail); err != nil {
			return err
		}
		cfg.CertEmail = sslEmail
	}
	if err := newManager(cfg).ProvisionSSL(cmd.Context(), sslDomain); err != nil {
		return err
	}
	output().Success("certificate issued for %s", sslDomain)
	return nil
}
