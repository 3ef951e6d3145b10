package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"os"

	"github.com/spf13/cobra"

	"github.com/webfleet-sh/webfleet/pkg/dashboard"
	"github.com/webfleet-sh/webfleet/pkg/logging"
	"github.com/webfleet-sh/webfleet/pkg/manager"
	"github.com/webfleet-sh/webfleet/pkg/progress"
	"github.com/webfleet-sh/webfleet/pkg/runner"
)

var (
	dashboardAddr     string
	dashboardDB       string
	dashboardUser     string
	dashboardPassword string
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"gui"},
	Short:   "Run the web dashboard",
	Long: `Serve the web dashboard: application CRUD, live monitoring and logs over
HTTP with session-cookie authentication. On first start an admin account is
created with the given (or default) credentials; change the password from
the settings page.

Examples:
  webfleet dashboard
  webfleet dashboard --addr :9000 --username admin --password s3cret`,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().StringVar(&dashboardAddr, "addr", ":8085", "listen address")
	dashboardCmd.Flags().StringVar(&dashboardDB, "db", "/var/lib/webfleet/dashboard.db", "dashboard database path")
	dashboardCmd.Flags().StringVar(&dashboardUser, "username", "admin", "initial admin username")
	dashboardCmd.Flags().StringVar(&dashboardPassword, "password", "", "initial admin password (default: generated and printed)")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := output()
	log := logging.NewFile(levelFor(cfg), "/var/log/webfleet/dashboard.log")

	store, err := dashboard.OpenStore(dashboardDB)
	if err != nil {
		return err
	}
	defer store.Close()

	secret, err := sessionSecret(store)
	if err != nil {
		return err
	}
	auth := dashboard.NewAuth(store, secret)

	password := dashboardPassword
	generated := false
	if password == "" {
		password = randomToken(12)
		generated = true
	}
	created, err := auth.EnsureDefaultUser(dashboardUser, password)
	if err != nil {
		return err
	}
	if created && generated {
		out.Info("created admin account %q with password %s", dashboardUser, password)
		out.Warning("change this password from the settings page")
	}

	// dashboard-triggered operations log instead of drawing progress bars
	mgr := manager.New(cfg, runner.NewLocal(true),
		manager.WithLogger(log),
		manager.WithProgress(&progress.Discard{}),
	)

	out.Info("dashboard listening on %s", dashboardAddr)
	return dashboard.NewServer(mgr, store, auth, log).Start(cmd.Context(), dashboardAddr)
}

// sessionSecret loads the token-signing secret, generating and persisting
// one on first run so sessions survive restarts.
func sessionSecret(store *dashboard.Store) (string, error) {
	if env := os.Getenv("WEBFLEET_SESSION_SECRET"); env != "" {
		return env, nil
	}
	secret, err := store.GetConfig("session_secret")
	if err != nil {
		return "", err
	}
	if secret != "" {
		return secret, nil
	}
	secret = randomToken(32)
	return secret, store.SetConfig("session_secret", secret)
}

func randomToken(bytes int) string {
	buf := make([]byte, bytes)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
