package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/webfleet-sh/webfleet/pkg/manager"
)

var (
	removeDomain   string
	removeNoBackup bool
	removeForce    bool
)

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a deployed application",
	Long: `Remove an application completely: stop and delete its service, nginx vhost
and TLS certificate, delete the app directory and erase the registry entry.
A final backup is taken unless --no-backup is given.

Examples:
  webfleet remove --domain app.example.com
  webfleet remove --domain app.example.com --no-backup --force`,
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
	removeCmd.Flags().StringVar(&removeDomain, "domain", "", "domain to remove (required)")
	removeCmd.Flags().BoolVar(&removeNoBackup, "no-backup", false, "skip the final backup")
	removeCmd.Flags().BoolVarP(&removeForce, "force", "f", false, "skip the confirmation prompt")
	removeCmd.MarkFlagRequired("domain")
}

func runRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := output()

	if !removeForce {
		fmt.Printf("Remove %s and all its files? [y/N]: ", removeDomain)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			out.Info("aborted")
			return nil
		}
	}

	m := newManager(cfg)
	opts := manager.RemoveOptions{SkipBackup: removeNoBackup}
	if err := m.Remove(cmd.Context(), removeDomain, opts); err != nil {
		return err
	}
	out.Success("%s removed", removeDomain)
	return nil
}
