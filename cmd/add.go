package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/webfleet-sh/webfleet/pkg/manager"
	"github.com/webfleet-sh/webfleet/pkg/validator"
)

var (
	addDomain       string
	addSource       string
	addPort         int
	addType         string
	addBranch       string
	addNoSSL        bool
	addBuildCommand string
	addStartCommand string
	addEnv          []string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Deploy a new application",
	Long: `Deploy an application from a git repository or local directory: fetch the
source, install dependencies, build, configure nginx and systemd, provision TLS
and register the app.

Examples:
  webfleet add --domain app.example.com --source https://github.com/acme/app.git --port 3000
  webfleet add --domain api.example.com --source git@github.com:acme/api.git --port 8001 --type fastapi
  webfleet add --domain docs.example.com --source /srv/docs --port 8080 --type static --no-ssl
  webfleet add --domain app.example.com --source ... --port 3000 --env API_KEY=secret --env REGION=eu`,
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVar(&addDomain, "domain", "", "domain to deploy under (required)")
	addCmd.Flags().StringVar(&addSource, "source", "", "git URL or local path (required)")
	addCmd.Flags().IntVar(&addPort, "port", 0, "port the app listens on (required)")
	addCmd.Flags().StringVar(&addType, "type", validator.TypeNextJS, "app type: nextjs, nodejs, fastapi, static")
	addCmd.Flags().StringVar(&addBranch, "branch", "main", "git branch to deploy")
	addCmd.Flags().BoolVar(&addNoSSL, "no-ssl", false, "skip TLS provisioning")
	addCmd.Flags().StringVar(&addBuildCommand, "build-command", "", "override the build command")
	addCmd.Flags().StringVar(&addStartCommand, "start-command", "", "override the start command")
	addCmd.Flags().StringArrayVar(&addEnv, "env", nil, "environment variable KEY=VALUE (repeatable)")
	addCmd.MarkFlagRequired("domain")
	addCmd.MarkFlagRequired("source")
	addCmd.MarkFlagRequired("port")
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	envVars, err := parseEnvFlags(addEnv)
	if err != nil {
		return err
	}

	out := output()
	m := newManager(cfg)

	if issues := m.CheckPrerequisites(); len(issues) > 0 {
		blocked := false
		for _, issue := range issues {
			if issue.Severity == "error" {
				out.Error("%s", issue.Message)
				blocked = true
			} else {
				out.Warning("%s", issue.Message)
			}
		}
		if blocked {
			return errors.New("required tools are missing, install them and retry")
		}
	}

	req := manager.DeployRequest{
		Domain:       addDomain,
		Source:       addSource,
		Branch:       addBranch,
		AppType:      addType,
		Port:         addPort,
		SSL:          !addNoSSL,
		BuildCommand: addBuildCommand,
		StartCommand: addStartCommand,
		EnvVars:      envVars,
	}
	if err := m.Deploy(cmd.Context(), req); err != nil {
		return err
	}

	out.Success("%s deployed", addDomain)
	if req.SSL {
		out.Plain("  https://%s", addDomain)
	} else {
		out.Plain("  http://%s", addDomain)
	}
	return nil
}
