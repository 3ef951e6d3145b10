package cmd

import (
	"github.com/spf13/cobra"

	"github.com/webfleet-sh/webfleet/pkg/deployer"
	"github.com/webfleet-sh/webfleet/pkg/validator"
)

var detectDir string

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List supported application types",
	Run: func(cmd *cobra.Command, args []string) {
		out := output()
		out.Table([]string{"TYPE", "DESCRIPTION"}, [][]string{
			{validator.TypeNextJS, "Next.js app, built and served by its own process"},
			{validator.TypeNodeJS, "generic Node.js app with a start script"},
			{validator.TypeFastAPI, "Python FastAPI app served by uvicorn"},
			{validator.TypeStatic, "static files served directly by nginx"},
		})
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the application type of a directory",
	Long: `Inspect a project directory and report which application type webfleet
would deploy it as.

Examples:
  webfleet detect --directory /srv/myapp`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output().Plain("%s", deployer.Detect(detectDir))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(typesCmd, detectCmd)
	detectCmd.Flags().StringVar(&detectDir, "directory", ".", "directory to inspect")
}
