package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var listDetailed bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployed applications",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listDetailed, "detailed", false, "show source, branch and overrides")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := output()

	doc, err := newManager(cfg).Registry().Load()
	if err != nil {
		return err
	}
	apps := doc.List()
	if len(apps) == 0 {
		out.Info("no applications deployed")
		return nil
	}

	if listDetailed {
		for _, app := range apps {
			out.Section(app.Domain)
			out.KeyValue("type", app.AppType)
			out.KeyValue("port", strconv.Itoa(app.Port))
			out.KeyValue("status", app.Status)
			out.KeyValue("ssl", strconv.FormatBool(app.SSL))
			out.KeyValue("source", app.Source)
			out.KeyValue("branch", app.Branch)
			if app.BuildCommand != "" {
				out.KeyValue("build command", app.BuildCommand)
			}
			if app.StartCommand != "" {
				out.KeyValue("start command", app.StartCommand)
			}
			if len(app.EnvVars) > 0 {
				out.KeyValue("env vars", strconv.Itoa(len(app.EnvVars)))
			}
			out.KeyValue("created", app.Created)
			out.KeyValue("updated", app.LastUpdated)
		}
		return nil
	}

	rows := make([][]string, 0, len(apps))
	for _, app := range apps {
		url := "http://" + app.Domain
		if app.SSL {
			url = "https://" + app.Domain
		}
		rows = append(rows, []string{
			app.Domain, app.AppType, strconv.Itoa(app.Port), app.Status, url,
		})
	}
	out.Table([]string{"DOMAIN", "TYPE", "PORT", "STATUS", "URL"}, rows)
	fmt.Println()
	return nil
}
