package cmd

import (
	"github.com/spf13/cobra"

	"github.com/webfleet-sh/webfleet/pkg/registry"
)

var (
	exportFile string
	importFile string
	fixFile    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the registry to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := newManager(cfg).Registry()
		doc, err := store.Load()
		if err != nil {
			return err
		}
		if err := store.Export(doc, exportFile); err != nil {
			return err
		}
		output().Success("registry exported to %s", exportFile)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a registry file, replacing the current one",
	Long: `Import a previously exported registry. Invalid records in the file are
dropped and reported; the current registry file is snapshotted first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := output()
		store := newManager(cfg).Registry()

		doc, dropped, err := store.Import(importFile)
		if err != nil {
			return err
		}
		for _, domain := range dropped {
			out.Warning("dropped invalid record: %s", domain)
		}
		if err := store.Save(doc); err != nil {
			return err
		}
		out.Success("registry imported (%d apps)", len(doc.Apps))
		return nil
	},
}

var fixConfigCmd = &cobra.Command{
	Use:   "fix-config",
	Short: "Validate and repair the registry file",
	Long: `Re-validate every registry record, dropping corrupt ones, and rewrite the
file. An unparsable registry is regenerated from scratch; a snapshot of the
old file is kept either way.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := output()

		store := newManager(cfg).Registry()
		if fixFile != "" {
			store = registry.NewStore(fixFile, store.BackupDir)
		}
		report, err := store.Repair()
		if err != nil {
			return err
		}
		if report.Recreated {
			out.Warning("registry was unparsable and has been recreated empty")
		}
		for _, domain := range report.Dropped {
			out.Warning("dropped invalid record: %s", domain)
		}
		out.Success("registry ok (%d apps kept)", report.Kept)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd, fixConfigCmd)
	exportCmd.Flags().StringVar(&exportFile, "file", "", "destination path (required)")
	exportCmd.MarkFlagRequired("file")
	importCmd.Flags().StringVar(&importFile, "file", "", "source path (required)")
	importCmd.MarkFlagRequired("file")
	fixConfigCmd.Flags().StringVar(&fixFile, "file", "", "registry file to repair (default: the live registry)")
}
