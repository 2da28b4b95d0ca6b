package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/catalog"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect the system license templates",
}

var templatesCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate a template file",
	Long: `Validate a template file. Without an argument the file configured in
templates.path is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path = cfg.Templates.Path
		}
		return checkTemplates(cmd, path)
	},
}

func init() {
	templatesCmd.AddCommand(templatesCheckCmd)
	rootCmd.AddCommand(templatesCmd)
}

func checkTemplates(cmd *cobra.Command, path string) error {
	templates, err := catalog.LoadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	out := cmd.OutOrStdout()
	for _, t := range templates {
		fmt.Fprintf(out, "  %s (redistribution: %t, modification: %t, backup: %t)\n",
			t.Name, t.Permissions.AllowRedistribution, t.Permissions.AllowModification, t.Permissions.AllowBackup)
	}
	fmt.Fprintf(out, "✓ %s: %d templates OK\n", path, len(templates))
	return nil
}
