package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"dbguardian/internal/config"
	"dbguardian/internal/display"
)

var configInitOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Writes a configuration file with defaults filled in and one example
database entry. An existing file is never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteTemplate(configInitOutput); err != nil {
			return err
		}
		printer := display.NewPrinter(os.Stdout)
		printer.Success("wrote %s", configInitOutput)
		printer.Printf("Edit the databases section, then store credentials with 'dbguardian vault set <name>'.\n")
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		printer := display.NewPrinter(os.Stdout)
		printer.Success("configuration is valid (%d database(s), %s storage)",
			len(cfg.Databases), cfg.Storage.Provider)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "dbguardian.yaml", "path to write the configuration file to")
	configCmd.AddCommand(configInitCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
