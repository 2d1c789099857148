package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dbguardian/internal/backup"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage the encrypted credential vault",
}

var vaultSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Store or update a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup()
		if err != nil {
			return err
		}
		vlt, err := app.openVault()
		if err != nil {
			return err
		}

		name := args[0]
		username, err := promptLine("Username: ")
		if err != nil {
			return err
		}
		password, err := promptPassphrase("Password: ")
		if err != nil {
			return err
		}
		description, _ := cmd.Flags().GetString("description")

		if err := vlt.Set(name, username, password, description); err != nil {
			return err
		}
		if err := vlt.Save(); err != nil {
			return err
		}
		app.printer.Success("credential %q stored in %s", name, app.cfg.Vault.Path)
		return nil
	},
}

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credential names and metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup()
		if err != nil {
			return err
		}
		vlt, err := app.openVault()
		if err != nil {
			return err
		}

		names := vlt.Names()
		if len(names) == 0 {
			app.printer.Printf("vault is empty\n")
			return nil
		}
		for _, name := range names {
			description, createdAt, updatedAt, _ := vlt.Describe(name)
			line := fmt.Sprintf("%s  (created %s, updated %s)",
				name, createdAt.Format("2006-01-02"), updatedAt.Format("2006-01-02"))
			if description != "" {
				line += "  " + description
			}
			app.printer.Printf("%s\n", line)
		}
		return nil
	},
}

var vaultRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup()
		if err != nil {
			return err
		}
		vlt, err := app.openVault()
		if err != nil {
			return err
		}
		if !vlt.Remove(args[0]) {
			return backup.NewValidationError(
				fmt.Sprintf("vault has no credential named %q", args[0]), nil)
		}
		if err := vlt.Save(); err != nil {
			return err
		}
		app.printer.Success("credential %q removed", args[0])
		return nil
	},
}

var vaultValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every configured database has its vault credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup()
		if err != nil {
			return err
		}
		vlt, err := app.openVault()
		if err != nil {
			return err
		}

		required := app.cfg.CredentialNames()
		if missing := vlt.Missing(required); len(missing) > 0 {
			return backup.NewValidationError(
				fmt.Sprintf("vault is missing credentials: %s", strings.Join(missing, ", ")), nil)
		}
		app.printer.Success("vault holds all %d required credential(s)", len(required))
		return nil
	},
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	var value string
	if _, err := fmt.Scanln(&value); err != nil {
		return "", backup.NewValidationError("failed to read input", err)
	}
	return strings.TrimSpace(value), nil
}

func init() {
	vaultSetCmd.Flags().String("description", "", "free-form description of the credential")
	vaultCmd.AddCommand(vaultSetCmd, vaultListCmd, vaultRemoveCmd, vaultValidateCmd)
	rootCmd.AddCommand(vaultCmd)
}
