package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"dbguardian/internal/backup"
	"dbguardian/internal/config"
	"dbguardian/internal/database"
	"dbguardian/internal/display"
	"dbguardian/internal/logging"
	"dbguardian/internal/vault"
)

// appContext bundles everything a command needs after configuration loading
type appContext struct {
	cfg      *config.AppConfig
	logger   *logging.Logger
	printer  *display.Printer
	registry *backup.Registry
}

func setup() (*appContext, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging.Build()
	if verbose {
		logCfg.Level = logging.LogLevelVerbose
	}
	if quiet {
		logCfg.Level = logging.LogLevelQuiet
	}
	if logFile != "" {
		logCfg.LogFile = logFile
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, backup.NewValidationError("failed to initialize logging", err)
	}

	return &appContext{
		cfg:      cfg,
		logger:   logger,
		printer:  display.NewPrinter(os.Stdout),
		registry: backup.NewRegistry(),
	}, nil
}

// openVault opens the configured vault, reading the passphrase from the
// configured environment variable or prompting on a terminal
func (app *appContext) openVault() (*vault.Vault, error) {
	passphrase := os.Getenv(app.cfg.Vault.PassphraseEnv)
	if passphrase == "" {
		var err error
		passphrase, err = promptPassphrase(fmt.Sprintf("Vault passphrase (%s unset): ", app.cfg.Vault.PassphraseEnv))
		if err != nil {
			return nil, err
		}
	}

	v := vault.New(app.cfg.Vault.Path, passphrase)
	if _, err := v.Load(); err != nil {
		return nil, err
	}
	return v, nil
}

func promptPassphrase(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", backup.NewValidationError(
			"vault passphrase is not set and stdin is not a terminal", nil)
	}
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", backup.NewValidationError("failed to read passphrase", err)
	}
	if len(raw) == 0 {
		return "", backup.NewValidationError("passphrase must not be empty", nil)
	}
	return string(raw), nil
}

// resolveDatabase returns the descriptor for a configured database with its
// credentials filled in from the vault when the entry names one
func (app *appContext) resolveDatabase(name string, v *vault.Vault) (*backup.DatabaseDescriptor, error) {
	entry, err := app.cfg.Database(name)
	if err != nil {
		return nil, err
	}
	desc := entry.Descriptor

	if entry.Credential != "" {
		if v == nil {
			return nil, backup.NewValidationError(
				fmt.Sprintf("database %q requires vault credential %q but the vault is not open", name, entry.Credential), nil)
		}
		cred, found, err := v.Get(entry.Credential)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, backup.NewValidationError(
				fmt.Sprintf("vault has no credential named %q", entry.Credential), nil)
		}
		desc.Username = cred.Username
		desc.Password = cred.Password
	}
	return &desc, nil
}

// buildDeps wires the adapter, storage provider, and shared collaborators
// for one database's strategies
func (app *appContext) buildDeps(ctx context.Context, desc *backup.DatabaseDescriptor, keyHash string) (backup.StrategyDeps, error) {
	adapter, err := database.NewAdapter(desc.Type, app.logger)
	if err != nil {
		return backup.StrategyDeps{}, err
	}
	storage, err := backup.NewStorageProvider(ctx, &app.cfg.Storage)
	if err != nil {
		return backup.StrategyDeps{}, err
	}
	return backup.StrategyDeps{
		Adapter:           adapter,
		Storage:           storage,
		Compression:       backup.NewCompressionManager(),
		Validator:         backup.NewIntegrityValidator(),
		Logger:            app.logger,
		EncryptionKeyHash: keyHash,
	}, nil
}

func (app *appContext) notifier() *backup.NotificationManager {
	if !app.cfg.Notifications.Enabled {
		return nil
	}
	return backup.NewNotificationManager(app.logger, app.cfg.Notifications)
}
