// Package config loads and validates the application configuration. The file
// is YAML, discovered through viper's search paths, with environment variable
// overrides applied on top.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"dbguardian/internal/backup"
	"dbguardian/internal/logging"
)

// DatabaseEntry is one protected database. Credentials come from the vault
// entry named by Credential; inline username/password are a fallback for
// environments without a vault.
type DatabaseEntry struct {
	Name       string                    `yaml:"name"`
	Credential string                    `yaml:"credential,omitempty"`
	Descriptor backup.DatabaseDescriptor `yaml:",inline"`
}

// VaultConfig locates the encrypted credential vault
type VaultConfig struct {
	Path string `yaml:"path"`
	// PassphraseEnv names the environment variable holding the passphrase;
	// interactive commands prompt when it is unset
	PassphraseEnv string `yaml:"passphrase_env"`
}

// ScheduleConfig drives the daemon's cron schedule
type ScheduleConfig struct {
	Enabled bool `yaml:"enabled"`
	// Cron is a standard 5-field cron expression
	Cron string `yaml:"cron"`
	// Databases restricts scheduled backups to the named entries; empty
	// means all configured databases
	Databases []string `yaml:"databases,omitempty"`
	// RetentionCron schedules retention sweeps; empty disables them
	RetentionCron string `yaml:"retention_cron,omitempty"`
}

// LoggingConfig is the YAML-facing logging block
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file,omitempty"`
}

// Build converts the block into the logging package's configuration
func (lc LoggingConfig) Build() logging.Config {
	return logging.Config{
		Level:   logging.LogLevel(lc.Level),
		Format:  lc.Format,
		LogFile: lc.File,
	}
}

// AppConfig is the root configuration document
type AppConfig struct {
	Databases     []DatabaseEntry           `yaml:"databases"`
	Storage       backup.StorageConfig      `yaml:"storage"`
	Policy        backup.BackupPolicy       `yaml:"policy"`
	Executor      backup.ExecutorConfig     `yaml:"executor"`
	Notifications backup.NotificationConfig `yaml:"notifications"`
	Vault         VaultConfig               `yaml:"vault"`
	Schedule      ScheduleConfig            `yaml:"schedule"`
	Logging       LoggingConfig             `yaml:"logging"`
}

// Load reads the configuration file, applies defaults and environment
// overrides, and validates the result. An empty path searches the standard
// locations; a missing file yields a default configuration.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dbguardian")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/dbguardian")
		v.AddConfigPath("/etc/dbguardian")
	}

	cfg := &AppConfig{}
	if err := v.ReadInConfig(); err != nil {
		// Only a genuinely absent file falls back to defaults. A file that
		// exists but cannot be read or parsed must fail loudly: proceeding on
		// defaults would silently replace the operator's storage and
		// retention settings.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			name := path
			if name == "" {
				name = v.ConfigFileUsed()
			}
			return nil, backup.NewValidationError(
				fmt.Sprintf("failed to read config file %s", name), err)
		}
	} else {
		data, err := os.ReadFile(v.ConfigFileUsed())
		if err != nil {
			return nil, backup.NewValidationError("failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, backup.NewValidationError("failed to parse config file", err)
		}
	}

	cfg.SetDefaults()
	cfg.LoadFromEnvironment()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults fills in default settings
func (c *AppConfig) SetDefaults() {
	c.Storage.SetDefaults()
	c.Policy.SetDefaults()
	c.Executor.SetDefaults()
	if c.Vault.Path == "" {
		c.Vault.Path = defaultVaultPath()
	}
	if c.Vault.PassphraseEnv == "" {
		c.Vault.PassphraseEnv = "DBGUARDIAN_VAULT_PASSPHRASE"
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 2 * * *"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = string(logging.LogLevelNormal)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	for i := range c.Databases {
		if c.Databases[i].Descriptor.Port == 0 {
			switch c.Databases[i].Descriptor.Type {
			case "mysql":
				c.Databases[i].Descriptor.Port = 3306
			case "postgres", "postgresql":
				c.Databases[i].Descriptor.Port = 5432
			}
		}
	}
}

// LoadFromEnvironment applies DBGUARDIAN_* environment overrides
func (c *AppConfig) LoadFromEnvironment() {
	c.Storage.LoadFromEnvironment()
	c.Policy.LoadFromEnvironment()
	c.Executor.LoadFromEnvironment()
	if val := os.Getenv("DBGUARDIAN_VAULT_PATH"); val != "" {
		c.Vault.Path = val
	}
	if val := os.Getenv("DBGUARDIAN_SCHEDULE_CRON"); val != "" {
		c.Schedule.Cron = val
	}
	if val := os.Getenv("DBGUARDIAN_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
}

// Validate checks the whole configuration
func (c *AppConfig) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if err := c.Executor.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, db := range c.Databases {
		if db.Name == "" {
			return backup.NewValidationError("database entry is missing a name", nil)
		}
		if seen[db.Name] {
			return backup.NewValidationError(
				fmt.Sprintf("duplicate database entry %q", db.Name), nil)
		}
		seen[db.Name] = true
		if db.Descriptor.Type == "" {
			return backup.NewValidationError(
				fmt.Sprintf("database %q is missing a type", db.Name), nil)
		}
		if db.Descriptor.Type == "workflow" && db.Descriptor.Container == "" {
			return backup.NewValidationError(
				fmt.Sprintf("workflow entry %q requires a container name", db.Name), nil)
		}
	}
	return nil
}

// Database finds a configured entry by name
func (c *AppConfig) Database(name string) (*DatabaseEntry, error) {
	for i := range c.Databases {
		if c.Databases[i].Name == name {
			return &c.Databases[i], nil
		}
	}
	return nil, backup.NewValidationError(
		fmt.Sprintf("database %q is not configured", name), nil)
}

// CredentialNames returns the vault entry names the configuration requires
func (c *AppConfig) CredentialNames() []string {
	var names []string
	for _, db := range c.Databases {
		if db.Credential != "" {
			names = append(names, db.Credential)
		}
	}
	return names
}

// WriteTemplate writes a starter configuration file with defaults filled in
// and one example database entry. Existing files are never overwritten.
func WriteTemplate(path string) error {
	tmpl := &AppConfig{
		Databases: []DatabaseEntry{
			{
				Name:       "orders",
				Credential: "orders",
				Descriptor: backup.DatabaseDescriptor{
					Type:     "mysql",
					Host:     "localhost",
					Port:     3306,
					Database: "orders",
				},
			},
		},
	}
	tmpl.SetDefaults()

	data, err := yaml.Marshal(tmpl)
	if err != nil {
		return backup.NewValidationError("failed to render config template", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return backup.NewValidationError(
				fmt.Sprintf("config file %s already exists", path), nil)
		}
		return backup.NewValidationError(
			fmt.Sprintf("failed to create config file %s", path), err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return backup.NewValidationError(
			fmt.Sprintf("failed to write config file %s", path), err)
	}
	return nil
}

func defaultVaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dbguardian/vault.enc"
	}
	return home + "/.config/dbguardian/vault.enc"
}
