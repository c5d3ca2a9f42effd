package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values read from the config file.
const (
	EnvProjectRoot    = "PROVISION_PROJECT_ROOT"
	EnvDatabaseDriver = "PROVISION_DATABASE_DRIVER"
	EnvDatabaseDSN    = "PROVISION_DATABASE_DSN"
	EnvLogLevel       = "PROVISION_LOG_LEVEL"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Project      ProjectConfig      `toml:"project"`
	Dependencies DependenciesConfig `toml:"dependencies"`
	Static       StaticConfig       `toml:"static"`
	Database     DatabaseConfig     `toml:"database"`
	State        StateConfig        `toml:"state"`
	Log          LogConfig          `toml:"log"`
}

// ProjectConfig locates the application being provisioned.
type ProjectConfig struct {
	Root          string `toml:"root"`
	App           string `toml:"app"`
	Models        string `toml:"models"`
	MigrationsDir string `toml:"migrations_dir"`
}

// DependenciesConfig names the dependency manifest and the installer invocation.
type DependenciesConfig struct {
	Manifest  string   `toml:"manifest"`
	Installer []string `toml:"installer"`
}

// StaticConfig lists static asset sources and the serving directory.
type StaticConfig struct {
	Sources []string `toml:"sources"`
	Output  string   `toml:"output"`
	Clear   bool     `toml:"clear"`
}

// DatabaseConfig contains database connection settings for the target database.
type DatabaseConfig struct {
	Driver         string `toml:"driver"`
	DSN            string `toml:"dsn"`
	MaxOpenConns   int    `toml:"max_open_conns"`
	MaxIdleConns   int    `toml:"max_idle_conns"`
	ConnectTimeout int    `toml:"connect_timeout"`
}

// StateConfig locates the local SQLite database holding provisioning run history.
type StateConfig struct {
	Path string `toml:"path"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file without overriding variables that are already set.
//
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides config values with any PROVISION_* environment variables that are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvProjectRoot); v != "" {
		c.Project.Root = v
	}
	if v := os.Getenv(EnvDatabaseDriver); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the values every step depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Project.App) == "" {
		return fmt.Errorf("%w: project.app is required", ErrInvalidConfig)
	}
	if c.Project.MigrationsDir == "" {
		return fmt.Errorf("%w: project.migrations_dir is required", ErrInvalidConfig)
	}
	if c.Dependencies.Manifest == "" {
		return fmt.Errorf("%w: dependencies.manifest is required", ErrInvalidConfig)
	}
	if len(c.Dependencies.Installer) == 0 {
		return fmt.Errorf("%w: dependencies.installer is required", ErrInvalidConfig)
	}
	if c.Static.Output == "" {
		return fmt.Errorf("%w: static.output is required", ErrInvalidConfig)
	}
	if _, err := DriverName(c.Database.Driver); err != nil {
		return err
	}
	return nil
}

// Path resolves p against the project root. Absolute paths are returned unchanged.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	root := c.Project.Root
	if root == "" {
		root = "."
	}
	return filepath.Join(root, p)
}

// StaticSources returns the static source directories resolved against the project root.
func (c *Config) StaticSources() []string {
	sources := make([]string, 0, len(c.Static.Sources))
	for _, s := range c.Static.Sources {
		sources = append(sources, c.Path(s))
	}
	return sources
}

// TargetDatabase returns the database settings with a relative SQLite file resolved against the project root.
func (c *Config) TargetDatabase() DatabaseConfig {
	db := c.Database
	if name, err := DriverName(db.Driver); err == nil && name == "sqlite3" {
		if db.DSN != ":memory:" && !strings.HasPrefix(db.DSN, "file:") {
			db.DSN = c.Path(db.DSN)
		}
	}
	return db
}
