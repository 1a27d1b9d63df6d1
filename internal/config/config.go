// Package config loads the tabula command configuration.
//
// Values are merged from, in increasing precedence: defaults, the
// tabula.yaml file, TABULA_* environment variables and explicitly set
// command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/syssam/tabula/backup"
	"github.com/syssam/tabula/dialect"
)

// DefaultFile is the configuration file read when none is given.
const DefaultFile = "tabula.yaml"

const envPrefix = "TABULA_"

// Config is the configuration of the tabula command.
type Config struct {
	Dialect        string        `koanf:"dialect"`
	DSN            string        `koanf:"dsn"`
	Driver         string        `koanf:"driver"` // pq or pgx, postgres only
	Prefix         string        `koanf:"prefix"`
	Models         string        `koanf:"models"`
	Debug          bool          `koanf:"debug"`
	SlowThreshold  time.Duration `koanf:"slow_threshold"`
	RowPermissions bool          `koanf:"row_permissions"`
	Queue          bool          `koanf:"queue"`
	Backup         Backup        `koanf:"backup"`

	// File is the configuration file that was read, if any.
	File string `koanf:"-"`
}

// Backup configures the backup and restore commands.
type Backup struct {
	Dir    string `koanf:"dir"`
	Format string `koanf:"format"`
}

// Defaults returns the default configuration values.
func Defaults() map[string]any {
	return map[string]any{
		"dialect":         dialect.SQLite,
		"driver":          "pq",
		"models":          "models.yaml",
		"debug":           false,
		"slow_threshold":  "200ms",
		"row_permissions": false,
		"queue":           false,
		"backup.dir":      "backup",
		"backup.format":   string(backup.JSON),
	}
}

// Load reads the configuration. An empty path reads DefaultFile when it
// exists. Flags may be nil; only the flags set on the command line
// override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	// TABULA_BACKUP_DIR -> backup.dir
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return key(strings.ToLower(strings.TrimPrefix(s, envPrefix)))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return key(strings.ReplaceAll(f.Name, "-", "_")), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.File = path
	return &cfg, nil
}

// key maps a flat snake_case name to its configuration key.
func key(s string) string {
	if s == "verbose" {
		return "debug"
	}
	if rest, ok := strings.CutPrefix(s, "backup_"); ok {
		return "backup." + rest
	}
	return s
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Dialect {
	case dialect.MySQL, dialect.SQLite:
	case dialect.Postgres:
		if c.Driver != "pq" && c.Driver != "pgx" {
			return fmt.Errorf("config: unknown postgres driver %q, want pq or pgx", c.Driver)
		}
	default:
		return fmt.Errorf("config: unknown dialect %q", c.Dialect)
	}
	if c.DSN == "" {
		return errors.New("config: dsn is required")
	}
	if c.SlowThreshold < 0 {
		return errors.New("config: slow_threshold must not be negative")
	}
	if _, err := backup.ParseFormat(c.Backup.Format); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// DriverName returns the name passed to dialect/sql.Open.
func (c *Config) DriverName() string {
	if c.Dialect == dialect.Postgres && c.Driver == "pgx" {
		return "pgx"
	}
	return c.Dialect
}

// BackupFormat returns the parsed backup format.
func (c *Config) BackupFormat() backup.Format {
	f, err := backup.ParseFormat(c.Backup.Format)
	if err != nil {
		return backup.JSON
	}
	return f
}
