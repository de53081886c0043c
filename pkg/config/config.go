// Package config loads tool configuration from an optional config file,
// environment variables and defaults, in that precedence order reversed:
// flags bound by the CLI override everything.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/replaystats/framecol/pkg/errors"
)

// Config is the full tool configuration.
type Config struct {
	Log  LogConfig  `mapstructure:"log"`
	Sink SinkConfig `mapstructure:"sink"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	Encoding    string `mapstructure:"encoding"`
}

// SinkConfig selects and parameterizes the output adapter.
type SinkConfig struct {
	// Format is one of parquet, flat, json.
	Format string `mapstructure:"format"`
	// Compression names a codec where the format supports one.
	Compression string `mapstructure:"compression"`
	// Level is the compression level (1 fastest .. 9 best); 0 means default.
	Level int `mapstructure:"level"`
	// EnumNames renders enumerated fields as names in the json format.
	EnumNames bool `mapstructure:"enum_names"`
}

// Sink format names.
const (
	FormatParquet = "parquet"
	FormatFlat    = "flat"
	FormatJSON    = "json"
)

// New returns a viper instance carrying the tool's defaults and environment
// binding. The CLI binds its flags onto this same instance.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.development", false)
	v.SetDefault("log.encoding", "console")
	v.SetDefault("sink.format", FormatParquet)
	v.SetDefault("sink.compression", "none")
	v.SetDefault("sink.level", 0)
	v.SetDefault("sink.enum_names", false)

	v.SetEnvPrefix("FRAMECOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file into v and unmarshals the result.
// An empty path skips the file and uses defaults, environment and flags.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "unmarshaling config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can act on.
func (c *Config) Validate() error {
	switch c.Sink.Format {
	case FormatParquet, FormatFlat, FormatJSON:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown sink format %q", c.Sink.Format)
	}
	if c.Sink.Level < 0 || c.Sink.Level > 9 {
		return errors.Newf(errors.ErrorTypeConfig, "compression level %d out of range", c.Sink.Level)
	}
	return nil
}
