// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cardinalhq/auditshipper/internal/auditpath"
	"github.com/cardinalhq/auditshipper/internal/chunker"
	"github.com/cardinalhq/auditshipper/internal/cloudstorage"
	"github.com/cardinalhq/auditshipper/internal/loganalytics"
)

// Config aggregates configuration for the application.
// Storage and LogAnalytics are owned by their respective packages.
type Config struct {
	Storage      cloudstorage.Config `mapstructure:"storage"`
	Filter       FilterConfig        `mapstructure:"filter"`
	Decoder      DecoderConfig       `mapstructure:"decoder"`
	LogAnalytics loganalytics.Config `mapstructure:"loganalytics"`
	Upload       UploadConfig        `mapstructure:"upload"`
	Run          RunConfig           `mapstructure:"run"`
}

// FilterConfig selects which audit blobs are shipped.
type FilterConfig struct {
	Server    string `mapstructure:"server"`
	Database  string `mapstructure:"database"`
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`
	Extension string `mapstructure:"extension"`
}

// DecoderConfig names the converter used for native .xel files. The
// command is split on whitespace; "{file}" is replaced by the local path,
// which is otherwise appended.
type DecoderConfig struct {
	Command string `mapstructure:"command"`
}

type UploadConfig struct {
	CeilingBytes int           `mapstructure:"ceiling_bytes"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type RunConfig struct {
	// Timeout bounds the whole run; zero means no limit.
	Timeout time.Duration `mapstructure:"timeout"`
	DryRun  bool          `mapstructure:"dry_run"`
	TempDir string        `mapstructure:"temp_dir"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Storage:      cloudstorage.DefaultConfig(),
		Filter:       FilterConfig{Extension: auditpath.DefaultExtension},
		LogAnalytics: loganalytics.DefaultConfig(),
		Upload: UploadConfig{
			CeilingBytes: chunker.DefaultCeilingBytes,
			Timeout:      5 * time.Minute,
		},
	}
}

// Option adjusts how Load reads configuration.
type Option func(*viper.Viper) error

// WithConfigFile reads path instead of searching for config.yaml. A
// missing or unreadable file is an error.
func WithConfigFile(path string) Option {
	return func(v *viper.Viper) error {
		if path == "" {
			return nil
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		return nil
	}
}

// WithFlags lets command line flags override file and environment values.
// keys maps a configuration key to a flag name; flags the user did not set
// leave the key alone.
func WithFlags(fs *pflag.FlagSet, keys map[string]string) Option {
	return func(v *viper.Viper) error {
		for key, name := range keys {
			f := fs.Lookup(name)
			if f == nil {
				return fmt.Errorf("unknown flag %q for %s", name, key)
			}
			if !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
		return nil
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "AUDITSHIPPER" and the dot character
// in keys is replaced by an underscore. For example,
// "loganalytics.shared_key" becomes "AUDITSHIPPER_LOGANALYTICS_SHARED_KEY".
func Load(opts ...Option) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("AUDITSHIPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		key := append(append([]string(nil), parts...), keyName(f))
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

func keyName(f reflect.StructField) string {
	if tag := f.Tag.Get("mapstructure"); tag != "" {
		return tag
	}
	return strings.ToLower(f.Name)
}

// BuildFilter parses the configured dates into an auditpath.Filter.
func (c *Config) BuildFilter() (auditpath.Filter, error) {
	if c.Filter.StartDate == "" || c.Filter.EndDate == "" {
		return auditpath.Filter{}, errors.New("filter: start_date and end_date are required")
	}
	start, err := auditpath.ParseDate(c.Filter.StartDate)
	if err != nil {
		return auditpath.Filter{}, fmt.Errorf("filter: start_date: %w", err)
	}
	end, err := auditpath.ParseDate(c.Filter.EndDate)
	if err != nil {
		return auditpath.Filter{}, fmt.Errorf("filter: end_date: %w", err)
	}
	f, err := auditpath.NewFilter(c.Filter.Server, c.Filter.Database, start, end, c.Filter.Extension)
	if err != nil {
		return auditpath.Filter{}, fmt.Errorf("filter: %w", err)
	}
	return f, nil
}

// DecoderArgs returns the converter command split into argv.
func (c *Config) DecoderArgs() []string {
	return strings.Fields(c.Decoder.Command)
}

// ValidateSelection checks what listing and filtering need.
func (c *Config) ValidateSelection() error {
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	_, err := c.BuildFilter()
	return err
}

// Validate checks everything an import run needs, so that a bad setting
// fails before any blob is listed. Ingestion secrets are not required for
// a dry run.
func (c *Config) Validate() error {
	if err := c.ValidateSelection(); err != nil {
		return err
	}
	if strings.HasSuffix(strings.ToLower(c.Filter.Extension), auditpath.DefaultExtension) && len(c.DecoderArgs()) == 0 {
		return errors.New("decoder: command is required to read .xel files")
	}
	if c.Upload.CeilingBytes <= 0 {
		return fmt.Errorf("upload: ceiling_bytes must be positive, got %d", c.Upload.CeilingBytes)
	}
	if c.Upload.Timeout < 0 || c.Run.Timeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Run.DryRun {
		return nil
	}
	return c.LogAnalytics.Validate()
}
