// Package config loads nimbusfs settings from defaults, an optional YAML
// file, NIMBUSFS_* environment variables and runtime overrides, in rising
// order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/nimbusfs/pkg/bucketfs"
	"github.com/3leaps/nimbusfs/pkg/bulkdelete"
	"github.com/3leaps/nimbusfs/pkg/listing"
	"github.com/3leaps/nimbusfs/pkg/provider/file"
	"github.com/3leaps/nimbusfs/pkg/provider/s3"
	"github.com/3leaps/nimbusfs/pkg/retry"
	"github.com/3leaps/nimbusfs/pkg/taskpool"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. NIMBUSFS_S3_BUCKET.
	EnvPrefix = "NIMBUSFS"

	// FileName is the config file base name searched for without an
	// explicit path.
	FileName = "nimbusfs"
)

// Backends accepted by the backend key.
const (
	BackendS3   = "s3"
	BackendFile = "file"
)

type Config struct {
	Backend   string          `mapstructure:"backend" yaml:"backend"`
	FSBucket  bool            `mapstructure:"fs_bucket" yaml:"fs_bucket"`
	Retry     RetryConfig     `mapstructure:"retry" yaml:"retry"`
	Delete    DeleteConfig    `mapstructure:"delete" yaml:"delete"`
	Tasks     TasksConfig     `mapstructure:"tasks" yaml:"tasks"`
	Listing   ListingConfig   `mapstructure:"listing" yaml:"listing"`
	Multipart MultipartConfig `mapstructure:"multipart" yaml:"multipart"`
	S3        S3Config        `mapstructure:"s3" yaml:"s3"`
	File      FileConfig      `mapstructure:"file" yaml:"file"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

type RetryConfig struct {
	MaxDuration time.Duration `mapstructure:"max_duration" yaml:"max_duration"`
	MinDelay    time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	RateLimit   float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
}

type DeleteConfig struct {
	MultiObjectEnabled bool `mapstructure:"multi_object_enabled" yaml:"multi_object_enabled"`
	Threshold          int  `mapstructure:"threshold" yaml:"threshold"`
	MaxBatch           int  `mapstructure:"max_batch" yaml:"max_batch"`
}

type TasksConfig struct {
	ActiveLimit int           `mapstructure:"active_limit" yaml:"active_limit"`
	QueuedLimit int           `mapstructure:"queued_limit" yaml:"queued_limit"`
	KeepAlive   time.Duration `mapstructure:"keep_alive" yaml:"keep_alive"`
}

type ListingConfig struct {
	MaxKeys int `mapstructure:"max_keys" yaml:"max_keys"`
}

type MultipartConfig struct {
	PurgeAge time.Duration `mapstructure:"purge_age" yaml:"purge_age"`
}

type S3Config struct {
	Bucket         string `mapstructure:"bucket" yaml:"bucket"`
	Region         string `mapstructure:"region" yaml:"region"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	Profile        string `mapstructure:"profile" yaml:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
}

type FileConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// EnvSpec maps an environment variable to its config key.
type EnvSpec struct {
	Name string
	Path string
}

var (
	configMu  sync.RWMutex
	appConfig *Config
	envSpecs  []EnvSpec
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendS3)
	v.SetDefault("fs_bucket", false)

	v.SetDefault("retry.max_duration", "180000ms")
	v.SetDefault("retry.min_delay", "50ms")
	v.SetDefault("retry.max_delay", "30000ms")
	v.SetDefault("retry.rate_limit", 0.0)

	v.SetDefault("delete.multi_object_enabled", true)
	v.SetDefault("delete.threshold", bulkdelete.DefaultThreshold)
	v.SetDefault("delete.max_batch", bulkdelete.DefaultMaxBatch)

	v.SetDefault("tasks.active_limit", taskpool.DefaultActiveLimit)
	v.SetDefault("tasks.queued_limit", taskpool.DefaultQueueLimit)
	v.SetDefault("tasks.keep_alive", "60s")

	v.SetDefault("listing.max_keys", listing.DefaultMaxKeys)
	v.SetDefault("multipart.purge_age", "24h")

	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.force_path_style", false)

	v.SetDefault("file.root", "")
	v.SetDefault("logging.level", "info")
}

// Load builds the configuration, searching the working directory and the
// user config directory for nimbusfs.yaml.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile builds the configuration from path, or from the default search
// locations when path is empty. A missing default file is not an error.
func LoadFile(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, FileName))
		}
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	envSpecs = buildEnvSpecs(v.AllKeys())
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// EnvSpecs lists the environment variables recognized by the last Load.
func EnvSpecs() []EnvSpec {
	configMu.RLock()
	defer configMu.RUnlock()
	return append([]EnvSpec(nil), envSpecs...)
}

func buildEnvSpecs(keys []string) []EnvSpec {
	sort.Strings(keys)
	specs := make([]EnvSpec, 0, len(keys))
	for _, k := range keys {
		specs = append(specs, EnvSpec{
			Name: EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(k, ".", "_")),
			Path: k,
		})
	}
	return specs
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendS3, BackendFile:
	default:
		return fmt.Errorf("backend %q: must be %s or %s", c.Backend, BackendS3, BackendFile)
	}
	if c.Retry.MinDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.Retry.MaxDelay > 0 && c.Retry.MinDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry.min_delay %s exceeds retry.max_delay %s", c.Retry.MinDelay, c.Retry.MaxDelay)
	}
	if c.Delete.MaxBatch > s3.MaxDeleteObjects {
		return fmt.Errorf("delete.max_batch %d exceeds the store limit of %d", c.Delete.MaxBatch, s3.MaxDeleteObjects)
	}
	if c.Tasks.ActiveLimit < 0 || c.Tasks.QueuedLimit < 0 {
		return fmt.Errorf("task limits must not be negative")
	}
	if c.Listing.MaxKeys > s3.MaxAllowedKeys {
		return fmt.Errorf("listing.max_keys %d exceeds the store limit of %d", c.Listing.MaxKeys, s3.MaxAllowedKeys)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel returns the normalized logging level.
func (c *Config) LogLevel() (string, error) {
	switch l := strings.ToLower(c.Logging.Level); l {
	case "debug", "info", "warn", "error":
		return l, nil
	default:
		return "", fmt.Errorf("logging.level %q: must be debug, info, warn or error", c.Logging.Level)
	}
}

// FS returns the filesystem settings.
func (c *Config) FS() bucketfs.Config {
	return bucketfs.Config{
		Retry: retry.Config{
			MaxDuration: c.Retry.MaxDuration,
			MinDelay:    c.Retry.MinDelay,
			MaxDelay:    c.Retry.MaxDelay,
			RateLimit:   c.Retry.RateLimit,
		},
		Listing: listing.Config{
			MaxKeys:  c.Listing.MaxKeys,
			FSBucket: c.FSBucket,
		},
		Delete: bulkdelete.Config{
			Enabled:   c.Delete.MultiObjectEnabled,
			Threshold: c.Delete.Threshold,
			MaxBatch:  c.Delete.MaxBatch,
		},
		Tasks: taskpool.Config{
			ActiveLimit: c.Tasks.ActiveLimit,
			QueueLimit:  c.Tasks.QueuedLimit,
			KeepAlive:   c.Tasks.KeepAlive,
		},
	}
}

// S3Provider returns the S3 client settings.
func (c *Config) S3Provider() s3.Config {
	return s3.Config{
		Bucket:         c.S3.Bucket,
		Region:         c.S3.Region,
		Endpoint:       c.S3.Endpoint,
		Profile:        c.S3.Profile,
		ForcePathStyle: c.S3.ForcePathStyle,
		MaxKeys:        c.Listing.MaxKeys,
	}
}

// FileProvider returns the local directory backend settings.
func (c *Config) FileProvider() file.Config {
	return file.Config{BaseDir: c.File.Root}
}
