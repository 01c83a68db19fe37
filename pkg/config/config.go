package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghodss/yaml"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/fingerprint"
	"github.com/paulschiretz/pgl-mirror/pkg/flagparse"
	"github.com/paulschiretz/pgl-mirror/pkg/hook"
	"github.com/paulschiretz/pgl-mirror/pkg/logfile"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/syncerr"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// DefaultConfigFileName is written by init when no path is given.
const DefaultConfigFileName = "pgl-mirror.yaml"

type LogConfig struct {
	Path        string `json:"path"`
	Level       string `json:"level"`
	MaxSizeMB   int    `json:"maxSizeMB"`
	Keep        int    `json:"keep"`
	Compression string `json:"compression"`
}

type EngineConfig struct {
	Workers               int  `json:"workers"`
	DigestCacheSize       int  `json:"digestCacheSize"`
	DigestCacheTTLSeconds int  `json:"digestCacheTTLSeconds"`
	DryRun                bool `json:"dryRun"`
	Watch                 bool `json:"watch"`
	WatchDebounceMs       int  `json:"watchDebounceMs"`
}

type HooksConfig struct {
	// Note: omitempty is intentionally not used so that the hook fields
	// appear in the generated config file for better discoverability.
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PreCycle  []string `json:"preCycle"`
	PostCycle []string `json:"postCycle"`
}

type Config struct {
	Version       string       `json:"version"`
	Source        string       `json:"source"`
	Replica       string       `json:"replica"`
	Interval      int          `json:"interval"` // minutes
	HashAlgorithm string       `json:"hashAlgorithm"`
	Log           LogConfig    `json:"log"`
	Engine        EngineConfig `json:"engine"`
	Hooks         HooksConfig  `json:"hooks"`
}

// NewDefault returns a Config with every optional value filled in. The roots,
// the log path and the interval are intentionally empty to force user configuration.
func NewDefault() Config {
	return Config{
		Version:       buildinfo.Version,
		HashAlgorithm: string(fingerprint.DefaultAlgorithm),
		Log: LogConfig{
			Level:       "info",
			MaxSizeMB:   10,
			Keep:        5,
			Compression: string(logfile.Gzip),
		},
		Engine: EngineConfig{
			Workers:               1, // Sequential by default; copies and deletes of one phase may run in parallel when raised.
			DigestCacheSize:       0,
			DigestCacheTTLSeconds: 3600,
			WatchDebounceMs:       2000,
		},
		Hooks: HooksConfig{
			PreCycle:  []string{},
			PostCycle: []string{},
		},
	}
}

// Load reads a JSON or YAML config file on top of the defaults.
// An empty path, or a path that does not exist, yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return NewDefault(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			plog.Debug("Config file not found, using defaults", "path", path)
			return NewDefault(), nil
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", path, err)
	}

	plog.Info("Loading configuration", "path", path)
	// Start with default values, then overwrite with the file's content.
	// This makes the config loading resilient to missing fields in the file.
	config := NewDefault()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	if config.Version != buildinfo.Version {
		config.Version = buildinfo.Version
	}
	return config, nil
}

// Generate writes cfg to path, as YAML for .yaml/.yml files and JSON otherwise.
// An existing file is only replaced when force is set.
func Generate(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists, use --force to overwrite it", path)
		}
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	plog.Info("Configuration written", "path", path)
	return nil
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "notice": true, "warn": true, "warning": true, "error": true}

// Validate checks every value and resolves the paths to absolute ones.
// It does not touch the filesystem; root existence is a preflight concern.
// requireLoop additionally demands the log path and interval that only the
// mirror loop needs.
func (c *Config) Validate(requireLoop bool) error {
	var err error
	if c.Source, err = resolvePath("source", c.Source); err != nil {
		return err
	}
	if c.Replica, err = resolvePath("replica", c.Replica); err != nil {
		return err
	}

	if requireLoop {
		if c.Log.Path, err = resolvePath("log.path", c.Log.Path); err != nil {
			return err
		}
		if c.Interval <= 0 {
			return syncerr.NewConfigError("interval", "Interval must be a positive number of minutes, got %d.", c.Interval)
		}
	}

	algo, err := fingerprint.ParseAlgorithm(c.HashAlgorithm)
	if err != nil {
		return &syncerr.ConfigError{Field: "hashAlgorithm", Msg: fmt.Sprintf("Unsupported hash algorithm '%s' (supported: %s)", c.HashAlgorithm, strings.Join(fingerprint.Algorithms(), ", ")), Err: err}
	}
	c.HashAlgorithm = string(algo)

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return syncerr.NewConfigError("log.level", "Invalid log level '%s'. Must be 'debug', 'info', 'notice', 'warn' or 'error'.", c.Log.Level)
	}
	if _, err := logfile.ParseCompression(c.Log.Compression); err != nil {
		return &syncerr.ConfigError{Field: "log.compression", Err: err}
	}
	if c.Log.MaxSizeMB < 0 {
		return syncerr.NewConfigError("log.maxSizeMB", "log.maxSizeMB cannot be negative.")
	}
	if c.Log.Keep < 0 {
		return syncerr.NewConfigError("log.keep", "log.keep cannot be negative.")
	}

	if c.Engine.Workers < 1 {
		return syncerr.NewConfigError("engine.workers", "engine.workers must be at least 1.")
	}
	if c.Engine.DigestCacheSize < 0 {
		return syncerr.NewConfigError("engine.digestCacheSize", "engine.digestCacheSize cannot be negative.")
	}
	if c.Engine.DigestCacheSize > 0 && c.Engine.DigestCacheTTLSeconds <= 0 {
		return syncerr.NewConfigError("engine.digestCacheTTLSeconds", "engine.digestCacheTTLSeconds must be positive when the digest cache is enabled.")
	}
	if c.Engine.WatchDebounceMs < 0 {
		return syncerr.NewConfigError("engine.watchDebounceMs", "engine.watchDebounceMs cannot be negative.")
	}
	return nil
}

func resolvePath(field, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", syncerr.NewConfigError(field, "%s is required.", field)
	}
	expanded, err := util.ExpandPath(path)
	if err != nil {
		return "", &syncerr.ConfigError{Field: field, Err: err}
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", &syncerr.ConfigError{Field: field, Err: err}
	}
	return abs, nil
}

// IntervalDuration returns the sleep between cycles.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Minute
}

func (c *Config) DigestCacheTTL() time.Duration {
	return time.Duration(c.Engine.DigestCacheTTLSeconds) * time.Second
}

func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.Engine.WatchDebounceMs) * time.Millisecond
}

// LogPolicy converts the log section into a rotation policy. It assumes Validate succeeded.
func (c *Config) LogPolicy() logfile.Policy {
	compression, _ := logfile.ParseCompression(c.Log.Compression)
	return logfile.Policy{
		MaxSizeMB:   c.Log.MaxSizeMB,
		Keep:        c.Log.Keep,
		Compression: compression,
	}
}

// HookPlan returns the hook plan, or nil when no hook command is configured.
func (c *Config) HookPlan() *hook.Plan {
	if len(c.Hooks.PreCycle) == 0 && len(c.Hooks.PostCycle) == 0 {
		return nil
	}
	return &hook.Plan{
		Enabled:           true,
		PreCycleCommands:  c.Hooks.PreCycle,
		PostCycleCommands: c.Hooks.PostCycle,
		DryRun:            c.Engine.DryRun,
	}
}

// LogSummary prints a summary of the effective configuration.
func (c *Config) LogSummary() {
	logArgs := []any{
		"source", c.Source,
		"replica", c.Replica,
		"log", c.Log.Path,
		"interval", c.IntervalDuration(),
		"hash", c.HashAlgorithm,
		"workers", c.Engine.Workers,
	}
	if c.Engine.DryRun {
		logArgs = append(logArgs, "dry_run", true)
	}
	if c.Log.MaxSizeMB > 0 {
		logArgs = append(logArgs, "log_rotation", fmt.Sprintf("%dMB keep=%d %s", c.Log.MaxSizeMB, c.Log.Keep, c.Log.Compression))
	}
	if c.Engine.DigestCacheSize > 0 {
		logArgs = append(logArgs, "digest_cache", fmt.Sprintf("size=%d ttl=%s", c.Engine.DigestCacheSize, c.DigestCacheTTL()))
	}
	if c.Engine.Watch {
		logArgs = append(logArgs, "watch_debounce", c.WatchDebounce())
	}
	if len(c.Hooks.PreCycle) > 0 {
		logArgs = append(logArgs, "pre_cycle_hooks", strings.Join(c.Hooks.PreCycle, "; "))
	}
	if len(c.Hooks.PostCycle) > 0 {
		logArgs = append(logArgs, "post_cycle_hooks", strings.Join(c.Hooks.PostCycle, "; "))
	}
	plog.Info("Configuration loaded", logArgs...)
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. Flags always win over file values.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "source":
			merged.Source = value.(string)
		case "replica":
			merged.Replica = value.(string)
		case "log":
			merged.Log.Path = value.(string)
		case "interval":
			merged.Interval = value.(int)
		case "hash-algorithm":
			merged.HashAlgorithm = value.(string)
		case "log-level":
			merged.Log.Level = value.(string)
		case "log-max-size-mb":
			merged.Log.MaxSizeMB = value.(int)
		case "log-keep":
			merged.Log.Keep = value.(int)
		case "log-compression":
			merged.Log.Compression = value.(string)
		case "workers":
			merged.Engine.Workers = value.(int)
		case "digest-cache-size":
			merged.Engine.DigestCacheSize = value.(int)
		case "digest-cache-ttl":
			merged.Engine.DigestCacheTTLSeconds = value.(int)
		case "dry-run":
			merged.Engine.DryRun = value.(bool)
		case "watch":
			merged.Engine.Watch = value.(bool)
		case "watch-debounce-ms":
			merged.Engine.WatchDebounceMs = value.(int)
		case "pre-cycle-hooks":
			merged.Hooks.PreCycle = value.([]string)
		case "post-cycle-hooks":
			merged.Hooks.PostCycle = value.([]string)
		case "config", "once", "force", "quiet":
			// Consumed by the command itself.
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name, "command", command)
		}
	}
	return merged
}
