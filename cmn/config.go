// Package cmn provides common low-level types and utilities shared across
// the engine: configuration, the error taxonomy, logging, and id generation.
package cmn

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/catzilla-go/catzilla/cmn/cos"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Config is the full set of options enumerated by the engine's external
// interface. It is assembled in the order defaults -> file -> environment
// -> command-line flags, each layer overlaying only the fields it sets.
type Config struct {
	Net     NetConf     `json:"net"`
	Cache   CacheConf   `json:"cache"`
	Static  StaticConf  `json:"static"`
	Tasks   TasksConf   `json:"tasks"`
	Upload  UploadConf  `json:"upload"`
	Scan    ScanConf    `json:"scan"`
	RateLim RateLimConf `json:"rate_limit"`
	Log     LogConf     `json:"log"`
}

type NetConf struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type CacheConf struct {
	Enabled           bool  `json:"enable_hot_cache"`
	SizeMB            int64 `json:"cache_size_mb"`
	DefaultTTLSeconds int64 `json:"cache_default_ttl_seconds"`
	EnableETags       bool  `json:"enable_etags"`
}

type StaticConf struct {
	MaxFileSize           int64    `json:"max_file_size"`
	AllowedExtensions     []string `json:"allowed_extensions"`
	BlockedExtensions     []string `json:"blocked_extensions"`
	EnableDirectoryListing bool    `json:"enable_directory_listing"`
	EnableHiddenFiles     bool     `json:"enable_hidden_files"`
}

type TasksConf struct {
	InitialWorkers    int   `json:"initial_workers"`
	MinWorkers        int   `json:"min_workers"`
	MaxWorkers        int   `json:"max_workers"`
	QueueSize         int   `json:"queue_size"`
	EnableAutoScaling bool  `json:"enable_auto_scaling"`
	MemoryPoolMB      int64 `json:"task_memory_pool_mb"`
}

type UploadConf struct {
	SmallPoolCapacity  int    `json:"upload_memory_pool_small_capacity"`
	MediumPoolCapacity int    `json:"upload_memory_pool_medium_capacity"`
	LargePoolCapacity  int    `json:"upload_memory_pool_large_capacity"`
	TempDirectory      string `json:"upload_temp_directory"`
}

type ScanConf struct {
	TimeoutSeconds int `json:"virus_scan_timeout_seconds"`
}

type RateLimConf struct {
	MaxRequests   int `json:"rate_limit_max_requests"`
	WindowSeconds int `json:"rate_limit_window_seconds"`
}

// LogConf and the shutdown timeout are the ambient surface the distilled
// option list omits: every running server needs to know how verbosely to
// log and how long to wait for in-flight work on shutdown.
type LogConf struct {
	Level             string `json:"log_level"`
	Dir               string `json:"log_dir"`
	ShutdownTimeoutS  int    `json:"shutdown_timeout_seconds"`
}

// DefaultConfig returns the documented defaults for every option.
func DefaultConfig() *Config {
	return &Config{
		Net: NetConf{Host: "0.0.0.0", Port: 8080},
		Cache: CacheConf{
			Enabled:           true,
			SizeMB:            256,
			DefaultTTLSeconds: 60,
			EnableETags:       true,
		},
		Static: StaticConf{
			MaxFileSize:            100 << 20,
			EnableDirectoryListing: false,
			EnableHiddenFiles:      false,
		},
		Tasks: TasksConf{
			InitialWorkers:    4,
			MinWorkers:        2,
			MaxWorkers:        32,
			QueueSize:         10000,
			EnableAutoScaling: true,
			MemoryPoolMB:      64,
		},
		Upload: UploadConf{
			SmallPoolCapacity:  64,
			MediumPoolCapacity: 32,
			LargePoolCapacity:  8,
			TempDirectory:      os.TempDir(),
		},
		Scan: ScanConf{TimeoutSeconds: 30},
		RateLim: RateLimConf{
			MaxRequests:   100,
			WindowSeconds: 60,
		},
		Log: LogConf{Level: "info", ShutdownTimeoutS: 15},
	}
}

// LoadConfig builds a Config by overlaying defaults with an optional JSON
// file (path may be empty), then environment variables, matching the
// teacher's own defaults -> file -> env -> flags merge order.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "cmn: read config %s", path)
		}
		if err := jsoniter.Unmarshal(b, cfg); err != nil {
			return nil, errors.Wrapf(err, "cmn: parse config %s", path)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CATZILLA_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Net.Port = n
		}
	}
	if v := os.Getenv("CATZILLA_CACHE_SIZE_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Cache.SizeMB = n
		}
	}
	if v := os.Getenv("CATZILLA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CATZILLA_NO_HOT_CACHE"); v != "" {
		if b, err := cos.ParseBool(v); err == nil {
			c.Cache.Enabled = !b
		}
	}
}

// RegisterFlags wires the subset of options worth overriding from the
// command line into fs, following ais/daemon.go's flag.StringVar/IntVar
// registration style.
func (c *Config) RegisterFlags(fset *flag.FlagSet) {
	fset.StringVar(&c.Net.Host, "host", c.Net.Host, "bind address")
	fset.IntVar(&c.Net.Port, "port", c.Net.Port, "listen port")
	fset.BoolVar(&c.Cache.Enabled, "enable-hot-cache", c.Cache.Enabled, "enable the in-memory hot cache")
	fset.Int64Var(&c.Cache.SizeMB, "cache-size-mb", c.Cache.SizeMB, "hot cache byte budget, in MB")
	fset.IntVar(&c.Tasks.InitialWorkers, "initial-workers", c.Tasks.InitialWorkers, "initial worker-pool size")
	fset.StringVar(&c.Upload.TempDirectory, "upload-temp-dir", c.Upload.TempDirectory, "directory for spilled upload parts")
	fset.StringVar(&c.Log.Level, "log-level", c.Log.Level, "error|warning|info|verbose")
}

func (c *Config) Validate() error {
	if c.Net.Port <= 0 || c.Net.Port > 65535 {
		return errors.Errorf("cmn: invalid port %d", c.Net.Port)
	}
	if c.Tasks.MinWorkers <= 0 || c.Tasks.MaxWorkers < c.Tasks.MinWorkers {
		return errors.Errorf("cmn: invalid worker bounds [%d,%d]", c.Tasks.MinWorkers, c.Tasks.MaxWorkers)
	}
	if c.Tasks.InitialWorkers < c.Tasks.MinWorkers || c.Tasks.InitialWorkers > c.Tasks.MaxWorkers {
		return errors.Errorf("cmn: initial_workers %d out of bounds [%d,%d]", c.Tasks.InitialWorkers, c.Tasks.MinWorkers, c.Tasks.MaxWorkers)
	}
	if c.Cache.SizeMB < 0 {
		return errors.Errorf("cmn: negative cache_size_mb")
	}
	return nil
}

// LogLevel converts the configured string into a cmn.Level.
func (c *Config) LogLevel() Level {
	switch strings.ToLower(c.Log.Level) {
	case "error":
		return LevelError
	case "warning", "warn":
		return LevelWarning
	case "verbose", "debug":
		return LevelVerbose
	default:
		return LevelInfo
	}
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Log.ShutdownTimeoutS) * time.Second
}
