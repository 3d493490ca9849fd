package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// WorkerSettings sizes one component's worker pool.
type WorkerSettings struct {
	ConcurrentTasks int `mapstructure:"concurrent_tasks" validate:"min=1"`
	SelectLimit     int `mapstructure:"select_limit" validate:"min=1"`
	IntervalSeconds int `mapstructure:"interval_seconds" validate:"min=1"`
}

// Interval returns the tick interval as a duration.
func (w WorkerSettings) Interval() time.Duration {
	return time.Duration(w.IntervalSeconds) * time.Second
}

// MonitorSettings extends the common worker settings with the probe
// concurrency bound.
type MonitorSettings struct {
	WorkerSettings `mapstructure:",squash"`

	// PingConcurrency bounds in-flight probes per batch. Together with
	// SelectLimit it bounds how long a batch holds its row locks.
	PingConcurrency int `mapstructure:"ping_concurrency" validate:"min=1"`
}

// Config is the engine configuration, loaded from VIGIL_-prefixed
// environment variables with an optional YAML file underneath.
type Config struct {
	DatabaseURL            string `mapstructure:"database_url" validate:"required"`
	DatabaseMaxConnections int32  `mapstructure:"database_max_connections" validate:"min=1"`

	ListenAddr string `mapstructure:"listen_addr"`
	BlobDir    string `mapstructure:"blob_dir"`

	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogJSON  bool   `mapstructure:"log_json"`

	HTTPMonitors  MonitorSettings `mapstructure:"http_monitors"`
	Notifications WorkerSettings  `mapstructure:"notifications"`
	DeadTaskRuns  WorkerSettings  `mapstructure:"dead_task_runs"`
	DueTasks      WorkerSettings  `mapstructure:"due_tasks"`
	LateTasks     WorkerSettings  `mapstructure:"late_tasks"`
	AbsentTasks   WorkerSettings  `mapstructure:"absent_tasks"`
}

var validate = validator.New()

// Load reads configuration from the environment (VIGIL_ prefix, e.g.
// VIGIL_DATABASE_URL, VIGIL_HTTP_MONITORS_SELECT_LIMIT) and an optional
// config file named by VIGIL_CONFIG_FILE.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VIGIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("database_max_connections", 10)
	v.SetDefault("listen_addr", ":9090")
	v.SetDefault("blob_dir", "/var/lib/vigil/blobs")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", true)

	defaultWorker(v, "http_monitors", 1, 500, 10)
	v.SetDefault("http_monitors.ping_concurrency", 20)
	defaultWorker(v, "notifications", 1, 100, 10)
	defaultWorker(v, "dead_task_runs", 1, 500, 5)
	defaultWorker(v, "due_tasks", 1, 500, 5)
	defaultWorker(v, "late_tasks", 1, 500, 5)
	defaultWorker(v, "absent_tasks", 1, 500, 5)
}

func defaultWorker(v *viper.Viper, name string, workers, selectLimit, intervalSeconds int) {
	v.SetDefault(name+".concurrent_tasks", workers)
	v.SetDefault(name+".select_limit", selectLimit)
	v.SetDefault(name+".interval_seconds", intervalSeconds)
}
