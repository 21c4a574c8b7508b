package config

import (
	"fmt"
	"path/filepath"

	"dcgm-keeper/internal/env"

	"github.com/spf13/viper"
)

/**
 * Installation configuration
 * @property {string} mode - Artifact acquisition mode (build/extract)
 * @property {string} dir - Directory the exporter binary is installed to
 * @property {int} port - Exporter listen port
 * @property {string} version - Requested version specifier (empty means trunk)
 * @property {string} repository - Exporter source repository (build mode)
 * @property {string} trunk - Trunk reference used as the last resolution fallback
 * @property {string} image - Packaged exporter image (extract mode)
 * @property {string} counters_file - Installed counters configuration path
 * @property {string} debug_level - Debug flag passed on the exporter command line
 * @property {string} driver_command - Driver command probed before any mutation
 * @property {string} companion_unit - Unit that must be active before install
 */
type InstallConfig struct {
	Mode           string `mapstructure:"mode"`
	Dir            string `mapstructure:"dir"`
	Port           int    `mapstructure:"port"`
	Version        string `mapstructure:"version"`
	Repository     string `mapstructure:"repository"`
	Trunk          string `mapstructure:"trunk"`
	Image          string `mapstructure:"image"`
	CountersFile   string `mapstructure:"counters_file"`
	DebugLevel     string `mapstructure:"debug_level"`
	DriverCommand  string `mapstructure:"driver_command"`
	CompanionUnit  string `mapstructure:"companion_unit"`
	EphemeralRtPkg string `mapstructure:"ephemeral_runtime_package"`
}

/**
 * Service supervision configuration
 * @property {string} unit_name - Managed unit name
 * @property {string} unit_dir - Directory unit files are written to
 * @property {int} restart_delay_sec - Fixed restart delay in the unit file
 * @property {int} poll_attempts - Bounded retry budget for the active poll
 * @property {int} poll_interval_sec - Fixed poll interval
 * @property {int} journal_lines - Diagnostic log tail length captured on failure
 */
type SupervisorConfig struct {
	UnitName        string `mapstructure:"unit_name"`
	UnitDir         string `mapstructure:"unit_dir"`
	ServiceUser     string `mapstructure:"service_user"`
	RestartDelaySec int    `mapstructure:"restart_delay_sec"`
	PollAttempts    int    `mapstructure:"poll_attempts"`
	PollIntervalSec int    `mapstructure:"poll_interval_sec"`
	JournalLines    int    `mapstructure:"journal_lines"`
}

/**
 * Downstream scrape configuration document settings
 * @property {string} config_path - Prometheus configuration document path
 * @property {string} job_name - Scrape job inserted for the exporter
 * @property {string} target_host - Host part of the static scrape target
 * @property {string} scrape_interval - Job scrape interval
 * @property {string} scrape_timeout - Job scrape timeout
 * @property {string} reload_unit - Consumer reloaded after a real mutation
 */
type PrometheusConfig struct {
	ConfigPath     string            `mapstructure:"config_path"`
	JobName        string            `mapstructure:"job_name"`
	TargetHost     string            `mapstructure:"target_host"`
	ScrapeInterval string            `mapstructure:"scrape_interval"`
	ScrapeTimeout  string            `mapstructure:"scrape_timeout"`
	ReloadUnit     string            `mapstructure:"reload_unit"`
	Labels         map[string]string `mapstructure:"labels"`
}

/**
 * Health verification configuration
 * @property {[]string} baseline_prefixes - Metric family prefixes required for availability
 * @property {[]string} extended_prefixes - Optional family prefixes (profiling metrics)
 * @property {int} poll_attempts - Bounded retry budget for the metrics poll
 * @property {int} poll_interval_sec - Fixed poll interval
 */
type HealthConfig struct {
	BaselinePrefixes []string `mapstructure:"baseline_prefixes"`
	ExtendedPrefixes []string `mapstructure:"extended_prefixes"`
	PollAttempts     int      `mapstructure:"poll_attempts"`
	PollIntervalSec  int      `mapstructure:"poll_interval_sec"`
}

/**
 * Management server configuration
 * @property {string} address - Server listening address (e.g. ":9401")
 * @property {string} mode - Gin mode (debug/release/test)
 * @property {int} check_interval_sec - Periodic re-verification interval
 */
type ServerConfig struct {
	Address          string `mapstructure:"address"`
	Mode             string `mapstructure:"mode"`
	CheckIntervalSec int    `mapstructure:"check_interval_sec"`
}

/**
 * Logging configuration
 * @property {string} level - Log level (debug/info/warn/error)
 * @property {string} path - Log file path ("console" writes to stdout)
 */
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

type AppConfig struct {
	Install    InstallConfig    `mapstructure:"install"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
}

/**
 * Load application configuration from YAML file
 * @returns {*AppConfig} Parsed configuration, defaults applied
 * @returns {error} Returns error only when an existing file cannot be parsed
 * @description
 * - Looks for config.yaml in the working directory and the keeper state dir
 * - A missing file is not an error: all settings carry working defaults
 */
func LoadConfig() (*AppConfig, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(env.KeeperDir)

	var cfg AppConfig
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	} else if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}
	collectConfig(&cfg)
	return &cfg, nil
}

var Config AppConfig

/**
 * Fill unset fields with documented defaults
 * @param {*AppConfig} cfg - Configuration to complete
 * @returns {*AppConfig} Same pointer, for chaining
 * @description
 * - Environment overrides (DCGM_EXPORTER_PORT and friends) win over the
 *   built-in defaults but lose to explicit config file values
 */
func collectConfig(cfg *AppConfig) *AppConfig {
	ins := &cfg.Install
	if ins.Mode == "" {
		ins.Mode = "extract"
	}
	if ins.Dir == "" {
		ins.Dir = env.InstallDir
	}
	if ins.Port == 0 {
		ins.Port = env.ExporterPort
	}
	if ins.Repository == "" {
		ins.Repository = "https://github.com/NVIDIA/dcgm-exporter"
	}
	if ins.Trunk == "" {
		ins.Trunk = "main"
	}
	if ins.Image == "" {
		ins.Image = "nvcr.io/nvidia/k8s/dcgm-exporter"
	}
	if ins.CountersFile == "" {
		ins.CountersFile = "/etc/dcgm-exporter/default-counters.csv"
	}
	if ins.DebugLevel == "" {
		ins.DebugLevel = "info"
	}
	if ins.DriverCommand == "" {
		ins.DriverCommand = "nvidia-smi"
	}
	if ins.CompanionUnit == "" {
		ins.CompanionUnit = "nvidia-dcgm.service"
	}
	if ins.EphemeralRtPkg == "" {
		ins.EphemeralRtPkg = "docker.io"
	}

	sup := &cfg.Supervisor
	if sup.UnitName == "" {
		sup.UnitName = "dcgm-exporter.service"
	}
	if sup.UnitDir == "" {
		sup.UnitDir = "/etc/systemd/system"
	}
	if sup.ServiceUser == "" {
		sup.ServiceUser = env.ServiceUser
	}
	if sup.RestartDelaySec == 0 {
		sup.RestartDelaySec = 10
	}
	if sup.PollAttempts == 0 {
		sup.PollAttempts = 3
	}
	if sup.PollIntervalSec == 0 {
		sup.PollIntervalSec = 3
	}
	if sup.JournalLines == 0 {
		sup.JournalLines = 50
	}

	prom := &cfg.Prometheus
	if prom.ConfigPath == "" {
		prom.ConfigPath = "/etc/prometheus/prometheus.yml"
	}
	if prom.JobName == "" {
		prom.JobName = "dcgm-exporter"
	}
	if prom.TargetHost == "" {
		prom.TargetHost = "localhost"
	}
	if prom.ScrapeInterval == "" {
		prom.ScrapeInterval = "15s"
	}
	if prom.ScrapeTimeout == "" {
		prom.ScrapeTimeout = "10s"
	}
	if prom.ReloadUnit == "" {
		prom.ReloadUnit = "prometheus.service"
	}

	h := &cfg.Health
	if len(h.BaselinePrefixes) == 0 {
		h.BaselinePrefixes = []string{"DCGM_FI_DEV_"}
	}
	if len(h.ExtendedPrefixes) == 0 {
		h.ExtendedPrefixes = []string{"DCGM_FI_PROF_"}
	}
	if h.PollAttempts == 0 {
		h.PollAttempts = 10
	}
	if h.PollIntervalSec == 0 {
		h.PollIntervalSec = 3
	}

	srv := &cfg.Server
	if srv.Address == "" {
		srv.Address = ":9401"
	}
	if srv.Mode == "" {
		srv.Mode = "release"
	}
	if srv.CheckIntervalSec == 0 {
		srv.CheckIntervalSec = 60
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Path == "" {
		cfg.Log.Path = "console"
	}
	return cfg
}

/**
 * Lock file guarding the document read-modify-write and unit install/reload
 */
func LockPath() string {
	return filepath.Join(env.KeeperDir, "keeper.lock")
}

func init() {
	cfg, err := LoadConfig()
	if err == nil {
		Config = *cfg
	} else {
		collectConfig(&Config)
	}
}
