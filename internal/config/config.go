package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Paths   PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Process ProcessConfig `yaml:"process" mapstructure:"process"`
	Audit   AuditConfig   `yaml:"audit" mapstructure:"audit"`
	Overlay OverlayConfig `yaml:"overlay" mapstructure:"overlay"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// PathsConfig names the data directories the pipeline reads and writes.
// Input rasters live under per-country subdirectories of InputDir.
type PathsConfig struct {
	InputDir     string `yaml:"input_dir" mapstructure:"input_dir"`
	ProcessedDir string `yaml:"processed_dir" mapstructure:"processed_dir"`
	OverlaysDir  string `yaml:"overlays_dir" mapstructure:"overlays_dir"`
	RawDataDir   string `yaml:"raw_data_dir" mapstructure:"raw_data_dir"`
	FrontendDir  string `yaml:"frontend_dir" mapstructure:"frontend_dir"`
	Manifest     string `yaml:"manifest" mapstructure:"manifest"`
}

// ProcessConfig configures the batch exposure run.
type ProcessConfig struct {
	Workers int  `yaml:"workers" mapstructure:"workers"`
	Force   bool `yaml:"force" mapstructure:"force"`
}

// AuditConfig configures edge-pattern scanning.
type AuditConfig struct {
	ZeroThreshold float64 `yaml:"zero_threshold" mapstructure:"zero_threshold"`
}

// OverlayConfig configures PNG overlay rendering.
type OverlayConfig struct {
	Style             string  `yaml:"style" mapstructure:"style"`
	GlobalMaxExposure float64 `yaml:"global_max_exposure" mapstructure:"global_max_exposure"`
	HeatMaxDim        int     `yaml:"heat_max_dim" mapstructure:"heat_max_dim"`
	UniformMaxDim     int     `yaml:"uniform_max_dim" mapstructure:"uniform_max_dim"`
	MaxPixelSamples   int     `yaml:"max_pixel_samples" mapstructure:"max_pixel_samples"`
}

// StoreConfig configures the database backend. The pool sizes only apply
// to the postgres driver.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the static viewer server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EXPOSURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func defaults() map[string]any {
	return map[string]any{
		"paths.input_dir":             "input_geotiffs",
		"paths.processed_dir":         "processed",
		"paths.overlays_dir":          "overlays",
		"paths.raw_data_dir":          "raw_data",
		"paths.frontend_dir":          "frontend",
		"paths.manifest":              "assets.json",
		"process.workers":             4,
		"audit.zero_threshold":        0.0,
		"overlay.style":               "uniform",
		"overlay.global_max_exposure": 30_000_000.0,
		"overlay.heat_max_dim":        300,
		"overlay.uniform_max_dim":     200,
		"overlay.max_pixel_samples":   10_000,
		"store.driver":                "sqlite",
		"store.path":                  "exposure.db",
		"store.max_conns":             10,
		"store.min_conns":             2,
		"server.port":                 8000,
		"log.level":                   "info",
		"log.format":                  "json",
	}
}

// Validate checks the fields the given mode depends on. Modes are the
// top-level commands: process, audit, overlay, serve.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "process":
		if c.Process.Workers < 1 || c.Process.Workers > 64 {
			problems = append(problems, "process.workers must be between 1 and 64")
		}
	case "audit":
		if c.Audit.ZeroThreshold < 0 {
			problems = append(problems, "audit.zero_threshold must be >= 0")
		}
	case "overlay":
		if c.Overlay.Style != "uniform" && c.Overlay.Style != "heat" {
			problems = append(problems, "overlay.style must be uniform or heat")
		}
		if c.Overlay.GlobalMaxExposure <= 0 {
			problems = append(problems, "overlay.global_max_exposure must be > 0")
		}
		if c.Overlay.HeatMaxDim < 1 || c.Overlay.UniformMaxDim < 1 {
			problems = append(problems, "overlay max dimensions must be >= 1")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// WriteDefault writes a config file populated with the default values.
// It refuses to clobber an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return eris.Errorf("config: %s already exists", path)
	}

	v := viper.New()
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return eris.Wrap(err, "config: unmarshal defaults")
	}

	buf, err := yaml.Marshal(&cfg)
	if err != nil {
		return eris.Wrap(err, "config: marshal defaults")
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return eris.Wrapf(err, "config: write %s", path)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
