package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Socrata SocrataConfig `yaml:"socrata" mapstructure:"socrata"`
	Grid    GridConfig    `yaml:"grid" mapstructure:"grid"`
	Feature FeatureConfig `yaml:"feature" mapstructure:"feature"`
	Model   ModelConfig   `yaml:"model" mapstructure:"model"`
	Compare CompareConfig `yaml:"compare" mapstructure:"compare"`
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the SQLite database backend.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SocrataConfig holds the open-data portal endpoints and dataset identifiers.
type SocrataConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	CrimeDataset     string `yaml:"crime_dataset" mapstructure:"crime_dataset"`
	CrimeCategory    string `yaml:"crime_category" mapstructure:"crime_category"`
	AbandonedDataset string `yaml:"abandoned_dataset" mapstructure:"abandoned_dataset"`
	LightsDataset    string `yaml:"lights_dataset" mapstructure:"lights_dataset"`
	SensorDataset    string `yaml:"sensor_dataset" mapstructure:"sensor_dataset"`
	BoundaryDataset  string `yaml:"boundary_dataset" mapstructure:"boundary_dataset"`
	HoodDataset      string `yaml:"hood_dataset" mapstructure:"hood_dataset"`
	PageSize         int    `yaml:"page_size" mapstructure:"page_size"`
	Format           string `yaml:"format" mapstructure:"format"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	Year             int    `yaml:"year" mapstructure:"year"`
	HoldoutYear      int    `yaml:"holdout_year" mapstructure:"holdout_year"`
}

// GridConfig configures fishnet construction.
type GridConfig struct {
	CellFt float64 `yaml:"cell_ft" mapstructure:"cell_ft"`
}

// FeatureConfig configures the per-cell feature build.
type FeatureConfig struct {
	KNearest     int     `yaml:"k_nearest" mapstructure:"k_nearest"`
	Permutations int     `yaml:"permutations" mapstructure:"permutations"`
	Significance float64 `yaml:"significance" mapstructure:"significance"`
	Seed         int64   `yaml:"seed" mapstructure:"seed"`
}

// ModelConfig configures regression and cross-validation.
type ModelConfig struct {
	Folds   int     `yaml:"folds" mapstructure:"folds"`
	Seed    int64   `yaml:"seed" mapstructure:"seed"`
	MaxIter int     `yaml:"max_iter" mapstructure:"max_iter"`
	Tol     float64 `yaml:"tol" mapstructure:"tol"`
}

// CompareConfig configures the kernel-density baseline comparison.
type CompareConfig struct {
	BandwidthsFt []float64 `yaml:"bandwidths_ft" mapstructure:"bandwidths_ft"`
	Categories   int       `yaml:"categories" mapstructure:"categories"`
}

// ReportConfig configures output artifacts.
type ReportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
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
	v.SetEnvPrefix("RISKGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.path", "riskgrid.db")
	v.SetDefault("socrata.base_url", "https://data.cityofchicago.org")
	v.SetDefault("socrata.crime_dataset", "ijzp-q8t2")
	v.SetDefault("socrata.crime_category", "WEAPONS VIOLATION")
	v.SetDefault("socrata.abandoned_dataset", "7nii-7srd")
	v.SetDefault("socrata.lights_dataset", "zuxi-7xem")
	v.SetDefault("socrata.sensor_dataset", "3h7q-at66")
	v.SetDefault("socrata.boundary_dataset", "ewy2-6yfk")
	v.SetDefault("socrata.hood_dataset", "bbvz-uum9")
	v.SetDefault("socrata.page_size", 50000)
	v.SetDefault("socrata.format", "json")
	v.SetDefault("socrata.user_agent", "riskgrid/1.0")
	v.SetDefault("socrata.year", 2017)
	v.SetDefault("socrata.holdout_year", 2018)
	v.SetDefault("grid.cell_ft", 500.0)
	v.SetDefault("feature.k_nearest", 3)
	v.SetDefault("feature.permutations", 999)
	v.SetDefault("feature.significance", 0.001)
	v.SetDefault("feature.seed", 1234)
	v.SetDefault("model.folds", 24)
	v.SetDefault("model.seed", 1234)
	v.SetDefault("model.max_iter", 100)
	v.SetDefault("model.tol", 1e-8)
	v.SetDefault("compare.bandwidths_ft", []float64{1000, 1500, 2000})
	v.SetDefault("compare.categories", 5)
	v.SetDefault("report.dir", "report")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks that the configuration is usable for the given command.
func (c *Config) Validate(mode string) error {
	if c.Store.Path == "" {
		return eris.New("config: store.path is required")
	}

	switch mode {
	case "ingest":
		if c.Socrata.BaseURL == "" {
			return eris.New("config: socrata.base_url is required")
		}
		if c.Socrata.Year <= 0 {
			return eris.New("config: socrata.year must be positive")
		}
		if c.Socrata.Format != "" && c.Socrata.Format != "json" && c.Socrata.Format != "csv" {
			return eris.Errorf("config: socrata.format must be json or csv, got %q", c.Socrata.Format)
		}
		if c.Socrata.HoldoutYear != 0 && c.Socrata.HoldoutYear <= c.Socrata.Year {
			return eris.New("config: socrata.holdout_year must follow socrata.year")
		}
	case "grid":
		if c.Grid.CellFt <= 0 {
			return eris.New("config: grid.cell_ft must be positive")
		}
	case "features":
		if c.Feature.KNearest <= 0 {
			return eris.New("config: feature.k_nearest must be positive")
		}
		if c.Feature.Permutations <= 0 {
			return eris.New("config: feature.permutations must be positive")
		}
		if c.Feature.Significance <= 0 || c.Feature.Significance >= 1 {
			return eris.New("config: feature.significance must be in (0, 1)")
		}
	case "model":
		if c.Model.Folds < 2 {
			return eris.New("config: model.folds must be at least 2")
		}
	case "compare":
		if len(c.Compare.BandwidthsFt) == 0 {
			return eris.New("config: compare.bandwidths_ft must not be empty")
		}
		for _, bw := range c.Compare.BandwidthsFt {
			if bw <= 0 {
				return eris.New("config: compare.bandwidths_ft entries must be positive")
			}
		}
		if c.Compare.Categories < 2 {
			return eris.New("config: compare.categories must be at least 2")
		}
	case "report":
		if c.Report.Dir == "" {
			return eris.New("config: report.dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
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
