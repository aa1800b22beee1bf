package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/rtm0/aodmatch/internal/himawari"
	"github.com/rtm0/aodmatch/internal/station"
)

type Config struct {
	LogLevel string            `mapstructure:"log_level"`
	Paths    PathsConfig       `mapstructure:"paths"`
	Mask     MaskConfig        `mapstructure:"mask"`
	Match    MatchConfig       `mapstructure:"match"`
	Plan     PlanConfig        `mapstructure:"plan"`
	Download DownloadConfig    `mapstructure:"download"`
	Database DatabaseConfig    `mapstructure:"database"`
	Stations []station.Station `mapstructure:"stations"`
}

type PathsConfig struct {
	AODDir       string `mapstructure:"aod_dir"`
	SDADir       string `mapstructure:"sda_dir"`
	GroundTruth  string `mapstructure:"ground_truth"`
	Timestamps   string `mapstructure:"timestamps"`
	Subsampled   string `mapstructure:"subsampled"`
	Progress     string `mapstructure:"progress"`
	HimawariDir  string `mapstructure:"himawari_dir"`
	CloudDir     string `mapstructure:"cloud_dir"`
	Masks        string `mapstructure:"masks"`
	ExtractedDir string `mapstructure:"extracted_dir"`
	Matched      string `mapstructure:"matched"`
	Workbook     string `mapstructure:"workbook"`
}

type MaskConfig struct {
	ThresholdKm float64 `mapstructure:"threshold_km"`
	Reference   string  `mapstructure:"reference"`
}

type MatchConfig struct {
	Tolerance time.Duration `mapstructure:"tolerance"`
}

type PlanConfig struct {
	Window    time.Duration `mapstructure:"window"`
	Daylight  bool          `mapstructure:"daylight"`
	StartHour int           `mapstructure:"start_hour"`
	EndHour   int           `mapstructure:"end_hour"`
	MinAOD    float64       `mapstructure:"min_aod"`
	Subsample int           `mapstructure:"subsample"`
}

type DownloadConfig struct {
	Server         string          `mapstructure:"server"`
	Username       string          `mapstructure:"username"`
	Password       string          `mapstructure:"password"`
	Timeout        time.Duration   `mapstructure:"timeout"`
	Years          []int           `mapstructure:"years"`
	DeleteOriginal bool            `mapstructure:"delete_original"`
	RatePerSecond  float64         `mapstructure:"rate_per_second"`
	Region         himawari.Region `mapstructure:"region"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// Load reads configuration from an optional .env file, the YAML file at path
// (or aodmatch.yaml in the usual places when path is empty) and the
// environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("aodmatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/aodmatch/")
	}

	v.SetEnvPrefix("AODMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	for env, key := range map[string]string{
		"FTP_USERNAME": "download.username",
		"FTP_PWD":      "download.password",
		"DATABASE_URL": "database.url",
		"LOG_LEVEL":    "log_level",
	} {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("paths.aod_dir", "data/aeronet/AOD")
	v.SetDefault("paths.sda_dir", "data/aeronet/FMF")
	v.SetDefault("paths.ground_truth", "data/aeronet/AERONET_groundtruth_ALL.csv")
	v.SetDefault("paths.timestamps", "data/himawari_timestamps_to_download_total.txt")
	v.SetDefault("paths.subsampled", "data/himawari_timestamps_to_download_filtered.txt")
	v.SetDefault("paths.progress", "data/download_progress.json")
	v.SetDefault("paths.himawari_dir", "data/himawari")
	v.SetDefault("paths.cloud_dir", "data/cloud")
	v.SetDefault("paths.masks", "data/station_masks.nc")
	v.SetDefault("paths.extracted_dir", "data/toa_filtered_near_stations")
	v.SetDefault("paths.matched", "data/Final_Matched_Data.csv")
	v.SetDefault("paths.workbook", "")

	v.SetDefault("mask.threshold_km", 2.0)
	v.SetDefault("mask.reference", "")

	v.SetDefault("match.tolerance", "30m")

	v.SetDefault("plan.window", "30m")
	v.SetDefault("plan.daylight", false)
	v.SetDefault("plan.start_hour", 1)
	v.SetDefault("plan.end_hour", 17)
	v.SetDefault("plan.min_aod", 0.0)
	v.SetDefault("plan.subsample", 5)

	v.SetDefault("download.server", "ftp.ptree.jaxa.jp:21")
	v.SetDefault("download.username", "")
	v.SetDefault("download.password", "")
	v.SetDefault("download.timeout", "60s")
	v.SetDefault("download.years", []int{2016, 2017, 2018, 2019})
	v.SetDefault("download.delete_original", true)
	v.SetDefault("download.rate_per_second", 1.0)
	v.SetDefault("download.region.lat_min", 17.0)
	v.SetDefault("download.region.lat_max", 47.0)
	v.SetDefault("download.region.lon_min", 80.24)
	v.SetDefault("download.region.lon_max", 130.0)

	v.SetDefault("database.url", "")
}

func validate(cfg *Config) error {
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.Mask.ThresholdKm <= 0 {
		return errors.New("mask threshold must be positive")
	}
	if cfg.Match.Tolerance < 0 {
		return errors.New("match tolerance must not be negative")
	}
	if cfg.Plan.Window < 0 {
		return errors.New("plan window must not be negative")
	}
	if cfg.Plan.StartHour < 0 || cfg.Plan.EndHour > 23 || cfg.Plan.StartHour > cfg.Plan.EndHour {
		return errors.Errorf("invalid daylight hours %d-%d", cfg.Plan.StartHour, cfg.Plan.EndHour)
	}
	if cfg.Plan.Subsample < 1 {
		return errors.New("subsample interval must be at least 1")
	}
	if len(cfg.Download.Years) == 0 {
		return errors.New("download years cannot be empty")
	}
	if cfg.Download.RatePerSecond < 0 {
		return errors.New("download rate must not be negative")
	}
	if err := cfg.Download.Region.Validate(); err != nil {
		return err
	}
	if _, err := cfg.StationSet(); err != nil {
		return err
	}
	return nil
}

// StationSet returns the configured stations, or the default set when none
// are configured.
func (c *Config) StationSet() (*station.Set, error) {
	if len(c.Stations) == 0 {
		return station.Default(), nil
	}
	return station.NewSet(c.Stations)
}

// HasYear reports whether year is one of the download years.
func (c *Config) HasYear(year int) bool {
	for _, y := range c.Download.Years {
		if y == year {
			return true
		}
	}
	return false
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Errorf("invalid log level %q", s)
	}
	return l, nil
}
