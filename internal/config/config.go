// Package config
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/amirphl/option-sim/internal/indicator"
	"github.com/amirphl/option-sim/internal/option"
	"github.com/amirphl/option-sim/internal/simulate"
	"github.com/amirphl/option-sim/internal/strategy"
	"github.com/amirphl/option-sim/internal/tfutils"
	"github.com/amirphl/option-sim/internal/utils"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

/*
YAML config example:
mode: "backtest"
timezone: "Asia/Kolkata"
underlying: "NIFTY"
expiry: "2023-12-28"
day: "2023-12-26"
entry_file: "entrypoints.csv"
output_file: "results.csv"
signals:
  interval: "5m"
  rule: "oscillator-cross"
  fast_period: 5
  slow_period: 20
  osc_period: 9
  osc_smoothing: 3
strikes: { step: 50, count: 3 }
simulation: { target_points: 20, stop_points: 20, interval: "5m", tie_break: "target" }
blob:
  endpoint: "<account>.r2.cloudflarestorage.com"
  bucket: "desiquant"
  region: "auto"
...
Secrets come only from the environment (or a .env file):
OPTSIM_BLOB_ACCESS_KEY, OPTSIM_BLOB_SECRET_KEY, OPTSIM_DB_CONN_STR, OPTSIM_TELEGRAM_TOKEN
*/

var ErrInvalidConfig = errors.New("invalid config")

const (
	ModeSignals      = "signals"
	ModeBacktest     = "backtest"
	ModePipeline     = "pipeline"
	ModeRefreshCache = "refresh-cache"
	ModeMigrate      = "migrate"
)

const (
	EnvBlobAccessKey = "OPTSIM_BLOB_ACCESS_KEY"
	EnvBlobSecretKey = "OPTSIM_BLOB_SECRET_KEY"
	EnvDBConnStr     = "OPTSIM_DB_CONN_STR"
	EnvTelegramToken = "OPTSIM_TELEGRAM_TOKEN"
)

type SignalConfig struct {
	Interval         string `yaml:"interval"`
	Rule             string `yaml:"rule"`
	indicator.Params `yaml:",inline"`
	EntryOffset      int    `yaml:"entry_offset"`
	From             string `yaml:"from"`
	To               string `yaml:"to"`
	Undefined        string `yaml:"undefined"`
	ChartFile        string `yaml:"chart_file"`
	// ChartTail keeps only the last n bars of the chart; 0 keeps the window.
	ChartTail int `yaml:"chart_tail"`
}

type BlobConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	Bucket    string        `yaml:"bucket"`
	Region    string        `yaml:"region"`
	UseSSL    bool          `yaml:"use_ssl"`
	Timeout   time.Duration `yaml:"timeout"`
	RPS       float64       `yaml:"rps"`
	AccessKey string        `yaml:"-"`
	SecretKey string        `yaml:"-"`
}

type Config struct {
	Mode         string `yaml:"mode"`
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`
	RunMigration bool   `yaml:"run_migration"`

	Timezone   string `yaml:"timezone"`
	Underlying string `yaml:"underlying"`
	Expiry     string `yaml:"expiry"`
	Day        string `yaml:"day"`
	Month      string `yaml:"month"`

	DataDir          string        `yaml:"data_dir"`
	CacheDir         string        `yaml:"cache_dir"`
	IndexCacheKey    string        `yaml:"index_cache"`
	CombinedCacheKey string        `yaml:"combined_cache"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	OptionPrefix     string        `yaml:"option_prefix"`
	IndexPrefix      string        `yaml:"index_prefix"`
	Blob             BlobConfig    `yaml:"blob"`

	EntryFile   string `yaml:"entry_file"`
	OutputFile  string `yaml:"output_file"`
	SummaryFile string `yaml:"summary_file"`

	Signals    SignalConfig    `yaml:"signals"`
	Strikes    option.Deriver  `yaml:"strikes"`
	Simulation simulate.Params `yaml:"simulation"`

	Workers         int           `yaml:"workers"`
	ResolverTimeout time.Duration `yaml:"resolver_timeout"`

	DBConnStr string `yaml:"-"`
	DBMaxOpen int    `yaml:"db_max_open"`
	DBMaxIdle int    `yaml:"db_max_idle"`

	MetricsAddr string `yaml:"metrics_addr"`

	TelegramToken       string        `yaml:"-"`
	TelegramChatID      string        `yaml:"telegram_chat_id"`
	NotificationRetries int           `yaml:"notification_retries"`
	NotificationDelay   time.Duration `yaml:"notification_delay"`

	// Resolved by Validate.
	Location   *time.Location `yaml:"-"`
	ExpiryDate time.Time      `yaml:"-"`
	DayDate    time.Time      `yaml:"-"`
	From       time.Time      `yaml:"-"`
	To         time.Time      `yaml:"-"`
}

func Default() Config {
	return Config{
		Mode:             ModeBacktest,
		LogLevel:         "info",
		LogFile:          "option-sim.log",
		Timezone:         "Asia/Kolkata",
		Underlying:       "NIFTY",
		DataDir:          ".",
		CacheDir:         "cache",
		IndexCacheKey:    "nifty50_index.parquet",
		CombinedCacheKey: "nifty_options_combined.parquet",
		CacheTTL:         time.Hour,
		OptionPrefix:     "data/candles/NIFTY",
		IndexPrefix:      "data/candles/NIFTY 50",
		Blob: BlobConfig{
			Bucket:  "desiquant",
			Region:  "auto",
			UseSSL:  true,
			Timeout: 30 * time.Second,
			RPS:     10,
		},
		EntryFile:  "entrypoints.csv",
		OutputFile: "results.csv",
		Signals: SignalConfig{
			Interval:    "5m",
			Rule:        strategy.RuleMACross,
			Params:      indicator.DefaultParams(),
			EntryOffset: 3,
			Undefined:   string(indicator.UndefinedMissing),
		},
		Strikes:             option.DefaultDeriver(),
		Simulation:          simulate.DefaultParams(),
		Workers:             8,
		ResolverTimeout:     2 * time.Minute,
		DBMaxOpen:           10,
		DBMaxIdle:           5,
		NotificationRetries: 3,
		NotificationDelay:   5 * time.Second,
	}
}

// configPath finds -config in args without parsing the rest.
func configPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// Load builds the configuration: defaults, then the YAML file named by
// -config, then command line flags, then secrets from the environment.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := configPath(args); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	fs := flag.NewFlagSet("option-sim", flag.ContinueOnError)
	fs.String("config", "", "Path to YAML config file")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Mode: signals, backtest, pipeline, refresh-cache or migrate")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file, empty to disable")
	fs.BoolVar(&cfg.RunMigration, "migrate", cfg.RunMigration, "Apply scripts/schema.sql before running")
	fs.StringVar(&cfg.Timezone, "timezone", cfg.Timezone, "Exchange timezone")
	fs.StringVar(&cfg.Underlying, "underlying", cfg.Underlying, "Underlying index symbol")
	fs.StringVar(&cfg.Expiry, "expiry", cfg.Expiry, "Option expiry (YYYY-MM-DD)")
	fs.StringVar(&cfg.Day, "day", cfg.Day, "Trading day to simulate (YYYY-MM-DD), defaults to each entry's day")
	fs.StringVar(&cfg.Month, "month", cfg.Month, "Month to rebuild the combined cache for (YYYY-MM)")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Root of local per-strike files")
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "Directory of cache files")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "Cache freshness window")
	fs.StringVar(&cfg.OptionPrefix, "option-prefix", cfg.OptionPrefix, "Remote option data prefix")
	fs.StringVar(&cfg.IndexPrefix, "index-prefix", cfg.IndexPrefix, "Remote index data prefix")
	fs.StringVar(&cfg.Blob.Endpoint, "blob-endpoint", cfg.Blob.Endpoint, "S3 compatible endpoint, empty disables remote tiers")
	fs.StringVar(&cfg.Blob.Bucket, "blob-bucket", cfg.Blob.Bucket, "Bucket name")
	fs.DurationVar(&cfg.Blob.Timeout, "blob-timeout", cfg.Blob.Timeout, "Per call timeout of the blob store")
	fs.Float64Var(&cfg.Blob.RPS, "blob-rps", cfg.Blob.RPS, "Blob store requests per second")
	fs.StringVar(&cfg.EntryFile, "entry-file", cfg.EntryFile, "Entry-point feed (CSV or parquet)")
	fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Result CSV")
	fs.StringVar(&cfg.SummaryFile, "summary", cfg.SummaryFile, "Result summary JSON, defaults next to the CSV")
	fs.StringVar(&cfg.Signals.Interval, "interval", cfg.Signals.Interval, "Signal timeframe")
	fs.StringVar(&cfg.Signals.Rule, "rule", cfg.Signals.Rule, "Signal rule: ma-cross or oscillator-cross")
	fs.IntVar(&cfg.Signals.FastPeriod, "fast", cfg.Signals.FastPeriod, "Fast moving average period")
	fs.IntVar(&cfg.Signals.SlowPeriod, "slow", cfg.Signals.SlowPeriod, "Slow moving average period")
	fs.IntVar(&cfg.Signals.OscPeriod, "osc-period", cfg.Signals.OscPeriod, "Oscillator period")
	fs.IntVar(&cfg.Signals.OscSmoothing, "osc-smoothing", cfg.Signals.OscSmoothing, "Oscillator smoothing period, 0 for none")
	fs.IntVar(&cfg.Signals.EntryOffset, "entry-offset", cfg.Signals.EntryOffset, "Bars between signal and entry")
	fs.StringVar(&cfg.Signals.From, "from", cfg.Signals.From, "Signal window start (YYYY-MM-DD[ HH:MM])")
	fs.StringVar(&cfg.Signals.To, "to", cfg.Signals.To, "Signal window end, exclusive")
	fs.StringVar(&cfg.Signals.Undefined, "undefined", cfg.Signals.Undefined, "Undefined indicator policy: missing or zero")
	fs.StringVar(&cfg.Signals.ChartFile, "chart", cfg.Signals.ChartFile, "Write the chart payload JSON here")
	fs.IntVar(&cfg.Signals.ChartTail, "tail", cfg.Signals.ChartTail, "Keep only the last n bars of the chart (0 keeps all)")
	fs.IntVar(&cfg.Strikes.Step, "strike-step", cfg.Strikes.Step, "Strike step")
	fs.IntVar(&cfg.Strikes.Count, "strike-count", cfg.Strikes.Count, "Strikes per signal")
	fs.Float64Var(&cfg.Simulation.TargetPoints, "target", cfg.Simulation.TargetPoints, "Target offset in points")
	fs.Float64Var(&cfg.Simulation.StopPoints, "stop", cfg.Simulation.StopPoints, "Stop offset in points")
	fs.StringVar(&cfg.Simulation.Interval, "sim-interval", cfg.Simulation.Interval, "Simulation timeframe")
	tieBreak := fs.String("tie-break", string(cfg.Simulation.TieBreak), "Same candle tie: target or stop")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent candidate workers")
	fs.DurationVar(&cfg.ResolverTimeout, "resolver-timeout", cfg.ResolverTimeout, "Timeout per resolver tier")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve prometheus metrics on this address")
	fs.StringVar(&cfg.TelegramChatID, "telegram-chat", cfg.TelegramChatID, "Telegram chat ID for notifications")
	fs.IntVar(&cfg.NotificationRetries, "notification-retries", cfg.NotificationRetries, "Number of notification send attempts")
	fs.DurationVar(&cfg.NotificationDelay, "notification-delay", cfg.NotificationDelay, "Delay between notification retries (e.g., 5s)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Simulation.TieBreak = simulate.TieBreak(*tieBreak)

	cfg.Blob.AccessKey = os.Getenv(EnvBlobAccessKey)
	cfg.Blob.SecretKey = os.Getenv(EnvBlobSecretKey)
	cfg.DBConnStr = os.Getenv(EnvDBConnStr)
	cfg.TelegramToken = os.Getenv(EnvTelegramToken)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoadConfig loads from the process arguments and exits on error.
func MustLoadConfig() Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		utils.GetLogger().Fatal().Err(err).Msg("failed to load config")
	}
	return cfg
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func parseWindow(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// Validate checks the configuration and fills the resolved fields.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSignals, ModeBacktest, ModePipeline, ModeRefreshCache, ModeMigrate:
	default:
		return invalid("unknown mode %q", c.Mode)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return invalid("timezone %q: %v", c.Timezone, err)
	}
	c.Location = loc

	if !tfutils.IsValidTimeframe(c.Signals.Interval) {
		return invalid("signal interval %q", c.Signals.Interval)
	}
	if _, err := strategy.NewRule(c.Signals.Rule); err != nil {
		return invalid("%v", err)
	}
	if err := c.Signals.Params.Validate(); err != nil {
		return invalid("%v", err)
	}
	if c.Signals.Rule == strategy.RuleOscillatorCross && c.Signals.OscSmoothing <= 0 {
		return invalid("oscillator-cross needs osc_smoothing > 0")
	}
	if c.Signals.ChartTail < 0 {
		return invalid("chart tail cannot be negative")
	}
	if c.Signals.EntryOffset < 0 {
		return invalid("entry offset cannot be negative")
	}
	if _, err := indicator.ParseUndefinedPolicy(c.Signals.Undefined); err != nil {
		return invalid("%v", err)
	}
	if err := c.Strikes.Validate(); err != nil {
		return invalid("%v", err)
	}
	if err := c.Simulation.Validate(); err != nil {
		return invalid("%v", err)
	}
	if c.Workers < 1 {
		return invalid("workers must be at least 1")
	}
	if c.CacheTTL <= 0 {
		return invalid("cache ttl must be positive")
	}

	if c.Signals.From != "" {
		if c.From, err = parseWindow(c.Signals.From, loc); err != nil {
			return invalid("from: %v", err)
		}
	}
	if c.Signals.To != "" {
		if c.To, err = parseWindow(c.Signals.To, loc); err != nil {
			return invalid("to: %v", err)
		}
	}
	if !c.From.IsZero() && !c.To.IsZero() && !c.From.Before(c.To) {
		return invalid("from must be before to")
	}

	if c.Expiry != "" {
		if c.ExpiryDate, err = time.ParseInLocation(option.ExpiryLayout, c.Expiry, loc); err != nil {
			return invalid("expiry %q", c.Expiry)
		}
	}
	if c.Day != "" {
		if c.DayDate, err = time.ParseInLocation(option.ExpiryLayout, c.Day, loc); err != nil {
			return invalid("day %q", c.Day)
		}
	}

	switch c.Mode {
	case ModeBacktest:
		if c.Expiry == "" {
			return invalid("backtest needs an expiry")
		}
		if c.EntryFile == "" {
			return invalid("backtest needs an entry file")
		}
		if _, err := os.Stat(c.EntryFile); err != nil {
			return invalid("entry file: %v", err)
		}
	case ModePipeline:
		if c.Expiry == "" {
			return invalid("pipeline needs an expiry")
		}
	case ModeRefreshCache:
		if c.Month == "" && c.Expiry != "" {
			c.Month = c.ExpiryDate.Format("2006-01")
		}
		if _, err := time.Parse("2006-01", c.Month); err != nil {
			return invalid("refresh-cache needs a month (YYYY-MM)")
		}
		if c.Blob.Endpoint == "" {
			return invalid("refresh-cache needs a blob endpoint")
		}
	case ModeMigrate:
		if c.DBConnStr == "" {
			return invalid("migrate needs %s", EnvDBConnStr)
		}
	}

	if c.SummaryFile == "" && c.OutputFile != "" {
		c.SummaryFile = strings.TrimSuffix(c.OutputFile, filepath.Ext(c.OutputFile)) + ".summary.json"
	}
	return nil
}

// UndefinedPolicy returns the parsed policy; Validate has checked it.
func (c *Config) UndefinedPolicy() indicator.UndefinedPolicy {
	p, _ := indicator.ParseUndefinedPolicy(c.Signals.Undefined)
	return p
}
