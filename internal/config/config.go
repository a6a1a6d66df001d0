package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	Scores        ScoresConfig        `mapstructure:"scores"`
	Detection     DetectionConfig     `mapstructure:"detection"`
	Dedup         DedupConfig         `mapstructure:"dedup"`
	Scorer        ScorerConfig        `mapstructure:"scorer"`
	Backtest      BacktestConfig      `mapstructure:"backtest"`
	Alignment     AlignmentConfig     `mapstructure:"alignment"`
	OutcomeIngest OutcomeIngestConfig `mapstructure:"outcome_ingest"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Retry         RetryConfig         `mapstructure:"retry"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string   `mapstructure:"level"`
	Encoding          string   `mapstructure:"encoding"`
	Service           string   `mapstructure:"service"`
	OutputPaths       []string `mapstructure:"output_paths"`
	Development       bool     `mapstructure:"development"`
	Sampling          bool     `mapstructure:"sampling"`
	DisableCaller     bool     `mapstructure:"disable_caller"`
	DisableStacktrace bool     `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN                string        `mapstructure:"dsn"`
	MaxOpenConns       int           `mapstructure:"max_open_conns"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone           string        `mapstructure:"timezone"`
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
}

type CronConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	DetectionSweep string `mapstructure:"detection_sweep"`
	BacktestSweep  string `mapstructure:"backtest_sweep"`
	AlignmentSweep string `mapstructure:"alignment_sweep"`
	StaleRuns      string `mapstructure:"stale_runs"`
}

// ScoresConfig points at the outcome feed.
type ScoresConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DetectionConfig struct {
	Workers     int                  `mapstructure:"workers"`
	KeyTimeout  time.Duration        `mapstructure:"key_timeout"`
	WindowHours int                  `mapstructure:"window_hours"`
	Params      DetectorParamsConfig `mapstructure:"params"`
}

// DetectorParamsConfig carries the stock detector thresholds. Strategies
// override them per kind through their params blob.
type DetectorParamsConfig struct {
	SharpDisparityPts        float64 `mapstructure:"sharp_disparity_pts"`
	SharpMinMoneyPct         float64 `mapstructure:"sharp_min_money_pct"`
	SteamMinBooks            int     `mapstructure:"steam_min_books"`
	SteamWindowMinutes       int     `mapstructure:"steam_window_minutes"`
	CrossMarketDivergencePts float64 `mapstructure:"cross_market_divergence_pts"`
	CrossSourceMinDisparity  float64 `mapstructure:"cross_source_min_disparity"`
	CrossBookProbPts         float64 `mapstructure:"cross_book_prob_pts"`
	PublicFadeTicketPct      float64 `mapstructure:"public_fade_ticket_pct"`
	PublicFadeConfirmedPct   float64 `mapstructure:"public_fade_confirmed_pct"`
	LateWindowFraction       float64 `mapstructure:"late_window_fraction"`
	PregameHours             float64 `mapstructure:"pregame_hours"`
}

type DedupConfig struct {
	TargetOffset time.Duration `mapstructure:"target_offset"`
}

type ScorerConfig struct {
	QualifyFloor float64 `mapstructure:"qualify_floor"`
	HighFloor    float64 `mapstructure:"high_floor"`
}

type BacktestConfig struct {
	Stake       float64 `mapstructure:"stake"`
	MinSample   int     `mapstructure:"min_sample"`
	Parallelism int     `mapstructure:"parallelism"`
	WindowDays  int     `mapstructure:"window_days"`
}

type AlignmentConfig struct {
	Floor       float64 `mapstructure:"floor"`
	WindowHours int     `mapstructure:"window_hours"`
}

type OutcomeIngestConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	GracePeriod  time.Duration `mapstructure:"grace_period"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.service", "sharpline-engine")
	v.SetDefault("log.output_paths", []string{"stdout"})
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.slow_query_threshold", "2s")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.detection_sweep", "@every 5m")
	v.SetDefault("cron.backtest_sweep", "@daily")
	v.SetDefault("cron.alignment_sweep", "@daily")
	v.SetDefault("cron.stale_runs", "@every 30m")
	v.SetDefault("scores.base_url", "http://localhost:8090")
	v.SetDefault("scores.timeout", "15s")

	// Zero workers means size to the host's cores.
	v.SetDefault("detection.workers", 0)
	v.SetDefault("detection.key_timeout", "3s")
	v.SetDefault("detection.window_hours", 24)
	v.SetDefault("detection.params.sharp_disparity_pts", 20)
	v.SetDefault("detection.params.sharp_min_money_pct", 55)
	v.SetDefault("detection.params.steam_min_books", 4)
	v.SetDefault("detection.params.steam_window_minutes", 30)
	v.SetDefault("detection.params.cross_market_divergence_pts", 15)
	v.SetDefault("detection.params.cross_source_min_disparity", 5)
	v.SetDefault("detection.params.cross_book_prob_pts", 8)
	v.SetDefault("detection.params.public_fade_ticket_pct", 65)
	v.SetDefault("detection.params.public_fade_confirmed_pct", 60)
	v.SetDefault("detection.params.late_window_fraction", 0.20)
	v.SetDefault("detection.params.pregame_hours", 24)

	v.SetDefault("dedup.target_offset", "5m")
	v.SetDefault("scorer.qualify_floor", 75)
	v.SetDefault("scorer.high_floor", 85)

	v.SetDefault("backtest.stake", 100)
	v.SetDefault("backtest.min_sample", 10)
	v.SetDefault("backtest.parallelism", 4)
	v.SetDefault("backtest.window_days", 30)
	v.SetDefault("alignment.floor", 70)
	v.SetDefault("alignment.window_hours", 24)

	v.SetDefault("outcome_ingest.enabled", true)
	v.SetDefault("outcome_ingest.poll_interval", "2m")
	v.SetDefault("outcome_ingest.batch_size", 100)
	v.SetDefault("outcome_ingest.grace_period", "3h")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "recommendations:stream")
	v.SetDefault("redis.max_len", 10000)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", "250ms")
	v.SetDefault("retry.max_delay", "5s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
