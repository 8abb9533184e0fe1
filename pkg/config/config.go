package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimit       float64       `yaml:"rate_limit" default:"0.5"`
		RateBurst       int           `yaml:"rate_burst" default:"3"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Pricing struct {
		RiskFreeRate    float64 `yaml:"risk_free_rate" default:"0.05"`
		HorizonDays     int     `yaml:"horizon_days" default:"30"`
		TradingDays     int     `yaml:"trading_days" default:"252"`
		Paths           int     `yaml:"paths" default:"20000"`
		Seed            *uint64 `yaml:"seed"`
		Moneyness       float64 `yaml:"moneyness" default:"1.0"`
		ConversionRatio float64 `yaml:"conversion_ratio" default:"1.0"`
		MarketPrice     string  `yaml:"market_price" default:"quote"`
	} `yaml:"pricing"`
	Volatility struct {
		Model              string  `yaml:"model" default:"garch"`
		MinPrices          int     `yaml:"min_prices" default:"30"`
		PeriodsPerYear     float64 `yaml:"periods_per_year" default:"252"`
		Lambda             float64 `yaml:"lambda" default:"0.94"`
		FallbackToRealized bool    `yaml:"fallback_to_realized" default:"true"`
		MaxIterations      int     `yaml:"max_iterations" default:"5000"`
	} `yaml:"volatility"`
	Sizing struct {
		Policy      string  `yaml:"policy" default:"fixed"`
		WinProb     float64 `yaml:"win_prob" default:"0.55"`
		LossProb    float64 `yaml:"loss_prob" default:"0.45"`
		PayoffRatio float64 `yaml:"payoff_ratio" default:"1"`
		Clamp       string  `yaml:"clamp" default:"none"`
		EdgeScale   float64 `yaml:"edge_scale" default:"1"`
	} `yaml:"sizing"`
	Batch struct {
		Workers         int           `yaml:"workers" default:"8"`
		ItemTimeout     time.Duration `yaml:"item_timeout" default:"30s"`
		TotalInvestment string        `yaml:"total_investment" default:"10000000"`
		Currency        string        `yaml:"currency" default:"VND"`
		HistoryDays     int           `yaml:"history_days" default:"365"`
	} `yaml:"batch"`
	MarketData struct {
		BaseURL      string        `yaml:"base_url" default:"http://localhost:9000"`
		APIKey       string        `yaml:"api_key"`
		Timeout      time.Duration `yaml:"timeout" default:"10s"`
		RateLimit    float64       `yaml:"rate_limit" default:"1"`
		Burst        int           `yaml:"burst" default:"1"`
		CacheEnabled bool          `yaml:"cache_enabled" default:"true"`
		CacheTTL     time.Duration `yaml:"cache_ttl" default:"15m"`
	} `yaml:"market_data"`
	FX struct {
		Base  string `yaml:"base" default:"VND"`
		Quote string `yaml:"quote" default:"USD"`
	} `yaml:"fx"`
	Storage struct {
		Backend string `yaml:"backend" default:"sqlite"`
	} `yaml:"storage"`
	ClickHouse struct {
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"warrants"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
	} `yaml:"clickhouse"`
	SQLite struct {
		Path string `yaml:"path" default:"warrants.db"`
	} `yaml:"sqlite"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"cw:"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		ResultsTopic string   `yaml:"results_topic" default:"warrant.results"`
		TradesTopic  string   `yaml:"trades_topic" default:"warrant.trades"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"warrant-trades"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Stream struct {
		Enabled        bool          `yaml:"enabled"`
		URL            string        `yaml:"url"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		BatchSize      int           `yaml:"batch_size" default:"100"`
		FlushInterval  time.Duration `yaml:"flush_interval" default:"1s"`
		Sink           string        `yaml:"sink" default:"storage"`
	} `yaml:"stream"`
	Analytics struct {
		ServiceURL string        `yaml:"service_url"`
		Timeout    time.Duration `yaml:"timeout" default:"5s"`
		Retries    int           `yaml:"retries" default:"3"`
	} `yaml:"analytics"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides selected fields from environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("MARKETDATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("MARKETDATA_URL"); v != "" {
		c.MarketData.BaseURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("PRICING_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PRICING_SEED: %w", err)
		}
		c.Pricing.Seed = &seed
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Pricing.Paths <= 0 {
		return fmt.Errorf("pricing.paths must be > 0, got %d", c.Pricing.Paths)
	}
	if c.Pricing.HorizonDays <= 0 || c.Pricing.TradingDays <= 0 {
		return fmt.Errorf("pricing.horizon_days and pricing.trading_days must be > 0")
	}
	if c.Pricing.Moneyness <= 0 || c.Pricing.ConversionRatio <= 0 {
		return fmt.Errorf("pricing.moneyness and pricing.conversion_ratio must be > 0")
	}
	switch c.Pricing.MarketPrice {
	case "quote", "last_close":
	default:
		return fmt.Errorf("pricing.market_price must be 'quote' or 'last_close', got '%s'", c.Pricing.MarketPrice)
	}
	switch c.Volatility.Model {
	case "garch", "ewma", "realized", "remote":
	default:
		return fmt.Errorf("volatility.model must be one of garch|ewma|realized|remote, got '%s'", c.Volatility.Model)
	}
	if c.Volatility.Model == "remote" && c.Analytics.ServiceURL == "" {
		return fmt.Errorf("analytics.service_url is required for the remote volatility model")
	}
	if c.Volatility.MinPrices < 3 {
		return fmt.Errorf("volatility.min_prices must be >= 3, got %d", c.Volatility.MinPrices)
	}
	if c.Volatility.Lambda <= 0 || c.Volatility.Lambda >= 1 {
		return fmt.Errorf("volatility.lambda must be in (0,1), got %v", c.Volatility.Lambda)
	}
	switch c.Sizing.Policy {
	case "fixed", "edge_scaled":
	default:
		return fmt.Errorf("sizing.policy must be 'fixed' or 'edge_scaled', got '%s'", c.Sizing.Policy)
	}
	switch c.Sizing.Clamp {
	case "none", "unit":
	default:
		return fmt.Errorf("sizing.clamp must be 'none' or 'unit', got '%s'", c.Sizing.Clamp)
	}
	if c.Sizing.PayoffRatio <= 0 {
		return fmt.Errorf("sizing.payoff_ratio must be > 0")
	}
	if c.Sizing.WinProb < 0 || c.Sizing.LossProb < 0 {
		return fmt.Errorf("sizing probabilities must be >= 0")
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("batch.workers must be > 0, got %d", c.Batch.Workers)
	}
	switch c.Storage.Backend {
	case "clickhouse", "sqlite", "none":
	default:
		return fmt.Errorf("storage.backend must be clickhouse|sqlite|none, got '%s'", c.Storage.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Stream.Enabled && c.Stream.URL == "" {
		return fmt.Errorf("stream.url is required when the stream is enabled")
	}
	return nil
}
