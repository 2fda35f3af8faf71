package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type Endpoint struct {
	Name    string        `mapstructure:"NAME"`
	URL     string        `mapstructure:"URL"`
	Timeout time.Duration `mapstructure:"TIMEOUT"`
	Retries int           `mapstructure:"RETRIES"`
}

type PriceSource struct {
	Name   string `mapstructure:"NAME"`
	Type   string `mapstructure:"TYPE"`
	URL    string `mapstructure:"URL"`
	ApiKey string `mapstructure:"API_KEY"`
}

type Tier struct {
	Name            string  `mapstructure:"NAME"`
	MinHoldingsUSD  float64 `mapstructure:"MIN_HOLDINGS_USD"`
	Multiplier      int64   `mapstructure:"MULTIPLIER"`
	BaselineEntries int64   `mapstructure:"BASELINE_ENTRIES"`
}

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Metrics        bool   `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Snowflake struct {
		Node int64 `mapstructure:"NODE"`
	} `mapstructure:"SNOWFLAKE"`
	Ledger struct {
		IndexingDelay time.Duration `mapstructure:"INDEXING_DELAY"`
		BaseBackoff   time.Duration `mapstructure:"BASE_BACKOFF"`
		MaxBackoff    time.Duration `mapstructure:"MAX_BACKOFF"`
		Endpoints     []Endpoint    `mapstructure:"ENDPOINTS"`
	} `mapstructure:"LEDGER"`
	Pricing struct {
		TTL               time.Duration `mapstructure:"TTL"`
		DegradedTTL       time.Duration `mapstructure:"DEGRADED_TTL"`
		Timeout           time.Duration `mapstructure:"TIMEOUT"`
		NativeID          string        `mapstructure:"NATIVE_ID"`
		RewardID          string        `mapstructure:"REWARD_ID"`
		NativeMint        string        `mapstructure:"NATIVE_MINT"`
		FallbackNativeUSD float64       `mapstructure:"FALLBACK_NATIVE_USD"`
		FallbackRewardUSD float64       `mapstructure:"FALLBACK_REWARD_USD"`
		Sources           []PriceSource `mapstructure:"SOURCES"`
	} `mapstructure:"PRICING"`
	Payment struct {
		Tolerance         float64  `mapstructure:"TOLERANCE"`
		TreasuryWallet    string   `mapstructure:"TREASURY_WALLET"`
		RewardMint        string   `mapstructure:"REWARD_MINT"`
		StableMint        string   `mapstructure:"STABLE_MINT"`
		AllowedCurrencies []string `mapstructure:"ALLOWED_CURRENCIES"`
	} `mapstructure:"PAYMENT"`
	Entries struct {
		Ceiling     int64 `mapstructure:"CEILING"`
		USDPerEntry int64 `mapstructure:"USD_PER_ENTRY"`
	} `mapstructure:"ENTRIES"`
	RateLimit struct {
		PerWalletRPS float64       `mapstructure:"PER_WALLET_RPS"`
		Burst        int           `mapstructure:"BURST"`
		MaxWallets   int           `mapstructure:"MAX_WALLETS"`
		IdleTTL      time.Duration `mapstructure:"IDLE_TTL"`
	} `mapstructure:"RATE_LIMIT"`
	Membership struct {
		Tiers     []Tier `mapstructure:"TIERS"`
		SweepHour int    `mapstructure:"SWEEP_HOUR"`
	} `mapstructure:"MEMBERSHIP"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "rewards-engine")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 3*time.Minute)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("SNOWFLAKE.NODE", 1)
	v.SetDefault("LEDGER.INDEXING_DELAY", 10*time.Second)
	v.SetDefault("LEDGER.BASE_BACKOFF", 500*time.Millisecond)
	v.SetDefault("LEDGER.MAX_BACKOFF", 8*time.Second)
	v.SetDefault("PRICING.TTL", 30*time.Second)
	v.SetDefault("PRICING.DEGRADED_TTL", 5*time.Second)
	v.SetDefault("PRICING.TIMEOUT", 5*time.Second)
	v.SetDefault("PRICING.NATIVE_ID", "solana")
	v.SetDefault("PRICING.NATIVE_MINT", "So11111111111111111111111111111111111111112")
	v.SetDefault("PAYMENT.TOLERANCE", 0.05)
	v.SetDefault("PAYMENT.ALLOWED_CURRENCIES", []string{"SOL", "TOKEN", "USDC"})
	v.SetDefault("ENTRIES.CEILING", 50000)
	v.SetDefault("ENTRIES.USD_PER_ENTRY", 10)
	v.SetDefault("RATE_LIMIT.PER_WALLET_RPS", 1.0)
	v.SetDefault("RATE_LIMIT.BURST", 5)
	v.SetDefault("RATE_LIMIT.MAX_WALLETS", 10000)
	v.SetDefault("RATE_LIMIT.IDLE_TTL", 10*time.Minute)
	v.SetDefault("MEMBERSHIP.SWEEP_HOUR", 1)
}

func LoadConfig() (*Config, error) {
	return Load(".")
}

// Load reads config.yaml from the given paths. Environment variables override
// file values, with nested keys joined by underscores (LEDGER_INDEXING_DELAY).
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Membership.Tiers) == 0 {
		cfg.Membership.Tiers = DefaultTiers()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultTiers is the tier table used when none is configured.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "NONE", MinHoldingsUSD: 0, Multiplier: 1, BaselineEntries: 0},
		{Name: "BRONZE", MinHoldingsUSD: 100, Multiplier: 1, BaselineEntries: 5},
		{Name: "SILVER", MinHoldingsUSD: 500, Multiplier: 2, BaselineEntries: 15},
		{Name: "GOLD", MinHoldingsUSD: 2500, Multiplier: 3, BaselineEntries: 40},
		{Name: "PLATINUM", MinHoldingsUSD: 10000, Multiplier: 5, BaselineEntries: 100},
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Payment.Tolerance < 0 || c.Payment.Tolerance >= 1 {
		errs = append(errs, fmt.Errorf("PAYMENT.TOLERANCE must be in [0, 1), got %v", c.Payment.Tolerance))
	}
	if c.Entries.Ceiling <= 0 {
		errs = append(errs, errors.New("ENTRIES.CEILING must be positive"))
	}
	if c.Entries.USDPerEntry <= 0 {
		errs = append(errs, errors.New("ENTRIES.USD_PER_ENTRY must be positive"))
	}
	for i, e := range c.Ledger.Endpoints {
		if e.URL == "" {
			errs = append(errs, fmt.Errorf("LEDGER.ENDPOINTS[%d].URL is required", i))
		}
		if e.Retries < 1 {
			errs = append(errs, fmt.Errorf("LEDGER.ENDPOINTS[%d].RETRIES must be >= 1", i))
		}
	}
	for i, t := range c.Membership.Tiers {
		if t.Multiplier < 1 {
			errs = append(errs, fmt.Errorf("MEMBERSHIP.TIERS[%d].MULTIPLIER must be >= 1", i))
		}
	}
	return errors.Join(errs...)
}
