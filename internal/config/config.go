package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"betIndexer/internal/decoder"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL            string
	DBDriver          string
	PgDSN             string
	SQLitePath        string
	CheckpointBackend string
	CheckpointFile    string
	StartBlock        uint64
	EventName         string
	Profile           string
	AmountDecimals    int32
	OddsDecimals      int32
	Allowlist         string
	Contracts         []string
	AllowlistFile     string
	RedisAddr         string
	RedisKey          string
	PollInterval      time.Duration
	PageSize          int
	RangeSize         uint64
	FetchConcurrency  int
	CheckpointPolicy  string
	MaxRetries        int
	RetryBackoff      time.Duration
	MaxRetryBackoff   time.Duration
	RPCRateLimit      float64
	MetricsAddr       string
	DecodeErrors      string
	SeenCacheSize     int
	LogLevel          string
	Once              bool
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		DBDriver:          strings.ToLower(v.GetString("db-driver")),
		PgDSN:             v.GetString("pg-dsn"),
		SQLitePath:        v.GetString("sqlite-path"),
		CheckpointBackend: strings.ToLower(v.GetString("checkpoint-backend")),
		CheckpointFile:    v.GetString("checkpoint-file"),
		StartBlock:        v.GetUint64("start-block"),
		EventName:         v.GetString("event-name"),
		Profile:           v.GetString("profile"),
		AmountDecimals:    v.GetInt32("amount-decimals"),
		OddsDecimals:      v.GetInt32("odds-decimals"),
		Allowlist:         strings.ToLower(v.GetString("allowlist")),
		Contracts:         getStringSlice(v, "contracts"),
		AllowlistFile:     v.GetString("allowlist-file"),
		RedisAddr:         v.GetString("redis-addr"),
		RedisKey:          v.GetString("redis-key"),
		PollInterval:      v.GetDuration("poll-interval"),
		PageSize:          v.GetInt("page-size"),
		RangeSize:         v.GetUint64("range-size"),
		FetchConcurrency:  v.GetInt("fetch-concurrency"),
		CheckpointPolicy:  strings.ToLower(v.GetString("checkpoint-policy")),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		MaxRetryBackoff:   v.GetDuration("max-retry-backoff"),
		RPCRateLimit:      v.GetFloat64("rpc-rate-limit"),
		MetricsAddr:       v.GetString("metrics-addr"),
		DecodeErrors:      v.GetString("decode-errors"),
		SeenCacheSize:     v.GetInt("seen-cache-size"),
		LogLevel:          v.GetString("log-level"),
		Once:              v.GetBool("once"),
	}
	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// DATABASE_URL is accepted as a fallback for the DSN
	if err := v.BindEnv("pg-dsn", "INDEXER_PG_DSN", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	v.SetDefault("db-driver", "postgres")
	v.SetDefault("sqlite-path", "./data/bets.db")
	v.SetDefault("checkpoint-backend", "db")
	v.SetDefault("checkpoint-file", "./data/checkpoint.json")
	v.SetDefault("event-name", "BetPlace")
	v.SetDefault("profile", decoder.ProfileV2.Name)
	v.SetDefault("amount-decimals", -1)
	v.SetDefault("odds-decimals", -1)
	v.SetDefault("allowlist", "config")
	v.SetDefault("redis-key", "bet-indexer:contracts")
	v.SetDefault("poll-interval", 30*time.Second)
	v.SetDefault("page-size", 100)
	v.SetDefault("range-size", uint64(1))
	v.SetDefault("fetch-concurrency", 1)
	v.SetDefault("checkpoint-policy", "strict")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("max-retry-backoff", 30*time.Second)
	v.SetDefault("seen-cache-size", 10000)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// loadDotEnv exports variables from path without overriding the environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ValidateStore checks the settings needed to open the configured stores.
func (c Config) ValidateStore() error {
	switch c.DBDriver {
	case "postgres":
		if c.PgDSN == "" {
			return errors.New("pg-dsn is required for the postgres driver")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("sqlite-path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid db-driver: %s", c.DBDriver)
	}

	switch c.CheckpointBackend {
	case "db":
	case "file":
		if c.CheckpointFile == "" {
			return errors.New("checkpoint-file is required for the file checkpoint backend")
		}
	default:
		return fmt.Errorf("invalid checkpoint-backend: %s", c.CheckpointBackend)
	}
	return nil
}

// Validate checks everything the run command needs.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("rpc url is required")
	}
	u, err := url.Parse(c.RPCURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid rpc url: %s", c.RPCURL)
	}

	if err := c.ValidateStore(); err != nil {
		return err
	}

	if strings.TrimSpace(c.EventName) == "" {
		return errors.New("event-name is required")
	}
	if _, err := decoder.Lookup(c.Profile); err != nil {
		return err
	}

	switch c.Allowlist {
	case "config":
		if len(c.Contracts) == 0 {
			return errors.New("contracts are required for the config allowlist")
		}
	case "file":
		if c.AllowlistFile == "" {
			return errors.New("allowlist-file is required for the file allowlist")
		}
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis-addr is required for the redis allowlist")
		}
		if c.RedisKey == "" {
			return errors.New("redis-key is required for the redis allowlist")
		}
	default:
		return fmt.Errorf("invalid allowlist source: %s", c.Allowlist)
	}

	switch c.CheckpointPolicy {
	case "strict", "lenient":
	default:
		return fmt.Errorf("invalid checkpoint-policy: %s", c.CheckpointPolicy)
	}

	if c.PageSize <= 0 {
		return errors.New("page-size must be greater than zero")
	}
	if c.RangeSize == 0 {
		return errors.New("range-size must be greater than zero")
	}
	if c.FetchConcurrency <= 0 {
		return errors.New("fetch-concurrency must be greater than zero")
	}
	if c.PollInterval <= 0 && !c.Once {
		return errors.New("poll-interval must be greater than zero")
	}
	if c.RPCRateLimit < 0 {
		return errors.New("rpc-rate-limit must not be negative")
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
