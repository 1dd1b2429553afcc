// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения (LAUNCHPAD_RPC_URL и т.д.)
const EnvPrefix = "LAUNCHPAD"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Curve    CurveConfig    `mapstructure:"curve"`
	Launch   LaunchConfig   `mapstructure:"launch"`
	Fees     FeesConfig     `mapstructure:"fees"`
	Vanity   VanityConfig   `mapstructure:"vanity"`
	Treasury TreasuryConfig `mapstructure:"treasury"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Keys     KeysConfig     `mapstructure:"keys"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

type RPCConfig struct {
	URL string `mapstructure:"url"`
	// FallbackURLs дополнительные endpoint'ы; вызовы распределяются по кругу.
	FallbackURLs     []string      `mapstructure:"fallback_urls"`
	EndpointCooldown time.Duration `mapstructure:"endpoint_cooldown"`
	Commitment       string        `mapstructure:"commitment"`
	ConfirmTimeout   time.Duration `mapstructure:"confirm_timeout"`
	SkipPreflight    bool          `mapstructure:"skip_preflight"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type CurveConfig struct {
	ProgramID              string  `mapstructure:"program_id"`
	InitialVirtualSol      float64 `mapstructure:"initial_virtual_sol"`
	InitialVirtualToken    float64 `mapstructure:"initial_virtual_token"`
	TotalSupply            float64 `mapstructure:"total_supply"`
	GraduationThresholdSol float64 `mapstructure:"graduation_threshold_sol"`
	DefaultTradingFeeBps   uint16  `mapstructure:"default_trading_fee_bps"`
	MaxTradingFeeBps       uint16  `mapstructure:"max_trading_fee_bps"`
	CreatorFeeShareBps     uint16  `mapstructure:"creator_fee_share_bps"`
	MaxSlippageBps         uint16  `mapstructure:"max_slippage_bps"`
}

type LaunchConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	VerifyAttempts int           `mapstructure:"verify_attempts"`
	PreparedTTL    time.Duration `mapstructure:"prepared_ttl"`
	ComputeUnits   uint32        `mapstructure:"compute_units"`
	PriorityFeeSol float64       `mapstructure:"priority_fee_sol"`
}

type FeesConfig struct {
	MinClaimSol       float64       `mapstructure:"min_claim_sol"`
	ClaimDelay        time.Duration `mapstructure:"claim_delay"`
	// ProvisionalExpiry после этого срока ненаблюдаемый вывод считается не состоявшимся.
	ProvisionalExpiry time.Duration `mapstructure:"provisional_expiry"`
}

type VanityConfig struct {
	Suffix         string        `mapstructure:"suffix"`
	CaseSensitive  bool          `mapstructure:"case_sensitive"`
	EncryptionKey  string        `mapstructure:"encryption_key"`
	ReservationTTL time.Duration `mapstructure:"reservation_ttl"`
	Workers        int           `mapstructure:"workers"`
	Target         int           `mapstructure:"target"`
	MaxDuration    time.Duration `mapstructure:"max_duration"`
}

type TreasuryConfig struct {
	Secret string `mapstructure:"secret"`
}

type DatabaseConfig struct {
	PostgresURL string `mapstructure:"postgres_url"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Window   time.Duration `mapstructure:"window"`
	Limit    int           `mapstructure:"limit"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LoggingConfig struct {
	File        string `mapstructure:"file"`
	Development bool   `mapstructure:"development"`
	SentryDSN   string `mapstructure:"sentry_dsn"`
}

// KeysConfig секреты подписантов, только base58. В логи не попадают.
type KeysConfig struct {
	Deployer string   `mapstructure:"deployer"`
	Treasury string   `mapstructure:"treasury"`
	Agents   []string `mapstructure:"agents"`
}

const (
	DefaultGraduationThresholdSol = 85.0
	DefaultTotalSupply            = 1_000_000_000.0
	DefaultTradingFeeBps          = 200
	DefaultMaxAttempts            = 5
	DefaultBaseDelay              = time.Second
	DefaultConfirmTimeout         = 30 * time.Second
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.addr":                    ":8080",
		"server.shutdown_timeout":        10 * time.Second,
		"server.sweep_interval":          time.Minute,
		"rpc.url":                        "https://api.mainnet-beta.solana.com",
		"rpc.fallback_urls":              []string{},
		"rpc.endpoint_cooldown":          30 * time.Second,
		"rpc.commitment":                 "confirmed",
		"rpc.confirm_timeout":            DefaultConfirmTimeout,
		"rpc.skip_preflight":             false,
		"retry.max_attempts":             DefaultMaxAttempts,
		"retry.base_delay":               DefaultBaseDelay,
		"retry.max_delay":                16 * time.Second,
		"curve.program_id":               "dbcij3LWUppWqq96dh6gJWwBifmcGfLSB5D4DuSMaqN",
		"curve.initial_virtual_sol":      30.0,
		"curve.initial_virtual_token":    1_073_000_000.0,
		"curve.total_supply":             DefaultTotalSupply,
		"curve.graduation_threshold_sol": DefaultGraduationThresholdSol,
		"curve.default_trading_fee_bps":  DefaultTradingFeeBps,
		"curve.max_trading_fee_bps":      1000,
		"curve.creator_fee_share_bps":    5000,
		"curve.max_slippage_bps":         5000,
		"launch.max_attempts":            3,
		"launch.verify_attempts":         5,
		"launch.prepared_ttl":            15 * time.Minute,
		"launch.compute_units":           400_000,
		"launch.priority_fee_sol":        0.0001,
		"fees.min_claim_sol":             0.001,
		"fees.claim_delay":               time.Second,
		"fees.provisional_expiry":        10 * time.Minute,
		"vanity.suffix":                  "pad",
		"vanity.case_sensitive":          true,
		"vanity.encryption_key":          "",
		"vanity.reservation_ttl":         30 * time.Minute,
		"vanity.workers":                 4,
		"vanity.target":                  10,
		"vanity.max_duration":            50 * time.Second,
		"treasury.secret":                "",
		"database.postgres_url":          "",
		"redis.addr":                     "",
		"redis.password":                 "",
		"redis.db":                       0,
		"redis.window":                   time.Minute,
		"redis.limit":                    60,
		"kafka.brokers":                  []string{},
		"kafka.topic":                    "launchpad.events",
		"logging.file":                   "launchpad.log",
		"logging.development":            false,
		"logging.sentry_dsn":             "",
		"keys.deployer":                  "",
		"keys.treasury":                  "",
		"keys.agents":                    []string{},
	}
}

// LoadConfig читает конфигурацию из файла (если задан), применяет значения по умолчанию
// и переменные окружения LAUNCHPAD_*.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	loadEnvironmentVariables(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// списки из env приходят строкой через запятую
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.RPC.FallbackURLs = splitList(cfg.RPC.FallbackURLs)
	cfg.Keys.Agents = splitList(cfg.Keys.Agents)

	return &cfg, cfg.Validate()
}

// Validate собирает все ошибки конфигурации сразу.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := validateURLWithCache(c.RPC.URL, "http"); err != nil {
		result = multierror.Append(result, fmt.Errorf("rpc.url: %w", err))
	}
	for i, u := range c.RPC.FallbackURLs {
		if err := validateURLWithCache(u, "http"); err != nil {
			result = multierror.Append(result, fmt.Errorf("rpc.fallback_urls[%d]: %w", i, err))
		}
	}
	switch c.RPC.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		result = multierror.Append(result, fmt.Errorf("rpc.commitment: unknown value %q", c.RPC.Commitment))
	}
	if c.RPC.ConfirmTimeout <= 0 {
		result = multierror.Append(result, errors.New("rpc.confirm_timeout must be positive"))
	}
	if c.Retry.MaxAttempts <= 0 {
		result = multierror.Append(result, errors.New("invalid retry.max_attempts"))
	}
	if c.Retry.BaseDelay <= 0 {
		result = multierror.Append(result, errors.New("invalid retry.base_delay"))
	}
	if c.Curve.ProgramID == "" {
		result = multierror.Append(result, errors.New("curve.program_id is empty"))
	}
	if c.Curve.InitialVirtualSol <= 0 || c.Curve.InitialVirtualToken <= 0 {
		result = multierror.Append(result, errors.New("curve initial virtual reserves must be positive"))
	}
	if c.Curve.TotalSupply <= 0 {
		result = multierror.Append(result, errors.New("invalid curve.total_supply"))
	}
	if c.Curve.GraduationThresholdSol <= 0 {
		result = multierror.Append(result, errors.New("invalid curve.graduation_threshold_sol"))
	}
	if c.Curve.DefaultTradingFeeBps > c.Curve.MaxTradingFeeBps {
		result = multierror.Append(result, errors.New("curve.default_trading_fee_bps exceeds max_trading_fee_bps"))
	}
	if c.Curve.CreatorFeeShareBps > 10_000 {
		result = multierror.Append(result, errors.New("invalid curve.creator_fee_share_bps"))
	}
	if c.Launch.MaxAttempts <= 0 {
		result = multierror.Append(result, errors.New("invalid launch.max_attempts"))
	}
	if c.Fees.MinClaimSol < 0 {
		result = multierror.Append(result, errors.New("invalid fees.min_claim_sol"))
	}
	if c.Fees.ClaimDelay < 0 {
		result = multierror.Append(result, errors.New("invalid fees.claim_delay"))
	}
	if c.Fees.ProvisionalExpiry < 0 {
		result = multierror.Append(result, errors.New("invalid fees.provisional_expiry"))
	}
	if c.Vanity.Workers < 0 || c.Vanity.Target < 0 {
		result = multierror.Append(result, errors.New("invalid vanity workers/target"))
	}
	for _, broker := range c.Kafka.Brokers {
		if strings.TrimSpace(broker) == "" {
			result = multierror.Append(result, errors.New("kafka.brokers contains an empty entry"))
			break
		}
	}

	return result.ErrorOrNil()
}

// String не раскрывает секреты.
func (c *Config) String() string {
	return fmt.Sprintf("rpc=%s commitment=%s db=%t redis=%t kafka=%d program=%s",
		c.RPC.URL, c.RPC.Commitment, c.Database.PostgresURL != "", c.Redis.Addr != "",
		len(c.Kafka.Brokers), c.Curve.ProgramID)
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if clean := strings.TrimSpace(part); clean != "" {
				out = append(out, clean)
			}
		}
	}
	return out
}
