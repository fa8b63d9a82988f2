package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration required by the API process and walletctl.
// Values come from env, optionally layered over a file named by CONFIG_FILE.
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Ledger LedgerConfig
	Events EventsConfig
	Kafka  KafkaConfig
	Cache  CacheConfig
}

type AppConfig struct {
	Env  string
	Port int

	// AutoMigrate applies wallet migrations at startup.
	AutoMigrate bool
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig is optional; an empty Host disables the display snapshot cache.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ClockSkew       time.Duration
}

// LedgerConfig holds the conversion table overrides. Fixed at process start.
type LedgerConfig struct {
	LoyaltyCoinValue   decimal.Decimal
	InstagramCoinValue decimal.Decimal
}

// EventsConfig drives the event adapters.
type EventsConfig struct {
	OrderCoinsPerUnit       decimal.Decimal
	AffiliateCommissionRate decimal.Decimal
	ReferralBonusCoins      decimal.Decimal

	MaxRetries   int
	RetryBackoff time.Duration
}

// KafkaConfig is optional; no brokers disables the consumer.
type KafkaConfig struct {
	Brokers []string
	Topics  []string
	GroupID string
}

type CacheConfig struct {
	TTL time.Duration
}

// Load reads configuration through viper. Env keys are the upper-snake form
// of the dotted keys (db.host -> DB_HOST).
func Load() (Config, error) {
	return LoadFrom(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.port", 8080)
	v.SetDefault("app.automigrate", false)
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.maxopenconns", 25)
	v.SetDefault("db.maxidleconns", 10)
	v.SetDefault("redis.port", 6379)
	v.SetDefault("ledger.loyalty_coin_value", "0.10")
	v.SetDefault("ledger.instagram_coin_value", "0.10")
	v.SetDefault("events.order_coins_per_unit", "1")
	v.SetDefault("events.affiliate_commission_rate", "0.05")
	v.SetDefault("events.referral_bonus_coins", "100")
	v.SetDefault("events.max_retries", 5)
	v.SetDefault("events.retry_backoff", "500ms")
	v.SetDefault("kafka.group_id", "storefront-wallet")
	v.SetDefault("kafka.topics", "storefront.ledger-events")
	v.SetDefault("cache.ttl", "30s")
	return v
}

// LoadFrom builds a Config from an already prepared viper instance.
func LoadFrom(v *viper.Viper) (Config, error) {
	if file := strings.TrimSpace(v.GetString("config_file")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(v.GetString("app.env"))
	c.App.Port = v.GetInt("app.port")
	c.App.AutoMigrate = v.GetBool("app.automigrate")

	c.DB.Host = strings.TrimSpace(v.GetString("db.host"))
	c.DB.Port = v.GetInt("db.port")
	c.DB.User = strings.TrimSpace(v.GetString("db.user"))
	c.DB.Password = v.GetString("db.password")
	c.DB.Name = strings.TrimSpace(v.GetString("db.name"))
	c.DB.SSLMode = strings.TrimSpace(v.GetString("db.sslmode"))
	c.DB.MaxOpenConns = v.GetInt("db.maxopenconns")
	c.DB.MaxIdleConns = v.GetInt("db.maxidleconns")

	c.Redis.Host = strings.TrimSpace(v.GetString("redis.host"))
	c.Redis.Port = v.GetInt("redis.port")
	c.Redis.Password = v.GetString("redis.password")
	c.Redis.DB = v.GetInt("redis.db")

	c.Auth.JWTSecret = v.GetString("jwt.secret")
	c.Auth.JWTIssuer = strings.TrimSpace(v.GetString("jwt.issuer"))
	c.Auth.JWTAudience = strings.TrimSpace(v.GetString("jwt.audience"))
	// Duration keys are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = v.GetDuration("jwt.access_ttl")
	c.Auth.RefreshTokenTTL = v.GetDuration("jwt.refresh_ttl")
	c.Auth.ClockSkew = v.GetDuration("jwt.clock_skew")

	c.Ledger.LoyaltyCoinValue, parseErrs = parseDecimal(v, "ledger.loyalty_coin_value", parseErrs)
	c.Ledger.InstagramCoinValue, parseErrs = parseDecimal(v, "ledger.instagram_coin_value", parseErrs)

	c.Events.OrderCoinsPerUnit, parseErrs = parseDecimal(v, "events.order_coins_per_unit", parseErrs)
	c.Events.AffiliateCommissionRate, parseErrs = parseDecimal(v, "events.affiliate_commission_rate", parseErrs)
	c.Events.ReferralBonusCoins, parseErrs = parseDecimal(v, "events.referral_bonus_coins", parseErrs)
	c.Events.MaxRetries = v.GetInt("events.max_retries")
	c.Events.RetryBackoff = v.GetDuration("events.retry_backoff")

	c.Kafka.Brokers = splitList(v.GetString("kafka.brokers"))
	c.Kafka.Topics = splitList(v.GetString("kafka.topics"))
	c.Kafka.GroupID = strings.TrimSpace(v.GetString("kafka.group_id"))

	c.Cache.TTL = v.GetDuration("cache.ttl")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the config and fills env-dependent defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.RedisEnabled() && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if !c.Ledger.LoyaltyCoinValue.IsPositive() {
		errs = append(errs, errors.New("LEDGER_LOYALTY_COIN_VALUE must be greater than zero"))
	}
	if !c.Ledger.InstagramCoinValue.IsPositive() {
		errs = append(errs, errors.New("LEDGER_INSTAGRAM_COIN_VALUE must be greater than zero"))
	}

	if c.Events.OrderCoinsPerUnit.IsNegative() {
		errs = append(errs, errors.New("EVENTS_ORDER_COINS_PER_UNIT must not be negative"))
	}
	if c.Events.AffiliateCommissionRate.IsNegative() || c.Events.AffiliateCommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("EVENTS_AFFILIATE_COMMISSION_RATE must be between 0 and 1"))
	}
	if c.Events.ReferralBonusCoins.IsNegative() || !c.Events.ReferralBonusCoins.Equal(c.Events.ReferralBonusCoins.Truncate(0)) {
		errs = append(errs, errors.New("EVENTS_REFERRAL_BONUS_COINS must be a whole, non-negative number"))
	}
	if c.Events.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("EVENTS_MAX_RETRIES must not be negative, got %d", c.Events.MaxRetries))
	}

	if c.KafkaEnabled() {
		if len(c.Kafka.Topics) == 0 {
			errs = append(errs, errors.New("KAFKA_TOPICS is required when KAFKA_BROKERS is set"))
		}
		if c.Kafka.GroupID == "" {
			errs = append(errs, errors.New("KAFKA_GROUP_ID is required when KAFKA_BROKERS is set"))
		}
	}

	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 30 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) RedisEnabled() bool { return c.Redis.Host != "" }

func (c Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func parseDecimal(v *viper.Viper, key string, errs []error) (decimal.Decimal, []error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return decimal.Zero, errs
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, append(errs, fmt.Errorf("%s must be a decimal, got %q", envName(key), raw))
	}
	return d, errs
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
