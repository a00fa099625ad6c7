package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type PaymentsConfig struct {
	PlatformFeePercent decimal.Decimal
	DefaultCurrency    string
	MinAmounts         map[string]decimal.Decimal
	FrontendURL        string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

func (c StripeConfig) Enabled() bool {
	return c.SecretKey != ""
}

type NotifyConfig struct {
	WebhookURL string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Payments    PaymentsConfig
	Stripe      StripeConfig
	Notify      NotifyConfig
}

const (
	defaultFeePercent = "5"
	defaultMinAmounts = "USD:0.50,ETB:25,EUR:0.50,GBP:0.30"
)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host:           v.GetString("HTTP_HOST"),
			Port:           v.GetInt("HTTP_PORT"),
			AllowedOrigins: parseList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		DB: DBConfig{
			DSN:          v.GetString("DB_DSN"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Payments: PaymentsConfig{
			DefaultCurrency: strings.ToUpper(strings.TrimSpace(v.GetString("PAYMENTS_DEFAULT_CURRENCY"))),
			FrontendURL:     strings.TrimRight(v.GetString("PAYMENTS_FRONTEND_URL"), "/"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		},
		Notify: NotifyConfig{
			WebhookURL: v.GetString("NOTIFY_WEBHOOK_URL"),
		},
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7090
	}
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"*"}
	}
	if cfg.Payments.DefaultCurrency == "" {
		cfg.Payments.DefaultCurrency = "ETB"
	}
	if cfg.Payments.FrontendURL == "" {
		cfg.Payments.FrontendURL = "http://localhost:3000"
	}

	if raw := v.GetString("DB_CONN_MAX_LIFETIME"); raw != "" {
		lifetime, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("DB_CONN_MAX_LIFETIME: %w", err)
		}
		cfg.DB.ConnMaxLifetime = lifetime
	}

	fee := strings.TrimSpace(v.GetString("PAYMENTS_PLATFORM_FEE_PERCENT"))
	if fee == "" {
		fee = defaultFeePercent
	}
	percent, err := decimal.NewFromString(fee)
	if err != nil {
		return nil, fmt.Errorf("PAYMENTS_PLATFORM_FEE_PERCENT: %w", err)
	}
	cfg.Payments.PlatformFeePercent = percent

	mins := v.GetString("PAYMENTS_MIN_AMOUNTS")
	if strings.TrimSpace(mins) == "" {
		mins = defaultMinAmounts
	}
	cfg.Payments.MinAmounts, err = parseAmounts(mins)
	if err != nil {
		return nil, fmt.Errorf("PAYMENTS_MIN_AMOUNTS: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Payments.PlatformFeePercent.IsNegative() || cfg.Payments.PlatformFeePercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("PAYMENTS_PLATFORM_FEE_PERCENT must be in [0, 100)")
	}
	if len(cfg.Payments.DefaultCurrency) != 3 {
		return fmt.Errorf("PAYMENTS_DEFAULT_CURRENCY must be a 3-letter code")
	}
	return nil
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

// parseAmounts reads "USD:0.50,ETB:25" into a currency map.
func parseAmounts(raw string) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal)
	for _, item := range parseList(raw) {
		code, value, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("invalid entry %q", item)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid amount in %q: %w", item, err)
		}
		result[strings.ToUpper(strings.TrimSpace(code))] = amount
	}
	return result, nil
}
