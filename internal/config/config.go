package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const devJWTSecret = "dev_secret_change_me"

// Configはアプリ全体の設定
type Config struct {
	Port string `mapstructure:"PORT"` // サーバーポート（8080）

	DatabaseURL      string `mapstructure:"DATABASE_URL"` // あれば最優先
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     int    `mapstructure:"POSTGRES_PORT"`
	PostgresSSLMode  string `mapstructure:"POSTGRES_SSLMODE"`

	JWTSecret string        `mapstructure:"JWT_SECRET"` // JWT署名シークレット
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	GoEnv     string `mapstructure:"GO_ENV"`     // dev/prod
	ClientURL string `mapstructure:"CLIENT_URL"` // フロントURL（CORSで使う）

	StripeSecretKey  string        `mapstructure:"STRIPE_SECRET_KEY"`
	PaymentCurrency  string        `mapstructure:"PAYMENT_CURRENCY"`
	PaymentTimeout   time.Duration `mapstructure:"PAYMENT_TIMEOUT"`
	PaymentReturnURL string        `mapstructure:"PAYMENT_RETURN_URL"`

	RedisAddr       string        `mapstructure:"REDIS_ADDR"` // 空ならキャッシュなし
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int           `mapstructure:"REDIS_DB"`
	CatalogCacheTTL time.Duration `mapstructure:"CATALOG_CACHE_TTL"`

	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"` // カンマ区切り、空ならイベントなし
	KafkaOrderTopic string `mapstructure:"KAFKA_ORDER_TOPIC"`

	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"PORT":               "8080",
	"DATABASE_URL":       "",
	"POSTGRES_USER":      "postgres",
	"POSTGRES_PASSWORD":  "postgres",
	"POSTGRES_DB":        "storefront",
	"POSTGRES_HOST":      "localhost",
	"POSTGRES_PORT":      5432,
	"POSTGRES_SSLMODE":   "disable",
	"JWT_SECRET":         devJWTSecret,
	"JWT_TTL":            "7d",
	"GO_ENV":             "dev",
	"CLIENT_URL":         "http://localhost:3000",
	"STRIPE_SECRET_KEY":  "",
	"PAYMENT_CURRENCY":   "usd",
	"PAYMENT_TIMEOUT":    "15s",
	"PAYMENT_RETURN_URL": "http://localhost:3000/order-success",
	"REDIS_ADDR":         "",
	"REDIS_PASSWORD":     "",
	"REDIS_DB":           0,
	"CATALOG_CACHE_TTL":  "10m",
	"KAFKA_BROKERS":      "",
	"KAFKA_ORDER_TOPIC":  "storefront.orders",
	"LOG_LEVEL":          "info",
	"REQUEST_TIMEOUT":    "30s",
}

// Loadは環境変数から設定を読む（.envはmainでgodotenvが読み込む）
func Load() (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	// time.ParseDurationは"d"を解釈しないので先に直す
	if ttl := v.GetString("JWT_TTL"); strings.HasSuffix(ttl, "d") {
		var days int
		if _, err := fmt.Sscanf(ttl, "%dd", &days); err != nil {
			return Config{}, fmt.Errorf("JWT_TTL must be duration: %w", err)
		}
		v.Set("JWT_TTL", (time.Duration(days) * 24 * time.Hour).String())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod" || c.GoEnv == "production"
}

// カンマ区切りのブローカー一覧
func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// DSNはDATABASE_URLを優先する
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func (c Config) validate() error {
	//必須チェック
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	if len(c.PaymentCurrency) != 3 {
		return fmt.Errorf("PAYMENT_CURRENCY must be ISO 4217 code")
	}

	if c.IsProd() {
		if c.JWTSecret == devJWTSecret {
			return fmt.Errorf("JWT_SECRET is required")
		}
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required")
		}
	}
	return nil
}
