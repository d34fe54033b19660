package config

import (
	"fmt"
	"os"

	"app/internal/pricing"

	"github.com/shopspring/decimal"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	JWTSecret string // IDプロバイダのトークン検証用シークレット

	GoEnv    string // dev/prod
	FEURL    string // フロントURL（CORSで使う）
	LogLevel string // debug/info/warn/error

	AMQPURL     string // RabbitMQ接続先（空なら発行しない）
	OrdersQueue string // 注文イベントのキュー名

	//料金ポリシー（未設定ならデフォルト）
	Pricing pricing.Policy
}

// Loadは環境変数から設定を読む
func Load() (Config, error) {
	cfg := Config{
		Port:      getenv("PORT", "8080"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		GoEnv:    getenv("GO_ENV", "dev"),
		FEURL:    os.Getenv("FE_URL"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		AMQPURL:     os.Getenv("AMQP_URL"),
		OrdersQueue: getenv("ORDERS_QUEUE", "orders"),
	}

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	policy, err := loadPricing()
	if err != nil {
		return Config{}, err
	}
	cfg.Pricing = policy

	return cfg, nil
}

// 料金ポリシーの上書き（任意の環境変数）
func loadPricing() (pricing.Policy, error) {
	p := pricing.DefaultPolicy()

	overrides := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"FREE_DELIVERY_THRESHOLD", &p.FreeDeliveryThreshold},
		{"STANDARD_DELIVERY_FEE", &p.StandardDeliveryFee},
		{"PLATFORM_FEE", &p.PlatformFee},
		{"TAX_RATE", &p.TaxRate},
	}

	for _, o := range overrides {
		v := os.Getenv(o.key)
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return pricing.Policy{}, fmt.Errorf("%s must be a decimal: %w", o.key, err)
		}
		if d.IsNegative() {
			return pricing.Policy{}, fmt.Errorf("%s must not be negative", o.key)
		}
		*o.dst = d
	}

	return p, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
