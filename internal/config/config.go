package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime settings. Values come from config.yaml in the
// working directory when present, overridden by environment variables.
type Config struct {
	Port            string            `mapstructure:"PORT"`
	DBPath          string            `mapstructure:"DB_PATH"`
	JWTSecret       string            `mapstructure:"JWT_SECRET"`
	EthRPCURL       string            `mapstructure:"ETH_RPC_URL"`
	ChainID         int64             `mapstructure:"CHAIN_ID"`
	OperatorKey     string            `mapstructure:"OPERATOR_KEY"` // hex-encoded private key of the platform signer
	VaultAddress    string            `mapstructure:"VAULT_ADDRESS"`
	PaymentAsset    string            `mapstructure:"PAYMENT_ASSET"`
	TokenAddresses  map[string]string `mapstructure:"TOKEN_ADDRESSES"` // symbol -> contract address
	RedisAddr       string            `mapstructure:"REDIS_ADDR"`
	MatchIntervalMs int               `mapstructure:"MATCH_INTERVAL_MS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_PATH", "exchange.db")
	v.SetDefault("JWT_SECRET", "vaultex-secret-key")
	v.SetDefault("CHAIN_ID", 31337)
	v.SetDefault("PAYMENT_ASSET", "USDV")
	v.SetDefault("MATCH_INTERVAL_MS", 5000)

	// AutomaticEnv only resolves keys viper has seen, so keys without a
	// default must be bound explicitly or env-only configuration drops them.
	for _, key := range []string{
		"ETH_RPC_URL", "OPERATOR_KEY", "VAULT_ADDRESS", "REDIS_ADDR", "TOKEN_ADDRESSES",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if cfg.TokenAddresses == nil {
		// A YAML map can't travel through an env var, so TOKEN_ADDRESSES
		// accepts "SYM=0xaddr,SYM2=0xaddr" when set in the environment.
		cfg.TokenAddresses = parseTokenPairs(v.GetString("TOKEN_ADDRESSES"))
	}
	return cfg, nil
}

func parseTokenPairs(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		sym, addr, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || sym == "" || addr == "" {
			continue
		}
		tokens[sym] = addr
	}
	return tokens
}

// KnownAsset reports whether symbol is a tradable (non-payment) asset.
func (c *Config) KnownAsset(symbol string) bool {
	if symbol == c.PaymentAsset {
		return false
	}
	if len(c.TokenAddresses) == 0 {
		// No registry configured (dev mode): accept any non-payment symbol.
		return true
	}
	_, ok := c.TokenAddresses[symbol]
	return ok
}
