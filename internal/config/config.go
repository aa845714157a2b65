// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type Config struct {
	RPCList        []string `mapstructure:"rpc_list"`
	JupiterAPIList []string `mapstructure:"jupiter_api_list"`
	TokenAPIURL    string   `mapstructure:"token_api_url"`
	SignerURL      string   `mapstructure:"signer_url"`
	PostgresURL    string   `mapstructure:"postgres_url"`
	WalletsPath    string   `mapstructure:"wallets_path"`
	RPCDelay       int      `mapstructure:"rpc_delay"`       // ms between outbound calls
	MaxInflight    int      `mapstructure:"max_inflight"`    // global in-flight ceiling
	JobRetries     int      `mapstructure:"job_retries"`     // limiter-internal retries
	JobRetryDelay  int      `mapstructure:"job_retry_delay"` // ms between job retries
	DebugLogging   bool     `mapstructure:"debug_logging"`
	AnnounceTrades bool     `mapstructure:"announce_trades"`
}

const (
	DefaultTokenAPIURL   = "https://tokens.jup.ag"
	DefaultWalletsPath   = "configs/wallets.yaml"
	DefaultRPCDelay      = 200
	DefaultMaxInflight   = 8
	DefaultJobRetries    = 5
	DefaultJobRetryDelay = 1000
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"token_api_url":   DefaultTokenAPIURL,
		"wallets_path":    DefaultWalletsPath,
		"rpc_delay":       DefaultRPCDelay,
		"max_inflight":    DefaultMaxInflight,
		"job_retries":     DefaultJobRetries,
		"job_retry_delay": DefaultJobRetryDelay,
		"announce_trades": true,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	if len(cfg.JupiterAPIList) == 0 {
		return errors.New("jupiter_api_list is empty")
	}
	if cfg.SignerURL == "" {
		return errors.New("missing signer_url in configuration")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	for _, apiURL := range cfg.JupiterAPIList {
		if err := validateURLWithCache(apiURL, "http"); err != nil {
			return errors.New("invalid Jupiter API URL protocol")
		}
	}
	if err := validateURLWithCache(cfg.SignerURL, "http"); err != nil {
		return errors.New("invalid signer URL protocol")
	}
	if err := validateURLWithCache(cfg.TokenAPIURL, "http"); err != nil {
		return errors.New("invalid token API URL protocol")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.RPCDelay <= 0 {
		return errors.New("invalid rpc_delay")
	}
	if cfg.MaxInflight <= 0 {
		return errors.New("invalid max_inflight")
	}
	if cfg.JobRetries < 0 {
		return errors.New("invalid job_retries count")
	}
	if cfg.JobRetryDelay <= 0 {
		return errors.New("invalid job_retry_delay")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("SWAPCORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envSigner := v.GetString("SIGNER_URL"); envSigner != "" {
		cfg.SignerURL = envSigner
	}
	if envPostgres := v.GetString("POSTGRES_URL"); envPostgres != "" {
		cfg.PostgresURL = envPostgres
	}

	if envRPCList := v.GetString("RPC_LIST"); envRPCList != "" {
		if rpcs := splitList(envRPCList); len(rpcs) > 0 {
			cfg.RPCList = rpcs
		}
	}
	if envAPIList := v.GetString("JUPITER_API_LIST"); envAPIList != "" {
		if apis := splitList(envAPIList); len(apis) > 0 {
			cfg.JupiterAPIList = apis
		}
	}
	return nil
}

func splitList(raw string) []string {
	var clean []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return clean
}
