package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-markets/internal/market"
)

type AppConfig struct {
	Port     string
	LogLevel string `validate:"oneof=trace debug info warn warning error"`
	LogFile  string

	// HTTPTimeout bounds every outbound provider call.
	HTTPTimeout time.Duration `validate:"gt=0"`

	Weather WeatherConfig

	// StoreRedisURL backs the rotation index and the health record; memory when empty.
	StoreRedisURL string

	Cities []market.City `validate:"min=1,dive"`

	Markets     MarketsConfig
	Chain       ChainConfig
	Settlement  SettlementConfig
	Attestation AttestationConfig
	Scheduler   SchedulerConfig

	GeocoderAPIKey string
}

type WeatherConfig struct {
	PrimaryProvider string `validate:"oneof=nws metno openmeteo"`
	NWSUserAgent    string
	MetNoUserAgent  string
	HTTPTimeout     time.Duration

	CacheRedisURL string
	CachePrefix   string
	ForecastTTL   time.Duration `validate:"gt=0"`
	ReadingTTL    time.Duration `validate:"gt=0"`
}

type MarketsConfig struct {
	// DailyCount above five is rejected; that ceiling is a product rule.
	DailyCount int           `validate:"min=0,max=5"`
	Spacing    time.Duration `validate:"gt=0"`
	Currency   string        `validate:"oneof=native stable"`
}

type ChainConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ReceiptTimeout  time.Duration `validate:"gt=0"`
}

type SettlementConfig struct {
	Mode       string        `validate:"oneof=direct attestation"`
	StaleAfter time.Duration `validate:"gte=0"`
}

type AttestationConfig struct {
	URL          string
	APIKey       string
	MaxAttempts  int           `validate:"min=1"`
	PollInterval time.Duration `validate:"gt=0"`
	PollTimeout  time.Duration `validate:"gt=0"`
}

type SchedulerConfig struct {
	CreateCron string `validate:"required"`
	SettleCron string `validate:"required"`
}

var (
	ErrChainNotConfigured       = errors.New("CHAIN_RPC_URL, MARKET_CONTRACT_ADDRESS and SETTLER_PRIVATE_KEY are required")
	ErrAttestationNotConfigured = errors.New("ATTESTATION_URL is required when SETTLEMENT_MODE=attestation")
)

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFile = os.Getenv("LOG_FILE")

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	cfg.Weather.PrimaryProvider = getenvDefault("WEATHER_PRIMARY_PROVIDER", "nws")
	cfg.Weather.NWSUserAgent = os.Getenv("NWS_USER_AGENT")
	cfg.Weather.MetNoUserAgent = os.Getenv("METNO_USER_AGENT")
	cfg.Weather.HTTPTimeout = cfg.HTTPTimeout
	cfg.Weather.CacheRedisURL = os.Getenv("WEATHER_CACHE_REDIS_URL")
	cfg.Weather.CachePrefix = getenvDefault("WEATHER_CACHE_PREFIX", "weather")
	if cfg.Weather.ForecastTTL, err = getenvDuration("FORECAST_CACHE_TTL", "180s"); err != nil {
		return nil, err
	}
	if cfg.Weather.ReadingTTL, err = getenvDuration("READING_CACHE_TTL", "24h"); err != nil {
		return nil, err
	}

	cfg.StoreRedisURL = os.Getenv("STORE_REDIS_URL")

	cities, err := loadCities(os.Getenv("CITIES_FILE"))
	if err != nil {
		return nil, err
	}
	cfg.Cities = cities

	if cfg.Markets.DailyCount, err = getenvInt("DAILY_MARKET_COUNT", 3); err != nil {
		return nil, err
	}
	if cfg.Markets.Spacing, err = getenvDuration("MARKET_SPACING", "4h"); err != nil {
		return nil, err
	}
	cfg.Markets.Currency = getenvDefault("MARKET_CURRENCY", "native")

	cfg.Chain.RPCURL = os.Getenv("CHAIN_RPC_URL")
	cfg.Chain.ContractAddress = os.Getenv("MARKET_CONTRACT_ADDRESS")
	cfg.Chain.PrivateKey = os.Getenv("SETTLER_PRIVATE_KEY")
	if cfg.Chain.ReceiptTimeout, err = getenvDuration("TX_RECEIPT_TIMEOUT", "2m"); err != nil {
		return nil, err
	}

	cfg.Settlement.Mode = getenvDefault("SETTLEMENT_MODE", "direct")
	if cfg.Settlement.StaleAfter, err = getenvDuration("STALE_MARKET_AFTER", "72h"); err != nil {
		return nil, err
	}

	cfg.Attestation.URL = os.Getenv("ATTESTATION_URL")
	cfg.Attestation.APIKey = os.Getenv("ATTESTATION_API_KEY")
	if cfg.Attestation.MaxAttempts, err = getenvInt("ATTESTATION_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.Attestation.PollInterval, err = getenvDuration("ATTESTATION_POLL_INTERVAL", "5s"); err != nil {
		return nil, err
	}
	if cfg.Attestation.PollTimeout, err = getenvDuration("ATTESTATION_POLL_TIMEOUT", "120s"); err != nil {
		return nil, err
	}

	cfg.Scheduler.CreateCron = getenvDefault("CREATE_CRON", "0 6 * * *")
	cfg.Scheduler.SettleCron = getenvDefault("SETTLE_CRON", "*/10 * * * *")

	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Settlement.Mode == "attestation" && c.Attestation.URL == "" {
		return ErrAttestationNotConfigured
	}
	return nil
}

// RequireChain reports whether the contract boundary is configured. Only
// modes that read or write the contract need it.
func (c *AppConfig) RequireChain() error {
	if c.Chain.RPCURL == "" || c.Chain.ContractAddress == "" || c.Chain.PrivateKey == "" {
		return ErrChainNotConfigured
	}
	return nil
}

type citiesFile struct {
	Cities []market.City `yaml:"cities"`
}

func loadCities(path string) ([]market.City, error) {
	if path == "" {
		return market.DefaultCities(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CITIES_FILE: %w", err)
	}
	return parseCities(data)
}

func parseCities(data []byte) ([]market.City, error) {
	var f citiesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cities: %w", err)
	}
	if len(f.Cities) == 0 {
		return nil, fmt.Errorf("parse cities: %w", market.ErrNoCitiesConfigured)
	}
	return f.Cities, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
