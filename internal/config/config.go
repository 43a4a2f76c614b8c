package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Conversion scope policies for via-hub leg pricing
const (
	ScopeHubOnly     = "hub-only"
	ScopeAllTouching = "all-touching"
)

// FlightProvider represents a single external flight-data source
type FlightProvider struct {
	Name       string
	BaseURL    string
	APIKey     string
	Enabled    bool
	Priority   int // Lower number = higher priority
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
}

// Config holds all configuration for the application
type Config struct {
	Port     string
	LogLevel string

	// Hub routing
	HubAirport  string
	HubCurrency string

	// Flight data providers (dynamic list)
	FlightProviders       []FlightProvider
	StaticProviderEnabled bool
	MaxConcurrentRequests int

	// Currency rate source
	RateSourceURL        string
	RateSourceTimeout    time.Duration
	RateCacheTTL         time.Duration
	OfficialRateFallback float64
	CustomRate           float64

	// Arbitrage evaluation
	MinSavingsPercent   float64
	RiskBufferMinutes   int
	ConversionScope     string
	SyntheticSplitRatio float64
	ShowViaHubOption    bool
	HubVisaRequired     bool

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HubAirport:  getEnv("HUB_AIRPORT", "EVN"),
		HubCurrency: getEnv("HUB_CURRENCY", "AMD"),

		FlightProviders:       loadFlightProviders(),
		StaticProviderEnabled: getEnv("STATIC_PROVIDER_ENABLED", "true") == "true",
		MaxConcurrentRequests: mustAtoi(getEnv("MAX_CONCURRENT_REQUESTS", "4")),

		RateSourceURL:        getEnv("RATE_SOURCE_URL", "https://open.er-api.com/v6/latest/EUR"),
		RateSourceTimeout:    time.Duration(mustAtoi(getEnv("RATE_SOURCE_TIMEOUT", "10"))) * time.Second,
		RateCacheTTL:         time.Duration(mustAtoi(getEnv("RATE_CACHE_TTL_SECONDS", "60"))) * time.Second,
		OfficialRateFallback: mustParseFloat(getEnv("OFFICIAL_RATE_FALLBACK", "150"), 150),
		CustomRate:           mustParseFloat(getEnv("CUSTOM_RATE", "260"), 260),

		MinSavingsPercent:   mustParseFloat(getEnv("MIN_SAVINGS_PERCENT", "15"), 15),
		RiskBufferMinutes:   mustAtoi(getEnv("RISK_BUFFER_MINUTES", "120")),
		ConversionScope:     getEnv("CONVERSION_SCOPE", ScopeHubOnly),
		SyntheticSplitRatio: mustParseFloat(getEnv("SYNTHETIC_SPLIT_RATIO", "0"), 0),
		ShowViaHubOption:    getEnv("SHOW_VIA_HUB_OPTION", "true") == "true",
		HubVisaRequired:     getEnv("HUB_VISA_REQUIRED", "false") == "true",

		RateLimitEnabled:  getEnv("RATE_LIMIT_ENABLED", "true") == "true",
		RateLimitRequests: mustAtoi(getEnv("RATE_LIMIT_REQUESTS", "100")),
		RateLimitWindow:   time.Duration(mustAtoi(getEnv("RATE_LIMIT_WINDOW_SECONDS", "60"))) * time.Second,
		RateLimitBurst:    mustAtoi(getEnv("RATE_LIMIT_BURST", "10")),
	}, nil
}

// loadFlightProviders loads flight data providers from environment variables
func loadFlightProviders() []FlightProvider {
	providers := []FlightProvider{}

	// Default providers
	defaultProviders := []FlightProvider{
		{
			Name:       "aerodata",
			BaseURL:    getEnv("AERODATA_BASE_URL", "https://api.aerodatabox.example/v2/search"),
			APIKey:     getEnv("AERODATA_API_KEY", ""),
			Enabled:    getEnv("AERODATA_ENABLED", "true") == "true",
			Priority:   1,
			Timeout:    time.Duration(mustAtoi(getEnv("AERODATA_TIMEOUT", "10"))) * time.Second,
			RetryCount: mustAtoi(getEnv("AERODATA_RETRY_COUNT", "2")),
			RetryDelay: time.Duration(mustAtoi(getEnv("AERODATA_RETRY_DELAY", "1"))) * time.Second,
		},
		{
			Name:       "skyscan-lite",
			BaseURL:    getEnv("SKYSCAN_LITE_BASE_URL", "https://partners.skyscan.example/v1/flights"),
			APIKey:     getEnv("SKYSCAN_LITE_API_KEY", ""),
			Enabled:    getEnv("SKYSCAN_LITE_ENABLED", "true") == "true",
			Priority:   2,
			Timeout:    time.Duration(mustAtoi(getEnv("SKYSCAN_LITE_TIMEOUT", "10"))) * time.Second,
			RetryCount: mustAtoi(getEnv("SKYSCAN_LITE_RETRY_COUNT", "2")),
			RetryDelay: time.Duration(mustAtoi(getEnv("SKYSCAN_LITE_RETRY_DELAY", "1"))) * time.Second,
		},
	}

	providers = append(providers, defaultProviders...)

	// Load additional providers from environment
	providers = append(providers, loadAdditionalProviders()...)

	// Filter out disabled providers and sort by priority
	enabledProviders := []FlightProvider{}
	for _, provider := range providers {
		if provider.Enabled {
			enabledProviders = append(enabledProviders, provider)
		}
	}

	// Sort by priority (lower number = higher priority)
	for i := 0; i < len(enabledProviders); i++ {
		for j := i + 1; j < len(enabledProviders); j++ {
			if enabledProviders[i].Priority > enabledProviders[j].Priority {
				enabledProviders[i], enabledProviders[j] = enabledProviders[j], enabledProviders[i]
			}
		}
	}

	return enabledProviders
}

// loadAdditionalProviders loads additional providers from environment variables
func loadAdditionalProviders() []FlightProvider {
	providers := []FlightProvider{}

	// Check for additional providers (PROVIDER_1_NAME, PROVIDER_2_NAME, etc.)
	for i := 1; i <= 10; i++ { // Support up to 10 additional providers
		name := getEnv(fmt.Sprintf("PROVIDER_%d_NAME", i), "")
		if name == "" {
			break
		}

		provider := FlightProvider{
			Name:       name,
			BaseURL:    getEnv(fmt.Sprintf("PROVIDER_%d_BASE_URL", i), ""),
			APIKey:     getEnv(fmt.Sprintf("PROVIDER_%d_API_KEY", i), ""),
			Enabled:    getEnv(fmt.Sprintf("PROVIDER_%d_ENABLED", i), "true") == "true",
			Priority:   mustAtoi(getEnv(fmt.Sprintf("PROVIDER_%d_PRIORITY", i), "10")),
			Timeout:    time.Duration(mustAtoi(getEnv(fmt.Sprintf("PROVIDER_%d_TIMEOUT", i), "10"))) * time.Second,
			RetryCount: mustAtoi(getEnv(fmt.Sprintf("PROVIDER_%d_RETRY_COUNT", i), "2")),
			RetryDelay: time.Duration(mustAtoi(getEnv(fmt.Sprintf("PROVIDER_%d_RETRY_DELAY", i), "1"))) * time.Second,
		}

		if provider.BaseURL != "" {
			providers = append(providers, provider)
		}
	}

	return providers
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 60
	}
	return i
}

func mustParseFloat(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}
