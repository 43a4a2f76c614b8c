package testutils

import (
	"time"

	"flight-arbitrage-api/internal/config"
	"flight-arbitrage-api/internal/logger"
	"flight-arbitrage-api/internal/models"
)

// MockLogger creates a logger for testing
func MockLogger() *logger.Logger {
	return logger.New("debug")
}

// MockConfig creates a configuration for testing
func MockConfig() *config.Config {
	return &config.Config{
		Port:     "8081",
		LogLevel: "debug",

		HubAirport:  "EVN",
		HubCurrency: "AMD",

		FlightProviders: []config.FlightProvider{
			{
				Name:       "aerodata",
				BaseURL:    "https://api.test.example/search",
				APIKey:     "test-api-key",
				Enabled:    true,
				Priority:   1,
				Timeout:    5 * time.Second,
				RetryCount: 0,
				RetryDelay: 10 * time.Millisecond,
			},
		},
		StaticProviderEnabled: false,
		MaxConcurrentRequests: 4,

		RateSourceURL:        "https://rates.test.example/latest/EUR",
		RateSourceTimeout:    5 * time.Second,
		RateCacheTTL:         60 * time.Second,
		OfficialRateFallback: 150,
		CustomRate:           260,

		MinSavingsPercent:   15,
		RiskBufferMinutes:   120,
		ConversionScope:     config.ScopeHubOnly,
		SyntheticSplitRatio: 0,
		ShowViaHubOption:    true,
		HubVisaRequired:     false,

		RateLimitEnabled:  true,
		RateLimitRequests: 100,
		RateLimitWindow:   60 * time.Second,
		RateLimitBurst:    10,
	}
}

// Itinerary builds a valid itinerary fixture; override fields as needed after
// the call.
func Itinerary(id, providerName, origin, destination string, amount float64, currency string, stops int, departure time.Time) models.Itinerary {
	arrival := departure.Add(4 * time.Hour)
	return models.Itinerary{
		ID:              id,
		Provider:        providerName,
		Airline:         models.Airline{Code: "XX", Name: "Test Air"},
		Origin:          origin,
		Destination:     destination,
		DepartureTime:   departure,
		ArrivalTime:     arrival,
		DurationMinutes: 240,
		Stops:           stops,
		CabinClass:      models.CabinEconomy,
		Price:           models.Price{Amount: amount, Currency: currency},
	}
}

// Departure is a fixed timezone-aware timestamp fixtures hang off
func Departure() time.Time {
	return time.Date(2030, 9, 1, 6, 30, 0, 0, time.UTC)
}
