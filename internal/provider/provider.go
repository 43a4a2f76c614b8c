package provider

import (
	"context"
	"time"

	"flight-arbitrage-api/internal/config"
	"flight-arbitrage-api/internal/logger"
	"flight-arbitrage-api/internal/models"
)

// SearchRequest describes one directional flight search sent to a provider.
// Currency is a hint for the quote currency; providers that cannot honor it
// return prices in whatever currency they have, tagged on each itinerary.
type SearchRequest struct {
	Origin        string
	Destination   string
	DepartureDate time.Time
	ReturnDate    *time.Time
	Passengers    int
	CabinClass    string
	Currency      string
}

// FlightProvider defines the interface for flight data providers. A provider
// returns an empty list on zero matches and an error on upstream failure; the
// caller converts errors to ProviderError records, so no single source can
// abort a search.
type FlightProvider interface {
	Name() string
	Search(ctx context.Context, req SearchRequest) ([]models.Itinerary, error)
	Enabled() bool
	Priority() int
}

// Factory creates provider instances
type Factory struct {
	config *config.Config
	logger *logger.Logger
}

// NewFactory creates a new provider factory
func NewFactory(config *config.Config, logger *logger.Logger) *Factory {
	return &Factory{
		config: config,
		logger: logger,
	}
}

// CreateProviders creates all enabled providers, ordered by priority, with the
// static fallback table appended last when enabled.
func (f *Factory) CreateProviders() []FlightProvider {
	providers := make([]FlightProvider, 0, len(f.config.FlightProviders)+1)

	for _, providerConfig := range f.config.FlightProviders {
		if !providerConfig.Enabled {
			continue
		}
		providers = append(providers, NewHTTPProvider(providerConfig, f.logger))
	}

	if f.config.StaticProviderEnabled {
		providers = append(providers, NewStaticProvider(f.config.HubCurrency))
	}

	return providers
}
