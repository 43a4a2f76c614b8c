package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"flight-arbitrage-api/internal/config"
	"flight-arbitrage-api/internal/logger"
	"flight-arbitrage-api/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Resolver resolves the EUR/local-currency rate under the official or custom
// policy. Resolution failures are always recovered locally via the documented
// fallback value, since every downstream computation depends on a rate being
// available. The cached last official rate is the only process-wide mutable
// state in the core: reads are lock-protected and refreshes are
// last-write-wins, staleness being tolerated by design.
type Resolver struct {
	configuration *config.Config
	logger        *logrus.Entry
	httpClient    *http.Client

	cacheMutex sync.RWMutex
	cached     *models.ExchangeRate

	singleFlightGroup singleflight.Group
}

// NewResolver creates a new rate resolver
func NewResolver(configuration *config.Config, logger *logger.Logger) *Resolver {
	return &Resolver{
		configuration: configuration,
		logger:        logger.WithComponent("rates"),
		httpClient:    &http.Client{Timeout: configuration.RateSourceTimeout},
	}
}

// Resolve returns the exchange rate for the given policy. It never returns an
// error: the official path falls back to the configured constant when the
// source is unreachable, and the custom path falls back to its default when
// the administrator value is unset.
func (resolver *Resolver) Resolve(ctx context.Context, policy string) models.ExchangeRate {
	if policy == models.PolicyCustom {
		return resolver.customRate()
	}
	return resolver.officialRate(ctx)
}

// customRate returns the administrator-configured rate
func (resolver *Resolver) customRate() models.ExchangeRate {
	value := resolver.configuration.CustomRate
	source := "admin-config"
	if value <= 0 {
		value = resolver.configuration.OfficialRateFallback
		source = "default"
	}
	return models.ExchangeRate{
		Value:      value,
		Policy:     models.PolicyCustom,
		Source:     source,
		ResolvedAt: time.Now(),
	}
}

// officialRate serves the cached rate while valid, otherwise fetches from the
// rate source with concurrent fetches deduplicated through singleflight.
func (resolver *Resolver) officialRate(ctx context.Context) models.ExchangeRate {
	resolver.cacheMutex.RLock()
	if resolver.cached != nil && time.Since(resolver.cached.ResolvedAt) < resolver.configuration.RateCacheTTL {
		cachedRate := *resolver.cached
		resolver.cacheMutex.RUnlock()
		return cachedRate
	}
	resolver.cacheMutex.RUnlock()

	result, err, _ := resolver.singleFlightGroup.Do("official:"+resolver.configuration.HubCurrency, func() (interface{}, error) {
		return resolver.fetchOfficialRate(ctx)
	})
	if err != nil {
		resolver.logger.Warnf("Official rate source failed, using fallback value: %v", err)
		return resolver.fallbackRate()
	}

	rate := result.(models.ExchangeRate)

	resolver.cacheMutex.Lock()
	resolver.cached = &rate
	resolver.cacheMutex.Unlock()

	return rate
}

// fallbackRate is the deterministic recovery value; the policy stays official
// even in fallback so the caller can tell which policy was requested.
func (resolver *Resolver) fallbackRate() models.ExchangeRate {
	return models.ExchangeRate{
		Value:      resolver.configuration.OfficialRateFallback,
		Policy:     models.PolicyOfficial,
		Source:     "fallback",
		ResolvedAt: time.Now(),
	}
}

// fetchOfficialRate fetches the EUR base rate table and picks the hub currency
func (resolver *Resolver) fetchOfficialRate(ctx context.Context) (models.ExchangeRate, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, resolver.configuration.RateSourceURL, nil)
	if err != nil {
		return models.ExchangeRate{}, fmt.Errorf("failed to create request: %w", err)
	}

	response, err := resolver.httpClient.Do(request)
	if err != nil {
		return models.ExchangeRate{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return models.ExchangeRate{}, fmt.Errorf("rate source returned status %d", response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return models.ExchangeRate{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var payload struct {
		Base  string             `json:"base"`
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.ExchangeRate{}, fmt.Errorf("failed to parse rate source response: %w", err)
	}

	value, ok := payload.Rates[resolver.configuration.HubCurrency]
	if !ok || value <= 0 {
		return models.ExchangeRate{}, fmt.Errorf("rate source has no usable rate for %s", resolver.configuration.HubCurrency)
	}

	return models.ExchangeRate{
		Value:      value,
		Policy:     models.PolicyOfficial,
		Source:     "rate-source",
		ResolvedAt: time.Now(),
	}, nil
}

// Convert converts an amount between EUR and the rate's local currency. The
// conversion itself is exact; rounding happens only at presentation points
// via Round2, never during accumulation.
func Convert(amount float64, fromCurrency, toCurrency string, rate models.ExchangeRate) float64 {
	if fromCurrency == toCurrency {
		return amount
	}
	if fromCurrency == "EUR" {
		return amount * rate.Value
	}
	if toCurrency == "EUR" {
		return amount / rate.Value
	}
	return amount
}

// Round2 rounds a value to two decimals for display
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}
