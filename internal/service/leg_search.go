package service

import (
	"context"
	"fmt"
	"strings"

	"flight-arbitrage-api/internal/config"
	"flight-arbitrage-api/internal/logger"
	"flight-arbitrage-api/internal/models"
	"flight-arbitrage-api/internal/provider"
	"flight-arbitrage-api/internal/rates"
)

// LegSearch fans out one directional segment to all providers, merges their
// itineraries and selects the cheapest qualifying one after normalizing
// prices to EUR.
type LegSearch struct {
	configuration *config.Config
	logger        *logger.Logger
	providers     []provider.FlightProvider
	resolver      *rates.Resolver
}

// LegResult is the outcome of one leg search. A nil Cheapest with an empty
// Errors list means nothing was found; Errors alongside a nil Cheapest means
// sources failed. Neither is fatal.
type LegResult struct {
	Cheapest *models.LegQuote       `json:"cheapest"`
	All      []models.Itinerary     `json:"all"`
	Errors   []models.ProviderError `json:"errors"`
	Warnings []string               `json:"warnings"`
}

// NewLegSearch creates a new leg search service
func NewLegSearch(configuration *config.Config, logger *logger.Logger, providers []provider.FlightProvider, resolver *rates.Resolver) *LegSearch {
	return &LegSearch{
		configuration: configuration,
		logger:        logger,
		providers:     providers,
		resolver:      resolver,
	}
}

// SearchLeg queries all providers for the segment concurrently and reduces the
// merged result set to the cheapest qualifying itinerary. The reduction is
// deterministic and independent of response-arrival order.
func (legSearch *LegSearch) SearchLeg(ctx context.Context, req provider.SearchRequest, ratePolicy string, airlineWhitelist []string) LegResult {
	segment := fmt.Sprintf("%s-%s", req.Origin, req.Destination)
	result := LegResult{
		All:      []models.Itinerary{},
		Errors:   []models.ProviderError{},
		Warnings: []string{},
	}

	if len(legSearch.providers) == 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("no flight providers configured for %s", segment))
		return result
	}

	merged, providerErrors := legSearch.fanOut(ctx, req, segment)
	result.Errors = providerErrors

	matching := filterSegment(merged, req)
	result.All = matching

	candidates := matching
	if len(airlineWhitelist) > 0 {
		candidates = filterAirlines(matching, airlineWhitelist)
		if len(candidates) == 0 && len(matching) > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("airline whitelist excluded all %d itineraries on %s", len(matching), segment))
			return result
		}
	}

	if len(candidates) == 0 {
		return result
	}

	cheapest, warnings := legSearch.selectCheapest(ctx, candidates, ratePolicy)
	result.Cheapest = cheapest
	result.Warnings = append(result.Warnings, warnings...)
	return result
}

type providerResult struct {
	provider    string
	itineraries []models.Itinerary
	err         error
}

// fanOut launches one goroutine per provider, bounded by the configured
// concurrency limit, and collects every result. Each failing source yields
// exactly one ProviderError; it never aborts the search.
func (legSearch *LegSearch) fanOut(ctx context.Context, req provider.SearchRequest, segment string) ([]models.Itinerary, []models.ProviderError) {
	resultsChannel := make(chan providerResult, len(legSearch.providers))

	maxConcurrent := legSearch.configuration.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = len(legSearch.providers)
	}
	semaphore := make(chan struct{}, maxConcurrent)

	for _, flightProvider := range legSearch.providers {
		go func(p provider.FlightProvider) {
			semaphore <- struct{}{}        // Acquire semaphore
			defer func() { <-semaphore }() // Release semaphore

			legSearch.logger.Debugf("Searching %s via provider: %s", segment, p.Name())
			itineraries, err := p.Search(ctx, req)
			resultsChannel <- providerResult{provider: p.Name(), itineraries: itineraries, err: err}
		}(flightProvider)
	}

	merged := []models.Itinerary{}
	providerErrors := []models.ProviderError{}
	for i := 0; i < len(legSearch.providers); i++ {
		res := <-resultsChannel
		if res.err != nil {
			errorType := classifyError(res.err)
			if errorType == ErrorTypeContextCancelled {
				legSearch.logger.Warnf("Provider %s timed out on %s: %v", res.provider, segment, res.err)
			} else {
				legSearch.logger.Warnf("Provider %s failed on %s: %v", res.provider, segment, res.err)
			}
			providerErrors = append(providerErrors, models.ProviderError{
				Provider: res.provider,
				Segment:  segment,
				Message:  res.err.Error(),
			})
			continue
		}
		merged = append(merged, res.itineraries...)
	}

	return merged, providerErrors
}

// selectCheapest normalizes candidate prices to EUR and picks the minimum.
// Ties break on fewer stops, then earlier departure; a final provider/ID
// comparison keeps the choice stable when everything else is equal.
func (legSearch *LegSearch) selectCheapest(ctx context.Context, candidates []models.Itinerary, ratePolicy string) (*models.LegQuote, []string) {
	warnings := []string{}
	hubCurrency := legSearch.configuration.HubCurrency

	var rate *models.ExchangeRate
	var best *models.Itinerary
	var bestEUR float64
	var bestLocal *float64

	for i := range candidates {
		candidate := candidates[i]
		var priceEUR float64
		var priceLocal *float64

		switch candidate.Price.Currency {
		case "EUR":
			priceEUR = candidate.Price.Amount
		case hubCurrency:
			if rate == nil {
				resolved := legSearch.resolver.Resolve(ctx, ratePolicy)
				rate = &resolved
			}
			priceEUR = rates.Round2(rates.Convert(candidate.Price.Amount, hubCurrency, "EUR", *rate))
			local := candidate.Price.Amount
			priceLocal = &local
		default:
			warnings = append(warnings, fmt.Sprintf("skipped itinerary %s quoted in unsupported currency %s", candidate.ID, candidate.Price.Currency))
			continue
		}

		if best == nil || lessQuote(priceEUR, candidate, bestEUR, *best) {
			best = &candidates[i]
			bestEUR = priceEUR
			bestLocal = priceLocal
		}
	}

	if best == nil {
		return nil, warnings
	}

	quote := &models.LegQuote{
		Origin:      best.Origin,
		Destination: best.Destination,
		Itinerary:   *best,
		PriceEUR:    bestEUR,
		PriceLocal:  bestLocal,
		Rate:        rate,
	}
	return quote, warnings
}

// lessQuote is the deterministic ordering used by the cheapest reduction
func lessQuote(priceA float64, a models.Itinerary, priceB float64, b models.Itinerary) bool {
	if priceA != priceB {
		return priceA < priceB
	}
	if a.Stops != b.Stops {
		return a.Stops < b.Stops
	}
	if !a.DepartureTime.Equal(b.DepartureTime) {
		return a.DepartureTime.Before(b.DepartureTime)
	}
	if a.Provider != b.Provider {
		return a.Provider < b.Provider
	}
	return a.ID < b.ID
}

// filterSegment keeps itineraries that actually cover the requested segment
func filterSegment(itineraries []models.Itinerary, req provider.SearchRequest) []models.Itinerary {
	matching := make([]models.Itinerary, 0, len(itineraries))
	for _, itinerary := range itineraries {
		if !strings.EqualFold(itinerary.Origin, req.Origin) {
			continue
		}
		if !strings.EqualFold(itinerary.Destination, req.Destination) {
			continue
		}
		if !itinerary.Valid() {
			continue
		}
		matching = append(matching, itinerary)
	}
	return matching
}

// filterAirlines retains itineraries whose carrier code is whitelisted
func filterAirlines(itineraries []models.Itinerary, whitelist []string) []models.Itinerary {
	allowed := make(map[string]struct{}, len(whitelist))
	for _, code := range whitelist {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			allowed[code] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return itineraries
	}

	filtered := make([]models.Itinerary, 0, len(itineraries))
	for _, itinerary := range itineraries {
		if _, ok := allowed[strings.ToUpper(itinerary.Airline.Code)]; ok {
			filtered = append(filtered, itinerary)
		}
	}
	return filtered
}
