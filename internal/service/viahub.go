package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flight-arbitrage-api/internal/config"
	"flight-arbitrage-api/internal/logger"
	"flight-arbitrage-api/internal/models"
	"flight-arbitrage-api/internal/provider"
	"flight-arbitrage-api/internal/rates"
)

// Risk flags attached to via-hub results
const (
	FlagSeparateTickets = "separate-tickets"
	FlagVisaRequired    = "visa-required"
	FlagShortConnection = "short-connection"
	FlagEstimatedPrice  = "estimated-price"
)

// ViaHubComposer prices the simulated two-leg itinerary routed through the
// configured hub: origin→hub as the outbound leg, hub→destination as the
// inbound leg, with local-currency pricing applied per the conversion scope.
type ViaHubComposer struct {
	configuration *config.Config
	logger        *logger.Logger
	legSearch     *LegSearch
}

// NewViaHubComposer creates a new via-hub composer
func NewViaHubComposer(configuration *config.Config, logger *logger.Logger, legSearch *LegSearch) *ViaHubComposer {
	return &ViaHubComposer{
		configuration: configuration,
		logger:        logger,
		legSearch:     legSearch,
	}
}

// Compose runs both leg searches concurrently and sums them into a cost
// breakdown. A nil breakdown means the via-hub itinerary is infeasible, which
// is a normal outcome; collected provider errors are surfaced either way.
func (composer *ViaHubComposer) Compose(ctx context.Context, params models.SearchParams) (*models.ViaHubBreakdown, []models.ProviderError) {
	hub := composer.configuration.HubAirport

	outboundReq := provider.SearchRequest{
		Origin:        params.Origin,
		Destination:   hub,
		DepartureDate: params.DepartureDate,
		ReturnDate:    params.ReturnDate,
		Passengers:    params.Passengers,
		CabinClass:    params.CabinClass,
		Currency:      composer.outboundCurrency(),
	}
	inboundReq := provider.SearchRequest{
		Origin:        hub,
		Destination:   params.Destination,
		DepartureDate: params.DepartureDate,
		ReturnDate:    params.ReturnDate,
		Passengers:    params.Passengers,
		CabinClass:    params.CabinClass,
		// The leg departing the hub is always eligible for local-currency pricing
		Currency: composer.configuration.HubCurrency,
	}

	var outbound, inbound LegResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		outbound = composer.legSearch.SearchLeg(ctx, outboundReq, params.RatePolicy, params.AirlineWhitelist)
	}()
	go func() {
		defer wg.Done()
		inbound = composer.legSearch.SearchLeg(ctx, inboundReq, params.RatePolicy, params.AirlineWhitelist)
	}()
	wg.Wait()

	providerErrors := append(append([]models.ProviderError{}, outbound.Errors...), inbound.Errors...)

	if outbound.Cheapest == nil || inbound.Cheapest == nil {
		composer.logger.Infof("Via-hub route via %s infeasible: outbound found=%t inbound found=%t",
			hub, outbound.Cheapest != nil, inbound.Cheapest != nil)
		return nil, providerErrors
	}

	breakdown := composer.buildBreakdown(*outbound.Cheapest, *inbound.Cheapest)
	breakdown.Warnings = append(breakdown.Warnings, outbound.Warnings...)
	breakdown.Warnings = append(breakdown.Warnings, inbound.Warnings...)
	return breakdown, providerErrors
}

// outboundCurrency picks the quote currency hint for the origin→hub leg based
// on the conversion scope: under hub-only pricing only the leg departing the
// hub is quoted in local currency, under all-touching both hub-touching legs
// are.
func (composer *ViaHubComposer) outboundCurrency() string {
	if composer.configuration.ConversionScope == config.ScopeAllTouching {
		return composer.configuration.HubCurrency
	}
	return "EUR"
}

// buildBreakdown sums the two leg quotes and attaches the fixed advisory
// warnings every via-hub result carries.
func (composer *ViaHubComposer) buildBreakdown(outbound, inbound models.LegQuote) *models.ViaHubBreakdown {
	breakdown := &models.ViaHubBreakdown{
		Outbound: outbound,
		Inbound:  inbound,
		TotalEUR: rates.Round2(outbound.PriceEUR + inbound.PriceEUR),
		Warnings: []string{},
	}

	if outbound.PriceLocal != nil || inbound.PriceLocal != nil {
		total := 0.0
		if outbound.PriceLocal != nil {
			total += *outbound.PriceLocal
		}
		if inbound.PriceLocal != nil {
			total += *inbound.PriceLocal
		}
		breakdown.TotalLocal = &total
	}

	breakdown.Warnings = append(breakdown.Warnings,
		"legs are separately ticketed: missed connections are not protected",
		fmt.Sprintf("verify connection time at %s against a minimum buffer of %d minutes",
			composer.configuration.HubAirport, composer.configuration.RiskBufferMinutes),
	)
	if composer.configuration.HubVisaRequired {
		breakdown.Warnings = append(breakdown.Warnings,
			fmt.Sprintf("transit via %s may require a visa", composer.configuration.HubAirport))
	}

	now := time.Now()
	for _, rate := range []*models.ExchangeRate{outbound.Rate, inbound.Rate} {
		if rate != nil && !rate.Fresh(now) {
			breakdown.Warnings = append(breakdown.Warnings,
				fmt.Sprintf("exchange rate from %s is older than 24 hours", rate.Source))
			break
		}
	}

	return breakdown
}

// Synthesize builds a degraded via-hub estimate by splitting the direct fare
// at the configured fixed ratio. It is used only when the live provider-backed
// path found nothing on either leg, and its quotes are flagged as estimates.
func (composer *ViaHubComposer) Synthesize(params models.SearchParams, direct models.LegQuote) *models.ViaHubBreakdown {
	ratio := composer.configuration.SyntheticSplitRatio
	if ratio <= 0 || ratio >= 1 {
		return nil
	}

	hub := composer.configuration.HubAirport
	outboundEUR := rates.Round2(direct.PriceEUR * ratio)
	inboundEUR := rates.Round2(direct.PriceEUR - outboundEUR)

	outbound := syntheticQuote(params.Origin, hub, outboundEUR, params.DepartureDate)
	inbound := syntheticQuote(hub, params.Destination, inboundEUR, params.DepartureDate)

	breakdown := composer.buildBreakdown(outbound, inbound)
	breakdown.Warnings = append(breakdown.Warnings,
		"via-hub prices are estimated from the direct fare, no live leg quotes were available")
	return breakdown
}

// syntheticQuote fabricates a placeholder leg quote for the estimate path
func syntheticQuote(origin, destination string, priceEUR float64, date time.Time) models.LegQuote {
	departure := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, time.UTC)
	return models.LegQuote{
		Origin:      origin,
		Destination: destination,
		Itinerary: models.Itinerary{
			ID:            fmt.Sprintf("estimate-%s-%s", origin, destination),
			Provider:      "estimate",
			Origin:        origin,
			Destination:   destination,
			DepartureTime: departure,
			ArrivalTime:   departure.Add(4 * time.Hour),
			CabinClass:    models.CabinEconomy,
			Price:         models.Price{Amount: priceEUR, Currency: "EUR"},
		},
		PriceEUR: priceEUR,
	}
}
