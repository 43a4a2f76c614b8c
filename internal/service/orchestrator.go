package service

import (
	"context"
	"time"

	"flight-arbitrage-api/internal/config"
	"flight-arbitrage-api/internal/logger"
	"flight-arbitrage-api/internal/models"
	"flight-arbitrage-api/internal/provider"

	"golang.org/x/sync/errgroup"
)

// SearchResponse is the merged outcome of one arbitrage search. Errors carries
// every provider failure encountered by nested components, so a caller can
// distinguish "nothing was found" from "every source failed" even when both
// branches are nil.
type SearchResponse struct {
	Direct    *models.LegQuote        `json:"direct"`
	ViaHub    *models.ViaHubBreakdown `json:"via_hub"`
	Arbitrage *models.ArbitrageResult `json:"arbitrage"`
	Providers []string                `json:"providers"`
	Errors    []models.ProviderError  `json:"errors"`
	Warnings  []string                `json:"warnings"`
	Timestamp time.Time               `json:"timestamp"`
}

// Orchestrator is the top-level entry point of the arbitrage engine. It runs
// the direct leg search and the via-hub composition concurrently, joins them,
// and evaluates the comparison.
type Orchestrator struct {
	configuration *config.Config
	logger        *logger.Logger
	legSearch     *LegSearch
	composer      *ViaHubComposer
	providerNames []string
}

// NewOrchestrator creates a new aggregation orchestrator
func NewOrchestrator(configuration *config.Config, logger *logger.Logger, legSearch *LegSearch, composer *ViaHubComposer, providers []provider.FlightProvider) *Orchestrator {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	return &Orchestrator{
		configuration: configuration,
		logger:        logger,
		legSearch:     legSearch,
		composer:      composer,
		providerNames: names,
	}
}

// Search validates the parameters and fans out to both branches. Validation is
// the only failure that aborts before work begins; every other error kind
// degrades to a partial result. A failure in one branch never cancels the
// other.
func (orchestrator *Orchestrator) Search(ctx context.Context, params models.SearchParams) (*SearchResponse, error) {
	if err := params.Validate(time.Now()); err != nil {
		return nil, err
	}

	var directResult LegResult
	var viaHub *models.ViaHubBreakdown
	var viaHubErrors []models.ProviderError

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		directReq := provider.SearchRequest{
			Origin:        params.Origin,
			Destination:   params.Destination,
			DepartureDate: params.DepartureDate,
			ReturnDate:    params.ReturnDate,
			Passengers:    params.Passengers,
			CabinClass:    params.CabinClass,
			Currency:      "EUR",
		}
		directResult = orchestrator.legSearch.SearchLeg(groupCtx, directReq, params.RatePolicy, params.AirlineWhitelist)
		return nil
	})
	group.Go(func() error {
		if !orchestrator.configuration.ShowViaHubOption {
			return nil
		}
		viaHub, viaHubErrors = orchestrator.composer.Compose(groupCtx, params)
		return nil
	})
	// Branches recover internally, the join never fails
	_ = group.Wait()

	// Degraded estimate path: only when the live via-hub search found nothing
	// on either leg and a direct reference fare exists
	if viaHub == nil && directResult.Cheapest != nil && orchestrator.configuration.ShowViaHubOption {
		if synthetic := orchestrator.composer.Synthesize(params, *directResult.Cheapest); synthetic != nil {
			orchestrator.logger.Infof("Using synthetic via-hub estimate for %s-%s", params.Origin, params.Destination)
			viaHub = synthetic
		}
	}

	riskFlags := orchestrator.riskFlags(viaHub)
	arbitrage := Evaluate(directResult.Cheapest, viaHub, orchestrator.configuration.MinSavingsPercent, riskFlags)

	response := &SearchResponse{
		Direct:    directResult.Cheapest,
		ViaHub:    viaHub,
		Arbitrage: arbitrage,
		Providers: orchestrator.providerNames,
		Errors:    append(append([]models.ProviderError{}, directResult.Errors...), viaHubErrors...),
		Warnings:  directResult.Warnings,
		Timestamp: time.Now(),
	}
	return response, nil
}

// riskFlags derives the hard risk flags for the evaluator from the composed
// breakdown and the hub configuration.
func (orchestrator *Orchestrator) riskFlags(viaHub *models.ViaHubBreakdown) []string {
	if viaHub == nil {
		return nil
	}

	flags := []string{FlagSeparateTickets}
	if orchestrator.configuration.HubVisaRequired {
		flags = append(flags, FlagVisaRequired)
	}
	if viaHub.Outbound.Itinerary.Provider == "estimate" {
		flags = append(flags, FlagEstimatedPrice)
		return flags
	}

	// Connection buffer check only makes sense for live, time-stamped legs
	connection := viaHub.Inbound.Itinerary.DepartureTime.Sub(viaHub.Outbound.Itinerary.ArrivalTime)
	if connection < time.Duration(orchestrator.configuration.RiskBufferMinutes)*time.Minute {
		flags = append(flags, FlagShortConnection)
	}

	return flags
}
