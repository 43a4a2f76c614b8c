package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"flight-arbitrage-api/internal/config"
	"flight-arbitrage-api/internal/models"
	"flight-arbitrage-api/internal/provider"
	"flight-arbitrage-api/internal/testutils"
)

func newComposer(cfg *config.Config, providers ...provider.FlightProvider) *ViaHubComposer {
	return NewViaHubComposer(cfg, testutils.MockLogger(), newLegSearch(cfg, providers...))
}

func searchParams() models.SearchParams {
	return models.SearchParams{
		Origin:        "ORY",
		Destination:   "DEL",
		DepartureDate: testutils.Departure(),
		Passengers:    1,
		CabinClass:    models.CabinEconomy,
		RatePolicy:    models.PolicyCustom,
	}
}

func hasWarningContaining(warnings []string, substring string) bool {
	for _, warning := range warnings {
		if strings.Contains(warning, substring) {
			return true
		}
	}
	return false
}

func TestViaHubComposer_ComposesBothLegs(t *testing.T) {
	departure := testutils.Departure()
	p := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{
		"ORY-EVN": {testutils.Itinerary("out", "aerodata", "ORY", "EVN", 120, "EUR", 0, departure)},
		"EVN-DEL": {testutils.Itinerary("in", "aerodata", "EVN", "DEL", 60455, "AMD", 0, departure.Add(8*time.Hour))},
	}}

	composer := newComposer(testutils.MockConfig(), p)
	breakdown, providerErrors := composer.Compose(context.Background(), searchParams())

	if breakdown == nil {
		t.Fatal("Compose() = nil, want a breakdown")
	}
	if len(providerErrors) != 0 {
		t.Errorf("Compose() errors = %v, want none", providerErrors)
	}
	if breakdown.Outbound.PriceEUR != 120 {
		t.Errorf("Outbound.PriceEUR = %v, want 120", breakdown.Outbound.PriceEUR)
	}
	// 60455 AMD at the 260 custom rate is 232.52 EUR
	if breakdown.Inbound.PriceEUR != 232.52 {
		t.Errorf("Inbound.PriceEUR = %v, want 232.52", breakdown.Inbound.PriceEUR)
	}
	if breakdown.TotalEUR != 352.52 {
		t.Errorf("TotalEUR = %v, want 352.52", breakdown.TotalEUR)
	}
	if breakdown.TotalLocal == nil || *breakdown.TotalLocal != 60455 {
		t.Errorf("TotalLocal = %v, want 60455", breakdown.TotalLocal)
	}
	if !hasWarningContaining(breakdown.Warnings, "separately ticketed") {
		t.Errorf("Warnings = %v, want the separate-ticketing advisory", breakdown.Warnings)
	}
	if !hasWarningContaining(breakdown.Warnings, "120 minutes") {
		t.Errorf("Warnings = %v, want the connection buffer advisory", breakdown.Warnings)
	}
}

func TestViaHubComposer_MissingLegMeansInfeasible(t *testing.T) {
	departure := testutils.Departure()
	// Outbound exists, nothing serves the hub→destination leg
	p := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{
		"ORY-EVN": {testutils.Itinerary("out", "aerodata", "ORY", "EVN", 120, "EUR", 0, departure)},
	}}

	composer := newComposer(testutils.MockConfig(), p)
	breakdown, providerErrors := composer.Compose(context.Background(), searchParams())

	if breakdown != nil {
		t.Errorf("Compose() = %+v, want nil when a leg has no results", breakdown)
	}
	if len(providerErrors) != 0 {
		t.Errorf("Compose() errors = %v, want none (empty leg is not an error)", providerErrors)
	}
}

func TestViaHubComposer_SurfacesErrorsWhenInfeasible(t *testing.T) {
	broken := &mockProvider{name: "aerodata", err: errors.New("upstream 503")}

	composer := newComposer(testutils.MockConfig(), broken)
	breakdown, providerErrors := composer.Compose(context.Background(), searchParams())

	if breakdown != nil {
		t.Errorf("Compose() = %+v, want nil", breakdown)
	}
	// Both legs fan out to the same broken provider
	if len(providerErrors) != 2 {
		t.Errorf("Compose() surfaced %d errors, want 2", len(providerErrors))
	}
}

func TestViaHubComposer_ConversionScopeDrivesCurrencyHints(t *testing.T) {
	departure := testutils.Departure()
	routes := map[string][]models.Itinerary{
		"ORY-EVN": {testutils.Itinerary("out", "aerodata", "ORY", "EVN", 120, "EUR", 0, departure)},
		"EVN-DEL": {testutils.Itinerary("in", "aerodata", "EVN", "DEL", 60455, "AMD", 0, departure.Add(8*time.Hour))},
	}

	tests := []struct {
		scope        string
		wantOutbound string
	}{
		{config.ScopeHubOnly, "EUR"},
		{config.ScopeAllTouching, "AMD"},
	}
	for _, tt := range tests {
		p := &mockProvider{name: "aerodata", routes: routes}
		cfg := testutils.MockConfig()
		cfg.ConversionScope = tt.scope

		newComposer(cfg, p).Compose(context.Background(), searchParams())

		outReq, ok := p.lastRequestFor("ORY", "EVN")
		if !ok {
			t.Fatalf("scope %s: no outbound request recorded", tt.scope)
		}
		if outReq.Currency != tt.wantOutbound {
			t.Errorf("scope %s: outbound currency hint = %v, want %v", tt.scope, outReq.Currency, tt.wantOutbound)
		}
		inReq, ok := p.lastRequestFor("EVN", "DEL")
		if !ok {
			t.Fatalf("scope %s: no inbound request recorded", tt.scope)
		}
		if inReq.Currency != "AMD" {
			t.Errorf("scope %s: inbound currency hint = %v, want AMD", tt.scope, inReq.Currency)
		}
	}
}

func TestViaHubComposer_VisaWarning(t *testing.T) {
	departure := testutils.Departure()
	p := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{
		"ORY-EVN": {testutils.Itinerary("out", "aerodata", "ORY", "EVN", 120, "EUR", 0, departure)},
		"EVN-DEL": {testutils.Itinerary("in", "aerodata", "EVN", "DEL", 200, "EUR", 0, departure.Add(8*time.Hour))},
	}}
	cfg := testutils.MockConfig()
	cfg.HubVisaRequired = true

	breakdown, _ := newComposer(cfg, p).Compose(context.Background(), searchParams())

	if breakdown == nil {
		t.Fatal("Compose() = nil, want a breakdown")
	}
	if !hasWarningContaining(breakdown.Warnings, "visa") {
		t.Errorf("Warnings = %v, want a visa advisory", breakdown.Warnings)
	}
}

func TestViaHubComposer_SynthesizeDisabledByDefault(t *testing.T) {
	cfg := testutils.MockConfig()
	composer := newComposer(cfg)

	direct := models.LegQuote{Origin: "ORY", Destination: "DEL", PriceEUR: 354}
	if breakdown := composer.Synthesize(searchParams(), direct); breakdown != nil {
		t.Errorf("Synthesize() = %+v, want nil when the split ratio is unset", breakdown)
	}
}

func TestViaHubComposer_SynthesizeSplitsDirectFare(t *testing.T) {
	cfg := testutils.MockConfig()
	cfg.SyntheticSplitRatio = 0.4
	composer := newComposer(cfg)

	direct := models.LegQuote{Origin: "ORY", Destination: "DEL", PriceEUR: 354}
	breakdown := composer.Synthesize(searchParams(), direct)

	if breakdown == nil {
		t.Fatal("Synthesize() = nil, want an estimated breakdown")
	}
	if breakdown.Outbound.PriceEUR != 141.6 {
		t.Errorf("Outbound.PriceEUR = %v, want 141.6", breakdown.Outbound.PriceEUR)
	}
	if breakdown.Inbound.PriceEUR != 212.4 {
		t.Errorf("Inbound.PriceEUR = %v, want 212.4", breakdown.Inbound.PriceEUR)
	}
	if breakdown.TotalEUR != 354 {
		t.Errorf("TotalEUR = %v, want the original direct fare 354", breakdown.TotalEUR)
	}
	if breakdown.Outbound.Itinerary.Provider != "estimate" {
		t.Errorf("Outbound provider = %v, want estimate", breakdown.Outbound.Itinerary.Provider)
	}
	if !hasWarningContaining(breakdown.Warnings, "estimated") {
		t.Errorf("Warnings = %v, want the estimate advisory", breakdown.Warnings)
	}
}
