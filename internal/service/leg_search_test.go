package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"flight-arbitrage-api/internal/config"
	"flight-arbitrage-api/internal/models"
	"flight-arbitrage-api/internal/provider"
	"flight-arbitrage-api/internal/rates"
	"flight-arbitrage-api/internal/testutils"
)

// mockProvider serves canned itineraries keyed by "ORIGIN-DESTINATION" and
// records every request it receives.
type mockProvider struct {
	name   string
	routes map[string][]models.Itinerary
	err    error

	mu       sync.Mutex
	requests []provider.SearchRequest
}

func (m *mockProvider) Name() string  { return m.name }
func (m *mockProvider) Enabled() bool { return true }
func (m *mockProvider) Priority() int { return 1 }

func (m *mockProvider) Search(_ context.Context, req provider.SearchRequest) ([]models.Itinerary, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	key := req.Origin + "-" + req.Destination
	return m.routes[key], nil
}

func (m *mockProvider) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockProvider) lastRequestFor(origin, destination string) (provider.SearchRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.requests) - 1; i >= 0; i-- {
		if m.requests[i].Origin == origin && m.requests[i].Destination == destination {
			return m.requests[i], true
		}
	}
	return provider.SearchRequest{}, false
}

func newLegSearch(cfg *config.Config, providers ...provider.FlightProvider) *LegSearch {
	logger := testutils.MockLogger()
	return NewLegSearch(cfg, logger, providers, rates.NewResolver(cfg, logger))
}

func legRequest(origin, destination string) provider.SearchRequest {
	return provider.SearchRequest{
		Origin:        origin,
		Destination:   destination,
		DepartureDate: testutils.Departure(),
		Passengers:    1,
		CabinClass:    models.CabinEconomy,
		Currency:      "EUR",
	}
}

func TestLegSearch_CheapestAcrossProviders(t *testing.T) {
	departure := testutils.Departure()
	first := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{
		"ORY-EVN": {
			testutils.Itinerary("a1", "aerodata", "ORY", "EVN", 140, "EUR", 0, departure),
			testutils.Itinerary("a2", "aerodata", "ORY", "EVN", 120, "EUR", 1, departure.Add(time.Hour)),
		},
	}}
	second := &mockProvider{name: "skyscan-lite", routes: map[string][]models.Itinerary{
		"ORY-EVN": {
			testutils.Itinerary("s1", "skyscan-lite", "ORY", "EVN", 131.5, "EUR", 0, departure),
		},
	}}

	legSearch := newLegSearch(testutils.MockConfig(), first, second)
	result := legSearch.SearchLeg(context.Background(), legRequest("ORY", "EVN"), models.PolicyCustom, nil)

	if result.Cheapest == nil {
		t.Fatal("SearchLeg() Cheapest = nil, want a quote")
	}
	if result.Cheapest.Itinerary.ID != "a2" {
		t.Errorf("SearchLeg() cheapest = %v, want a2", result.Cheapest.Itinerary.ID)
	}
	if result.Cheapest.PriceEUR != 120 {
		t.Errorf("SearchLeg() PriceEUR = %v, want 120", result.Cheapest.PriceEUR)
	}
	if len(result.All) != 3 {
		t.Errorf("SearchLeg() merged %d itineraries, want 3", len(result.All))
	}
	if len(result.Errors) != 0 {
		t.Errorf("SearchLeg() errors = %v, want none", result.Errors)
	}
}

func TestLegSearch_TieBreakFewerStops(t *testing.T) {
	departure := testutils.Departure()
	oneStop := testutils.Itinerary("one-stop", "aerodata", "ORY", "EVN", 100, "EUR", 1, departure)
	nonStop := testutils.Itinerary("non-stop", "aerodata", "ORY", "EVN", 100, "EUR", 0, departure.Add(2*time.Hour))

	// Present the worse option first so order cannot decide
	p := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{
		"ORY-EVN": {oneStop, nonStop},
	}}

	legSearch := newLegSearch(testutils.MockConfig(), p)
	result := legSearch.SearchLeg(context.Background(), legRequest("ORY", "EVN"), models.PolicyCustom, nil)

	if result.Cheapest == nil || result.Cheapest.Itinerary.ID != "non-stop" {
		t.Fatalf("SearchLeg() picked %+v, want non-stop on equal price", result.Cheapest)
	}
}

func TestLegSearch_TieBreakEarlierDeparture(t *testing.T) {
	departure := testutils.Departure()
	later := testutils.Itinerary("later", "aerodata", "ORY", "EVN", 100, "EUR", 0, departure.Add(3*time.Hour))
	earlier := testutils.Itinerary("earlier", "aerodata", "ORY", "EVN", 100, "EUR", 0, departure)

	p := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{
		"ORY-EVN": {later, earlier},
	}}

	legSearch := newLegSearch(testutils.MockConfig(), p)
	result := legSearch.SearchLeg(context.Background(), legRequest("ORY", "EVN"), models.PolicyCustom, nil)

	if result.Cheapest == nil || result.Cheapest.Itinerary.ID != "earlier" {
		t.Fatalf("SearchLeg() picked %+v, want earlier departure on equal price and stops", result.Cheapest)
	}
}

func TestLegSearch_SelectionIndependentOfProviderOrder(t *testing.T) {
	departure := testutils.Departure()
	cheap := testutils.Itinerary("cheap", "aerodata", "ORY", "EVN", 99, "EUR", 0, departure)
	pricey := testutils.Itinerary("pricey", "skyscan-lite", "ORY", "EVN", 150, "EUR", 0, departure)

	a := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{"ORY-EVN": {cheap}}}
	b := &mockProvider{name: "skyscan-lite", routes: map[string][]models.Itinerary{"ORY-EVN": {pricey}}}

	forward := newLegSearch(testutils.MockConfig(), a, b).
		SearchLeg(context.Background(), legRequest("ORY", "EVN"), models.PolicyCustom, nil)
	reversed := newLegSearch(testutils.MockConfig(), b, a).
		SearchLeg(context.Background(), legRequest("ORY", "EVN"), models.PolicyCustom, nil)

	if forward.Cheapest == nil || reversed.Cheapest == nil {
		t.Fatal("SearchLeg() returned nil cheapest")
	}
	if forward.Cheapest.Itinerary.ID != reversed.Cheapest.Itinerary.ID {
		t.Errorf("selection depends on provider order: %v vs %v",
			forward.Cheapest.Itinerary.ID, reversed.Cheapest.Itinerary.ID)
	}
}

func TestLegSearch_PartialProviderFailure(t *testing.T) {
	departure := testutils.Departure()
	healthy := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{
		"ORY-EVN": {testutils.Itinerary("ok", "aerodata", "ORY", "EVN", 120, "EUR", 0, departure)},
	}}
	broken := &mockProvider{name: "skyscan-lite", err: errors.New("connection reset")}

	legSearch := newLegSearch(testutils.MockConfig(), healthy, broken)
	result := legSearch.SearchLeg(context.Background(), legRequest("ORY", "EVN"), models.PolicyCustom, nil)

	if result.Cheapest == nil || result.Cheapest.Itinerary.ID != "ok" {
		t.Fatalf("SearchLeg() cheapest = %+v, want the healthy provider's itinerary", result.Cheapest)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("SearchLeg() recorded %d errors, want exactly 1", len(result.Errors))
	}
	if result.Errors[0].Provider != "skyscan-lite" {
		t.Errorf("ProviderError.Provider = %v, want skyscan-lite", result.Errors[0].Provider)
	}
	if result.Errors[0].Segment != "ORY-EVN" {
		t.Errorf("ProviderError.Segment = %v, want ORY-EVN", result.Errors[0].Segment)
	}
}

func TestLegSearch_TimeoutIsAProviderError(t *testing.T) {
	slow := &mockProvider{name: "aerodata", err: context.DeadlineExceeded}

	legSearch := newLegSearch(testutils.MockConfig(), slow)
	result := legSearch.SearchLeg(context.Background(), legRequest("ORY", "EVN"), models.PolicyCustom, nil)

	if result.Cheapest != nil {
		t.Errorf("SearchLeg() Cheapest = %+v, want nil", result.Cheapest)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("SearchLeg() recorded %d errors, want 1", len(result.Errors))
	}
}

func TestLegSearch_NoResultsIsNotAnError(t *testing.T) {
	empty := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{}}

	legSearch := newLegSearch(testutils.MockConfig(), empty)
	result := legSearch.SearchLeg(context.Background(), legRequest("ORY", "EVN"), models.PolicyCustom, nil)

	if result.Cheapest != nil {
		t.Errorf("SearchLeg() Cheapest = %+v, want nil", result.Cheapest)
	}
	if len(result.Errors) != 0 {
		t.Errorf("SearchLeg() errors = %v, want none", result.Errors)
	}
}

func TestLegSearch_WhitelistKeepsMatchingCarrier(t *testing.T) {
	departure := testutils.Departure()
	af := testutils.Itinerary("af", "aerodata", "ORY", "EVN", 200, "EUR", 0, departure)
	af.Airline = models.Airline{Code: "AF", Name: "Air France"}
	wizz := testutils.Itinerary("wizz", "aerodata", "ORY", "EVN", 90, "EUR", 0, departure)
	wizz.Airline = models.Airline{Code: "W6", Name: "Wizz Air"}

	p := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{"ORY-EVN": {af, wizz}}}

	legSearch := newLegSearch(testutils.MockConfig(), p)
	result := legSearch.SearchLeg(context.Background(), legRequest("ORY", "EVN"), models.PolicyCustom, []string{"AF"})

	if result.Cheapest == nil || result.Cheapest.Itinerary.ID != "af" {
		t.Fatalf("SearchLeg() cheapest = %+v, want the whitelisted carrier despite higher price", result.Cheapest)
	}
}

func TestLegSearch_WhitelistEmptiesResults(t *testing.T) {
	departure := testutils.Departure()
	wizz := testutils.Itinerary("wizz", "aerodata", "ORY", "EVN", 90, "EUR", 0, departure)
	wizz.Airline = models.Airline{Code: "W6", Name: "Wizz Air"}

	p := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{"ORY-EVN": {wizz}}}

	legSearch := newLegSearch(testutils.MockConfig(), p)
	result := legSearch.SearchLeg(context.Background(), legRequest("ORY", "EVN"), models.PolicyCustom, []string{"AF", "LH"})

	if result.Cheapest != nil {
		t.Errorf("SearchLeg() Cheapest = %+v, want nil when whitelist excludes everything", result.Cheapest)
	}
	if len(result.Warnings) == 0 {
		t.Errorf("SearchLeg() warnings empty, want a whitelist warning")
	}
	if len(result.Errors) != 0 {
		t.Errorf("SearchLeg() errors = %v, want none (whitelist exhaustion is not an error)", result.Errors)
	}
}

func TestLegSearch_LocalCurrencyNormalization(t *testing.T) {
	departure := testutils.Departure()
	local := testutils.Itinerary("local", "static-table", "EVN", "DEL", 60455, "AMD", 0, departure)
	euro := testutils.Itinerary("euro", "aerodata", "EVN", "DEL", 233, "EUR", 0, departure)

	p := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{"EVN-DEL": {local, euro}}}

	// Custom policy resolves to the configured 260 units/EUR without network I/O
	legSearch := newLegSearch(testutils.MockConfig(), p)
	result := legSearch.SearchLeg(context.Background(), legRequest("EVN", "DEL"), models.PolicyCustom, nil)

	if result.Cheapest == nil {
		t.Fatal("SearchLeg() Cheapest = nil, want the converted local quote")
	}
	// 60455 / 260 = 232.519... rounds to 232.52, beating 233 EUR
	if result.Cheapest.Itinerary.ID != "local" {
		t.Fatalf("SearchLeg() cheapest = %v, want local", result.Cheapest.Itinerary.ID)
	}
	if result.Cheapest.PriceEUR != 232.52 {
		t.Errorf("SearchLeg() PriceEUR = %v, want 232.52", result.Cheapest.PriceEUR)
	}
	if result.Cheapest.PriceLocal == nil || *result.Cheapest.PriceLocal != 60455 {
		t.Errorf("SearchLeg() PriceLocal = %v, want 60455", result.Cheapest.PriceLocal)
	}
	if result.Cheapest.Rate == nil || result.Cheapest.Rate.Value != 260 {
		t.Errorf("SearchLeg() Rate = %+v, want the custom 260 rate", result.Cheapest.Rate)
	}
}

func TestLegSearch_UnsupportedCurrencySkipped(t *testing.T) {
	departure := testutils.Departure()
	usd := testutils.Itinerary("usd", "aerodata", "ORY", "EVN", 95, "USD", 0, departure)
	eur := testutils.Itinerary("eur", "aerodata", "ORY", "EVN", 140, "EUR", 0, departure)

	p := &mockProvider{name: "aerodata", routes: map[string][]models.Itinerary{"ORY-EVN": {usd, eur}}}

	legSearch := newLegSearch(testutils.MockConfig(), p)
	result := legSearch.SearchLeg(context.Background(), legRequest("ORY", "EVN"), models.PolicyCustom, nil)

	if result.Cheapest == nil || result.Cheapest.Itinerary.ID != "eur" {
		t.Fatalf("SearchLeg() cheapest = %+v, want the EUR quote", result.Cheapest)
	}
	if len(result.Warnings) == 0 {
		t.Errorf("SearchLeg() warnings empty, want an unsupported-currency warning")
	}
}

func TestLegSearch_ManyProvidersBoundedConcurrency(t *testing.T) {
	departure := testutils.Departure()
	cfg := testutils.MockConfig()
	cfg.MaxConcurrentRequests = 2

	providers := make([]provider.FlightProvider, 0, 8)
	for i := 0; i < 8; i++ {
		providers = append(providers, &mockProvider{
			name: fmt.Sprintf("provider-%d", i),
			routes: map[string][]models.Itinerary{
				"ORY-EVN": {testutils.Itinerary(fmt.Sprintf("it-%d", i), fmt.Sprintf("provider-%d", i), "ORY", "EVN", float64(100+i), "EUR", 0, departure)},
			},
		})
	}

	legSearch := newLegSearch(cfg, providers...)
	result := legSearch.SearchLeg(context.Background(), legRequest("ORY", "EVN"), models.PolicyCustom, nil)

	if result.Cheapest == nil || result.Cheapest.PriceEUR != 100 {
		t.Fatalf("SearchLeg() cheapest = %+v, want the 100 EUR quote", result.Cheapest)
	}
	if len(result.All) != 8 {
		t.Errorf("SearchLeg() merged %d itineraries, want 8", len(result.All))
	}
}
