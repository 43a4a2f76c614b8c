package models

import (
	"fmt"
	"time"
)

// Rate policies selecting which EUR/local-currency rate applies to a conversion
const (
	PolicyOfficial = "official"
	PolicyCustom   = "custom"
)

// Cabin classes accepted by the search API
const (
	CabinEconomy        = "ECONOMY"
	CabinPremiumEconomy = "PREMIUM_ECONOMY"
	CabinBusiness       = "BUSINESS"
	CabinFirst          = "FIRST"
)

// Risk levels for an arbitrage comparison
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Price is a monetary amount in a single ISO-4217 currency
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Airline identifies the marketing carrier of an itinerary
type Airline struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Itinerary is one priced, bookable flight option as normalized by a provider
// adapter. Itineraries are created fresh per search call and never mutated.
type Itinerary struct {
	ID              string    `json:"id"`
	Provider        string    `json:"provider"`
	Airline         Airline   `json:"airline"`
	Origin          string    `json:"origin"`
	Destination     string    `json:"destination"`
	DepartureTime   time.Time `json:"departure_time"`
	ArrivalTime     time.Time `json:"arrival_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Stops           int       `json:"stops"`
	CabinClass      string    `json:"cabin_class"`
	Price           Price     `json:"price"`
}

// Valid reports whether the itinerary satisfies the model invariants:
// non-negative amount, 3-letter currency code and departure before arrival.
func (i Itinerary) Valid() bool {
	if i.Price.Amount < 0 {
		return false
	}
	if !isAlpha3(i.Price.Currency) {
		return false
	}
	if i.DepartureTime.IsZero() || i.ArrivalTime.IsZero() {
		return false
	}
	return i.DepartureTime.Before(i.ArrivalTime)
}

// rateFreshness is the age under which a resolved rate counts as fresh.
// Staleness never blocks use, it is only surfaced to the caller.
const rateFreshness = 24 * time.Hour

// ExchangeRate is a resolved conversion factor: units of local currency per 1 EUR.
type ExchangeRate struct {
	Value      float64   `json:"value"`
	Policy     string    `json:"policy"`
	Source     string    `json:"source"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Fresh reports whether the rate was resolved less than 24 hours before now.
func (r ExchangeRate) Fresh(now time.Time) bool {
	return now.Sub(r.ResolvedAt) < rateFreshness
}

// LegQuote is the chosen cheapest itinerary for one directional segment with its
// price normalized to EUR. PriceLocal and Rate are set only when a currency
// conversion was applied.
type LegQuote struct {
	Origin      string        `json:"origin"`
	Destination string        `json:"destination"`
	Itinerary   Itinerary     `json:"itinerary"`
	PriceEUR    float64       `json:"price_eur"`
	PriceLocal  *float64      `json:"price_local,omitempty"`
	Rate        *ExchangeRate `json:"rate,omitempty"`
}

// ViaHubBreakdown is the composed cost of the two-leg itinerary routed through
// the hub. TotalEUR is always present; TotalLocal only when at least one leg
// carried a local-currency price.
type ViaHubBreakdown struct {
	Outbound   LegQuote `json:"outbound"`
	Inbound    LegQuote `json:"inbound"`
	TotalEUR   float64  `json:"total_eur"`
	TotalLocal *float64 `json:"total_local,omitempty"`
	Warnings   []string `json:"warnings"`
}

// ArbitrageResult is the final comparison between the direct itinerary and the
// via-hub composition. Savings fields are nil whenever one side is missing so a
// missing branch can never masquerade as a zero-savings deal.
type ArbitrageResult struct {
	DirectPriceEUR *float64 `json:"direct_price_eur"`
	ViaHubPriceEUR *float64 `json:"via_hub_price_eur"`
	SavingsEUR     *float64 `json:"savings_eur"`
	SavingsPercent *float64 `json:"savings_percent"`
	IsDeal         bool     `json:"is_deal"`
	RiskLevel      string   `json:"risk_level"`
	RiskFlags      []string `json:"risk_flags,omitempty"`
}

// ProviderError records one data source failing or timing out. Provider errors
// are recovered locally and aggregated for visibility, never fatal.
type ProviderError struct {
	Provider string `json:"provider"`
	Segment  string `json:"segment"`
	Message  string `json:"message"`
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed on %s: %s", e.Provider, e.Segment, e.Message)
}

// ValidationError rejects malformed input before any external call is made.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// SearchParams are the validated inputs of one arbitrage search.
type SearchParams struct {
	Origin           string     `json:"origin"`
	Destination      string     `json:"destination"`
	DepartureDate    time.Time  `json:"departure_date"`
	ReturnDate       *time.Time `json:"return_date,omitempty"`
	Passengers       int        `json:"passengers"`
	CabinClass       string     `json:"cabin_class"`
	RatePolicy       string     `json:"rate_policy"`
	AirlineWhitelist []string   `json:"airline_whitelist,omitempty"`
}

// Validate checks the parameters against the input contract. It is the only
// check that aborts a search before work begins.
func (p SearchParams) Validate(now time.Time) error {
	if !isAlpha3(p.Origin) {
		return &ValidationError{Field: "origin", Message: "must be a 3-letter IATA code"}
	}
	if !isAlpha3(p.Destination) {
		return &ValidationError{Field: "destination", Message: "must be a 3-letter IATA code"}
	}
	if p.Origin == p.Destination {
		return &ValidationError{Field: "destination", Message: "must differ from origin"}
	}
	if p.DepartureDate.IsZero() {
		return &ValidationError{Field: "departure_date", Message: "is required"}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	departure := time.Date(p.DepartureDate.Year(), p.DepartureDate.Month(), p.DepartureDate.Day(), 0, 0, 0, 0, time.UTC)
	if departure.Before(today) {
		return &ValidationError{Field: "departure_date", Message: "must not be in the past"}
	}
	if p.ReturnDate != nil && p.ReturnDate.Before(p.DepartureDate) {
		return &ValidationError{Field: "return_date", Message: "must not be before departure_date"}
	}
	if p.Passengers < 1 || p.Passengers > 9 {
		return &ValidationError{Field: "passengers", Message: "must be between 1 and 9"}
	}
	switch p.CabinClass {
	case CabinEconomy, CabinPremiumEconomy, CabinBusiness, CabinFirst:
	default:
		return &ValidationError{Field: "cabin_class", Message: "must be one of ECONOMY, PREMIUM_ECONOMY, BUSINESS, FIRST"}
	}
	switch p.RatePolicy {
	case PolicyOfficial, PolicyCustom:
	default:
		return &ValidationError{Field: "rate_policy", Message: "must be official or custom"}
	}
	return nil
}

// isAlpha3 reports whether s is exactly three upper-case ASCII letters.
func isAlpha3(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
