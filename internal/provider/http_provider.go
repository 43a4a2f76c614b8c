package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"flight-arbitrage-api/internal/config"
	"flight-arbitrage-api/internal/logger"
	"flight-arbitrage-api/internal/models"
)

// HTTPProvider implements FlightProvider for HTTP-based flight search APIs.
// Each configured source has its own URL pattern and payload shape; the
// mapping into the common Itinerary record is fully contained here.
type HTTPProvider struct {
	configuration config.FlightProvider
	logger        *logger.Logger
	httpClient    *http.Client
}

// NewHTTPProvider creates a new HTTP flight provider
func NewHTTPProvider(configuration config.FlightProvider, logger *logger.Logger) *HTTPProvider {
	timeout := configuration.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		configuration: configuration,
		logger:        logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the provider name
func (provider *HTTPProvider) Name() string {
	return provider.configuration.Name
}

// Enabled returns whether the provider is enabled
func (provider *HTTPProvider) Enabled() bool {
	return provider.configuration.Enabled
}

// Priority returns the provider priority
func (provider *HTTPProvider) Priority() int {
	return provider.configuration.Priority
}

// Search queries the provider and maps its response into Itinerary records.
// Zero matches is a success with an empty list; transport failures, non-2xx
// statuses and malformed payloads are returned as errors.
func (provider *HTTPProvider) Search(ctx context.Context, req SearchRequest) ([]models.Itinerary, error) {
	reqURL, err := provider.buildURL(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	attempts := provider.configuration.RetryCount + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(provider.configuration.RetryDelay):
			}
		}
		itineraries, err := provider.doSearch(ctx, reqURL)
		if err == nil {
			return itineraries, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (provider *HTTPProvider) doSearch(ctx context.Context, reqURL string) ([]models.Itinerary, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if provider.configuration.APIKey != "" {
		request.Header.Set("X-Api-Key", provider.configuration.APIKey)
	}

	response, err := provider.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("provider returned status %d", response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return provider.parseResponse(body)
}

// buildURL constructs the URL for the provider based on its configuration
func (provider *HTTPProvider) buildURL(req SearchRequest) (string, error) {
	u, err := url.Parse(provider.configuration.BaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse provider base url: %w", err)
	}

	q := u.Query()
	departDate := req.DepartureDate.Format("2006-01-02")

	// Handle different provider URL patterns
	switch provider.configuration.Name {
	case "aerodata":
		// AeroData format: ?from=ORY&to=EVN&date=2026-09-01&pax=1&class=Y&cur=EUR
		q.Set("from", strings.ToUpper(req.Origin))
		q.Set("to", strings.ToUpper(req.Destination))
		q.Set("date", departDate)
		q.Set("pax", strconv.Itoa(req.Passengers))
		q.Set("class", aerodataCabinCode(req.CabinClass))
		q.Set("cur", req.Currency)
	case "skyscan-lite":
		// Skyscan Lite format: ?origin=ORY&destination=EVN&departure_at=2026-09-01&adults=1&cabin=economy&currency=eur&sorting=price
		q.Set("origin", strings.ToUpper(req.Origin))
		q.Set("destination", strings.ToUpper(req.Destination))
		q.Set("departure_at", departDate)
		q.Set("adults", strconv.Itoa(req.Passengers))
		q.Set("cabin", strings.ToLower(req.CabinClass))
		q.Set("currency", strings.ToLower(req.Currency))
		q.Set("sorting", "price")
	default:
		// Generic format: standard query parameter names
		q.Set("origin", strings.ToUpper(req.Origin))
		q.Set("destination", strings.ToUpper(req.Destination))
		q.Set("departure_date", departDate)
		q.Set("passengers", strconv.Itoa(req.Passengers))
		q.Set("cabin_class", req.CabinClass)
		q.Set("currency", req.Currency)
	}
	if req.ReturnDate != nil {
		q.Set("return_date", req.ReturnDate.Format("2006-01-02"))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// itineraryDTO is the common wire shape the supported providers converge on
type itineraryDTO struct {
	ID          string  `json:"id"`
	AirlineCode string  `json:"airline_code"`
	AirlineName string  `json:"airline_name"`
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	DepartureAt string  `json:"departure_at"`
	ArrivalAt   string  `json:"arrival_at"`
	Duration    int     `json:"duration_minutes"`
	Stops       int     `json:"stops"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	CabinClass  string  `json:"cabin_class"`
}

// parseResponse parses the JSON response from the provider
func (provider *HTTPProvider) parseResponse(body []byte) ([]models.Itinerary, error) {
	switch provider.configuration.Name {
	case "aerodata":
		// AeroData wraps results in a data envelope
		var payload struct {
			Data []itineraryDTO `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("failed to parse aerodata response: %w", err)
		}
		return provider.mapItineraries(payload.Data), nil
	case "skyscan-lite":
		// Skyscan Lite returns results under a flights key
		var payload struct {
			Flights []itineraryDTO `json:"flights"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("failed to parse skyscan-lite response: %w", err)
		}
		return provider.mapItineraries(payload.Flights), nil
	default:
		// Generic providers return a bare array
		var payload []itineraryDTO
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("failed to parse provider response: %w", err)
		}
		return provider.mapItineraries(payload), nil
	}
}

// mapItineraries converts provider DTOs into the common Itinerary shape,
// dropping records that do not satisfy the model invariants.
func (provider *HTTPProvider) mapItineraries(dtos []itineraryDTO) []models.Itinerary {
	itineraries := make([]models.Itinerary, 0, len(dtos))
	for _, dto := range dtos {
		if dto.Price <= 0 {
			continue
		}
		departure, ok := parseProviderTime(dto.DepartureAt)
		if !ok {
			continue
		}
		arrival, hasArrival := parseProviderTime(dto.ArrivalAt)
		duration := dto.Duration
		if !hasArrival && duration > 0 {
			arrival = departure.Add(time.Duration(duration) * time.Minute)
			hasArrival = true
		}
		if !hasArrival {
			continue
		}
		if duration <= 0 {
			duration = int(arrival.Sub(departure).Minutes())
		}

		itinerary := models.Itinerary{
			ID:              dto.ID,
			Provider:        provider.configuration.Name,
			Airline:         models.Airline{Code: strings.ToUpper(dto.AirlineCode), Name: dto.AirlineName},
			Origin:          strings.ToUpper(dto.Origin),
			Destination:     strings.ToUpper(dto.Destination),
			DepartureTime:   departure,
			ArrivalTime:     arrival,
			DurationMinutes: duration,
			Stops:           dto.Stops,
			CabinClass:      normalizeCabinClass(dto.CabinClass),
			Price:           models.Price{Amount: dto.Price, Currency: strings.ToUpper(dto.Currency)},
		}
		if !itinerary.Valid() {
			provider.logger.Debugf("Dropping invalid itinerary %s from %s", dto.ID, provider.configuration.Name)
			continue
		}
		itineraries = append(itineraries, itinerary)
	}
	return itineraries
}

// parseProviderTime accepts the timestamp layouts seen across providers
func parseProviderTime(value string) (time.Time, bool) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, false
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

// aerodataCabinCode maps the common cabin enum to AeroData's one-letter codes
func aerodataCabinCode(cabinClass string) string {
	switch cabinClass {
	case models.CabinPremiumEconomy:
		return "W"
	case models.CabinBusiness:
		return "C"
	case models.CabinFirst:
		return "F"
	default:
		return "Y"
	}
}

// normalizeCabinClass maps provider cabin encodings back to the common enum
func normalizeCabinClass(value string) string {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "Y", "ECONOMY":
		return models.CabinEconomy
	case "W", "PREMIUM_ECONOMY", "PREMIUM ECONOMY":
		return models.CabinPremiumEconomy
	case "C", "J", "BUSINESS":
		return models.CabinBusiness
	case "F", "FIRST":
		return models.CabinFirst
	default:
		return models.CabinEconomy
	}
}
