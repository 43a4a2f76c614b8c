package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"flight-arbitrage-api/internal/config"
	"flight-arbitrage-api/internal/logger"
	"flight-arbitrage-api/internal/middleware"
	"flight-arbitrage-api/internal/models"
	"flight-arbitrage-api/internal/provider"
	"flight-arbitrage-api/internal/ratelimit"
	"flight-arbitrage-api/internal/rates"
	"flight-arbitrage-api/internal/service"
)

// HandlerConfig wires the handlers' collaborators
type HandlerConfig struct {
	Configuration *config.Config
	Logger        *logger.Logger
	Orchestrator  *service.Orchestrator
	Resolver      *rates.Resolver
	Providers     []provider.FlightProvider
	RateLimiter   *ratelimit.Limiter
}

// Handlers contains all HTTP handlers
type Handlers struct {
	configuration *config.Config
	logger        *logger.Logger
	orchestrator  *service.Orchestrator
	resolver      *rates.Resolver
	providers     []provider.FlightProvider
	rateLimiter   *ratelimit.Limiter
	startTime     time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(handlerConfig HandlerConfig) *Handlers {
	return &Handlers{
		configuration: handlerConfig.Configuration,
		logger:        handlerConfig.Logger,
		orchestrator:  handlerConfig.Orchestrator,
		resolver:      handlerConfig.Resolver,
		providers:     handlerConfig.Providers,
		rateLimiter:   handlerConfig.RateLimiter,
		startTime:     time.Now(),
	}
}

// errorResponse is the JSON shape of every error reply
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SetupRoutes configures all the routes using Gin
func (handlers *Handlers) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.RequestLogger(handlers.logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestID())
	router.Use(handlers.corsMiddleware())

	if handlers.rateLimiter != nil {
		router.Use(handlers.rateLimitMiddleware())
	}

	router.GET("/health", handlers.HealthCheck)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/arbitrage/search", handlers.SearchArbitrage)
		apiV1.GET("/rates/:policy", handlers.GetRate)
		apiV1.GET("/providers", handlers.GetProviders)
	}

	return router
}

// HealthCheck reports service status, provider inventory and rate freshness
func (handlers *Handlers) HealthCheck(context *gin.Context) {
	rate := handlers.resolver.Resolve(context.Request.Context(), models.PolicyOfficial)

	context.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now(),
		"uptime":     time.Since(handlers.startTime).String(),
		"hub":        handlers.configuration.HubAirport,
		"providers":  len(handlers.providers),
		"rate_fresh": rate.Fresh(time.Now()),
	})
}

// searchQuery is the query-string binding for the arbitrage search endpoint
type searchQuery struct {
	Origin        string `form:"origin" binding:"required"`
	Destination   string `form:"destination" binding:"required"`
	DepartureDate string `form:"departure_date" binding:"required"`
	ReturnDate    string `form:"return_date"`
	Passengers    string `form:"passengers"`
	CabinClass    string `form:"cabin_class"`
	RatePolicy    string `form:"rate_policy"`
	Airlines      string `form:"airlines"`
}

// SearchArbitrage runs the direct-vs-via-hub comparison for one route.
// Validation failures reject with 400 before any upstream call; afterwards the
// response is always 200, carrying partial results and the provider error list
// so "nothing found" and "all providers failed" stay distinguishable.
func (handlers *Handlers) SearchArbitrage(context *gin.Context) {
	var query searchQuery
	if err := context.ShouldBindQuery(&query); err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	params, err := handlers.buildParams(query)
	if err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	response, err := handlers.orchestrator.Search(context.Request.Context(), params)
	if err != nil {
		var validationError *models.ValidationError
		if errors.As(err, &validationError) {
			handlers.writeErrorResponse(context, http.StatusBadRequest, "validation failed", validationError.Error())
			return
		}
		handlers.logger.Errorf("Arbitrage search failed: %v", err)
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "search failed", err.Error())
		return
	}

	status := "ok"
	if response.Direct == nil && response.ViaHub == nil {
		status = "no_results"
	}

	context.JSON(http.StatusOK, gin.H{
		"status": status,
		"result": response,
	})
}

// buildParams maps the raw query onto validated search parameters with the
// documented defaults filled in.
func (handlers *Handlers) buildParams(query searchQuery) (models.SearchParams, error) {
	params := models.SearchParams{
		Origin:      strings.ToUpper(strings.TrimSpace(query.Origin)),
		Destination: strings.ToUpper(strings.TrimSpace(query.Destination)),
		Passengers:  1,
		CabinClass:  models.CabinEconomy,
		RatePolicy:  models.PolicyOfficial,
	}

	departureDate, err := time.Parse("2006-01-02", query.DepartureDate)
	if err != nil {
		return params, &models.ValidationError{Field: "departure_date", Message: "must be formatted YYYY-MM-DD"}
	}
	params.DepartureDate = departureDate

	if query.ReturnDate != "" {
		returnDate, err := time.Parse("2006-01-02", query.ReturnDate)
		if err != nil {
			return params, &models.ValidationError{Field: "return_date", Message: "must be formatted YYYY-MM-DD"}
		}
		params.ReturnDate = &returnDate
	}

	if query.Passengers != "" {
		passengers, err := strconv.Atoi(query.Passengers)
		if err != nil {
			return params, &models.ValidationError{Field: "passengers", Message: "must be a number"}
		}
		params.Passengers = passengers
	}

	if query.CabinClass != "" {
		params.CabinClass = strings.ToUpper(strings.TrimSpace(query.CabinClass))
	}
	if query.RatePolicy != "" {
		params.RatePolicy = strings.ToLower(strings.TrimSpace(query.RatePolicy))
	}
	if query.Airlines != "" {
		for _, code := range strings.Split(query.Airlines, ",") {
			code = strings.ToUpper(strings.TrimSpace(code))
			if code != "" {
				params.AirlineWhitelist = append(params.AirlineWhitelist, code)
			}
		}
	}

	return params, nil
}

// GetRate resolves and returns the exchange rate for a policy
func (handlers *Handlers) GetRate(context *gin.Context) {
	policy := strings.ToLower(context.Param("policy"))
	if policy != models.PolicyOfficial && policy != models.PolicyCustom {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid policy", "policy must be official or custom")
		return
	}

	rate := handlers.resolver.Resolve(context.Request.Context(), policy)
	context.JSON(http.StatusOK, gin.H{
		"rate":     rate,
		"currency": handlers.configuration.HubCurrency,
		"fresh":    rate.Fresh(time.Now()),
	})
}

// providerStatus describes one configured provider
type providerStatus struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
}

// GetProviders returns the status of all configured providers
func (handlers *Handlers) GetProviders(context *gin.Context) {
	statuses := make([]providerStatus, 0, len(handlers.providers))
	for _, p := range handlers.providers {
		statuses = append(statuses, providerStatus{
			Name:     p.Name(),
			Enabled:  p.Enabled(),
			Priority: p.Priority(),
		})
	}
	context.JSON(http.StatusOK, gin.H{"providers": statuses})
}

// writeErrorResponse writes an error response using Gin context
func (handlers *Handlers) writeErrorResponse(context *gin.Context, statusCode int, errorMessage, errorDetails string) {
	context.JSON(statusCode, errorResponse{
		Error:   errorMessage,
		Message: errorDetails,
		Code:    statusCode,
	})
}

// corsMiddleware adds CORS headers using Gin middleware
func (handlers *Handlers) corsMiddleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		context.Header("Access-Control-Allow-Origin", "*")
		context.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		context.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if context.Request.Method == "OPTIONS" {
			context.AbortWithStatus(http.StatusOK)
			return
		}

		context.Next()
	}
}

// rateLimitMiddleware provides rate limiting using Gin middleware
func (handlers *Handlers) rateLimitMiddleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		clientIP := handlers.rateLimiter.GetClientIP(context.Request)

		if !handlers.rateLimiter.Allow(clientIP) {
			handlers.logger.Warnf("Rate limit exceeded for IP: %s", clientIP)
			context.Header("X-RateLimit-Limit", strconv.Itoa(handlers.rateLimiter.Configuration.RateLimitRequests))
			context.Header("X-RateLimit-Remaining", "0")
			context.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(handlers.rateLimiter.Configuration.RateLimitWindow).Unix(), 10))
			context.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			context.Abort()
			return
		}

		context.Next()
	}
}
