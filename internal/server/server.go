// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/campaignwatch/campaign-watch/internal/config"
	"github.com/campaignwatch/campaign-watch/internal/delivery"
	"github.com/campaignwatch/campaign-watch/internal/evaluator"
	"github.com/campaignwatch/campaign-watch/internal/metrics"
	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/internal/scheduler"
	"github.com/campaignwatch/campaign-watch/internal/storage"
	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// HTTPServer exposes the read API, the push ingestion endpoint, and the
// Prometheus scrape endpoint.
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	scheduler      scheduler.Scheduler
	engine         *delivery.Engine
	evaluator      *evaluator.Evaluator
	metricsManager *metrics.Manager
	logger         *logrus.Logger
	startTime      time.Time
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	cfg *config.ServerConfig,
	store storage.Storage,
	sched scheduler.Scheduler,
	engine *delivery.Engine,
	eval *evaluator.Evaluator,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {

	server := &HTTPServer{
		config:         cfg,
		storage:        store,
		scheduler:      sched,
		engine:         engine,
		evaluator:      eval,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
		startTime:      time.Now(),
	}

	// Setup router
	server.setupRouter()

	// Create HTTP server
	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// Health check endpoint
	if s.config.EnableHealth {
		s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	}

	// Metrics endpoint
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.statusHandler).Methods("GET")

	// Trigger endpoints
	api.HandleFunc("/triggers", s.listTriggersHandler).Methods("GET")
	api.HandleFunc("/triggers/{id}", s.getTriggerHandler).Methods("GET")
	api.HandleFunc("/triggers/{id}/attempts", s.listTriggerAttemptsHandler).Methods("GET")

	// Configuration endpoints
	api.HandleFunc("/configs", s.listConfigsHandler).Methods("GET")
	api.HandleFunc("/configs/{id}", s.getConfigHandler).Methods("GET")

	// Push ingestion for campaign creation
	api.HandleFunc("/events/campaign-created", s.campaignCreatedHandler).Methods("POST")

	// Endpoint management
	api.HandleFunc("/endpoints/{id}/test", s.testEndpointHandler).Methods("POST")
	api.HandleFunc("/endpoints/{id}/reactivate", s.reactivateEndpointHandler).Methods("POST")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.metricsManager.StartCollector(30*time.Second, []metrics.HealthSource{
			{Name: "storage", Healthy: func() bool { return s.storage.Ping() == nil }},
			{Name: "scheduler", Healthy: s.scheduler.IsRunning},
			{Name: "delivery", Healthy: s.engine.IsRunning},
		})
	}

	// Create a channel to receive startup errors
	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithField("error", err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Give the server a moment to start and check for immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	if s.metricsManager != nil {
		s.metricsManager.StopCollector()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.storage.Ping(); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	resp := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"version":   "1.0.0",
		"components": map[string]bool{
			"storage":   s.storage.Ping() == nil,
			"scheduler": s.scheduler != nil && s.scheduler.IsRunning(),
			"delivery":  s.engine != nil && s.engine.IsRunning(),
		},
	}
	s.writeJSON(w, code, resp)
}

// statusHandler returns application statistics
func (s *HTTPServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	stats := map[string]interface{}{
		"timestamp":       time.Now(),
		"uptime":          time.Since(s.startTime).String(),
		"storage":         storageStats,
		"scheduler":       s.scheduler.GetStats(),
		"delivery":        s.engine.GetStats(),
		"metrics_enabled": s.config.EnableMetrics,
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// Trigger Handlers

// listTriggersHandler lists recent triggers
func (s *HTTPServer) listTriggersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.TriggerFilter{
		ConfigID:   q.Get("config_id"),
		EndpointID: q.Get("endpoint_id"),
		CampaignID: q.Get("campaign_id"),
		Limit:      50,
		Offset:     0,
	}

	if v := q.Get("event_type"); v != "" {
		et := models.EventType(v)
		if !et.IsValid() {
			s.writeError(w, http.StatusBadRequest, "Unknown event type", nil)
			return
		}
		filter.EventType = et
	}
	if v := q.Get("status"); v != "" {
		filter.Status = models.TriggerStatus(v)
	}
	if v := q.Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			filter.Limit = l
		}
	}
	if v := q.Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	triggers, err := s.storage.GetTriggers(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve triggers", err)
		return
	}

	response := map[string]interface{}{
		"triggers": triggers,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
		"total":    len(triggers),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// getTriggerHandler gets a specific trigger by ID
func (s *HTTPServer) getTriggerHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	trigger, err := s.storage.GetTrigger(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Trigger not found", err)
		return
	}

	s.writeJSON(w, http.StatusOK, trigger)
}

// listTriggerAttemptsHandler lists the delivery attempts recorded for a trigger
func (s *HTTPServer) listTriggerAttemptsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	attempts, err := s.storage.GetDeliveryAttempts(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve delivery attempts", err)
		return
	}

	response := map[string]interface{}{
		"trigger_id": id,
		"attempts":   attempts,
		"total":      len(attempts),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// Configuration Handlers

// listConfigsHandler lists active monitoring configurations
func (s *HTTPServer) listConfigsHandler(w http.ResponseWriter, r *http.Request) {
	configs, err := s.storage.GetActiveConfigs(r.Context(), false)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve configurations", err)
		return
	}

	response := map[string]interface{}{
		"configs": configs,
		"total":   len(configs),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// getConfigHandler gets a specific monitoring configuration by ID
func (s *HTTPServer) getConfigHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	cfg, err := s.storage.GetConfig(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Configuration not found", err)
		return
	}

	s.writeJSON(w, http.StatusOK, cfg)
}

// Event Handlers

// campaignCreatedHandler ingests a campaign creation event and fires
// matching campaign.created configurations synchronously.
func (s *HTTPServer) campaignCreatedHandler(w http.ResponseWriter, r *http.Request) {
	var campaign models.Campaign
	if err := json.NewDecoder(r.Body).Decode(&campaign); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if campaign.Name == "" {
		s.writeError(w, http.StatusBadRequest, "Campaign name is required", nil)
		return
	}
	if campaign.ID == "" {
		campaign.ID = uuid.NewString()
	}
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = time.Now().UTC()
	}

	if err := s.storage.SaveCampaign(r.Context(), &campaign); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save campaign", err)
		return
	}

	triggers, err := s.evaluator.EvaluateCampaignCreated(r.Context(), &campaign)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to evaluate campaign creation", err)
		return
	}

	response := map[string]interface{}{
		"campaign_id":    campaign.ID,
		"triggers_fired": len(triggers),
	}

	s.writeJSON(w, http.StatusCreated, response)
}

// Endpoint Handlers

// testEndpointHandler sends a synthetic test delivery to an endpoint
func (s *HTTPServer) testEndpointHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	outcome, err := s.engine.TestDelivery(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Endpoint not found", err)
		return
	}

	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusBadGateway
	}

	s.writeJSON(w, status, outcome)
}

// reactivateEndpointHandler clears an endpoint's failure count and
// re-enables it after an automatic deactivation.
func (s *HTTPServer) reactivateEndpointHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	if err := s.storage.ReactivateEndpoint(r.Context(), id); err != nil {
		s.writeError(w, http.StatusNotFound, "Endpoint not found", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"endpoint_id": id,
		"active":      true,
	})
}

// Utility methods

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithField("error", err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
