package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/config"
)

// serviceName is reported by the info and ping endpoints.
const serviceName = "SentinelAI X API"

// dbCheckTimeout bounds the database probe behind /health.
const dbCheckTimeout = 2 * time.Second

// DatabaseChecker reports database connectivity.
type DatabaseChecker interface {
	Healthy(ctx context.Context) bool
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
}

// InfoResponse is the body of GET /.
type InfoResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	APIBase   string            `json:"api_base"`
	Endpoints map[string]string `json:"endpoints"`
}

// HealthHandler handles the unauthenticated info, health and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     DatabaseChecker
	logger *zap.Logger
	now    func() time.Time
}

// NewHealthHandler creates a new HealthHandler. db may be nil.
func NewHealthHandler(cfg *config.Config, db DatabaseChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, logger: logger, now: time.Now}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Info)
	mux.HandleFunc("GET /api/{$}", h.Info)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Info handles GET / with a summary of the API surface.
func (h *HealthHandler) Info(w http.ResponseWriter, r *http.Request) {
	response := InfoResponse{
		Success:   true,
		Message:   serviceName,
		Version:   h.cfg.Version,
		Status:    "online",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		APIBase:   "/api",
		Endpoints: map[string]string{
			"health":         "/api/health",
			"threats":        "/api/threats",
			"documents":      "/api/documents",
			"incidents":      "/api/incidents",
			"threat-actions": "/api/threat-actions",
		},
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode info response", zap.Error(err))
	}
}

// Health handles GET /health. The service is reported online even when the
// database is unreachable; the database field carries that state.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), dbCheckTimeout)
		defer cancel()
		if h.db.Healthy(ctx) {
			dbStatus = "connected"
		}
	}

	response := HealthResponse{
		Success:   true,
		Status:    "online",
		Database:  dbStatus,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "sentinel-engine",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
