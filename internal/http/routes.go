package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Dispatcher Dispatcher   // Required
	Results    ResultReader // Required

	// Readiness checks served at /readyz, keyed by dependency name.
	Readiness        map[string]ReadinessCheck
	ReadinessTimeout time.Duration

	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	Logger             *slog.Logger
}

// NewRouter builds the API handler with its middleware chain applied.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := services.ReadinessTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	mux := http.NewServeMux()
	gen := &GenerationHandlers{
		Dispatcher: services.Dispatcher,
		Results:    services.Results,
		Logger:     logger.With("component", "http"),
	}
	registerGenerationRoutes(mux, gen)

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	ready := &readinessHandler{checks: services.Readiness, timeout: timeout, logger: logger}
	mux.Handle("GET /readyz", ready)
	mux.Handle("HEAD /readyz", ready)

	return Chain(mux,
		Recover(logger),
		Logging(logger),
		CORS(services.CORSAllowedOrigins),
		LimitBody(services.MaxBodyBytes),
	)
}

func registerGenerationRoutes(mux *http.ServeMux, h *GenerationHandlers) {
	mux.HandleFunc("POST /api/generations", h.Dispatch)
	mux.HandleFunc("GET /api/generations/{id}", h.Get)
	mux.HandleFunc("POST /api/generations/{id}/cancel", h.Cancel)
}
