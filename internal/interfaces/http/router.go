package http

import (
	"net/http"

	"github.com/dreschagin/securecam/internal/infrastructure/metrics"
	"github.com/dreschagin/securecam/internal/interfaces/http/handler"
	"github.com/dreschagin/securecam/internal/interfaces/http/middleware"
	"github.com/dreschagin/securecam/pkg/config"
	"github.com/dreschagin/securecam/pkg/logger"
)

// Handlers собирает обработчики, которые регистрирует Router.
type Handlers struct {
	Sessions    *handler.SessionAPIHandler
	Loads       *handler.LoadsAPIHandler
	DeviceMedia *handler.DeviceMediaAPIHandler
	Auth        *handler.AuthAPIHandler
	WebSocket   *handler.WebSocketHandler
	Health      *handler.HealthHandler
	// Metrics отдает /metrics; nil - endpoint не регистрируется.
	Metrics http.Handler
}

// Router настраивает маршруты приложения
type Router struct {
	mux      *http.ServeMux
	handlers Handlers
	metrics  *metrics.Metrics
	limiter  *middleware.IPRateLimiter
	security config.SecurityConfig
	logger   *logger.Logger
}

// NewRouter создает новый router. m и limiter могут быть nil.
func NewRouter(
	handlers Handlers,
	m *metrics.Metrics,
	limiter *middleware.IPRateLimiter,
	security config.SecurityConfig,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:      http.NewServeMux(),
		handlers: handlers,
		metrics:  m,
		limiter:  limiter,
		security: security,
		logger:   logger,
	}
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	// Health endpoints are intentionally unauthenticated for probes.
	rt.mux.HandleFunc("GET /healthz", rt.handlers.Health.Live)
	rt.mux.HandleFunc("GET /readyz", rt.handlers.Health.Ready)
	if rt.handlers.Metrics != nil {
		rt.mux.Handle("GET /metrics", rt.handlers.Metrics)
	}

	authConfig := rt.AuthConfig()
	protect := func(h http.HandlerFunc) http.Handler {
		var wrapped http.Handler = h
		wrapped = middleware.Compression(wrapped)
		wrapped = middleware.Auth(authConfig, rt.logger)(wrapped)
		if rt.limiter != nil {
			var onLimited func()
			if rt.metrics != nil {
				onLimited = rt.metrics.RateLimitDropped.Inc
			}
			wrapped = middleware.RateLimit(rt.limiter, onLimited)(wrapped)
		}
		return wrapped
	}

	// WebSocket проверяет токен сам: браузер передает его в ?token=
	rt.mux.HandleFunc("GET /ws", rt.handlers.WebSocket.HandleConnection)

	// Auth
	rt.mux.HandleFunc("POST /api/v1/auth/login", rt.handlers.Auth.Login)
	rt.mux.HandleFunc("POST /api/v1/auth/logout", rt.handlers.Auth.Logout)
	rt.mux.HandleFunc("GET /api/v1/auth/status", rt.handlers.Auth.Status)
	rt.mux.Handle("POST /api/v1/auth/signup", protect(rt.handlers.Auth.Signup))

	// Loads
	rt.mux.Handle("GET /api/v1/loads", protect(rt.handlers.Loads.ListLoads))
	rt.mux.Handle("GET /api/v1/loads/{key}/media", protect(rt.handlers.Loads.ListMedia))
	rt.mux.Handle("DELETE /api/v1/loads/{key}/media", protect(rt.handlers.Loads.DeleteMedia))

	// Capture sessions
	rt.mux.Handle("POST /api/v1/sessions", protect(rt.handlers.Sessions.Create))
	rt.mux.Handle("GET /api/v1/sessions/{id}", protect(rt.handlers.Sessions.Get))
	rt.mux.Handle("DELETE /api/v1/sessions/{id}", protect(rt.handlers.Sessions.Delete))
	rt.mux.Handle("POST /api/v1/sessions/{id}/permissions", protect(rt.handlers.Sessions.Permissions))
	rt.mux.Handle("POST /api/v1/sessions/{id}/photo", protect(rt.handlers.Sessions.Photo))
	rt.mux.Handle("POST /api/v1/sessions/{id}/video/start", protect(rt.handlers.Sessions.StartVideo))
	rt.mux.Handle("POST /api/v1/sessions/{id}/video/stop", protect(rt.handlers.Sessions.StopVideo))
	rt.mux.Handle("POST /api/v1/sessions/{id}/retry", protect(rt.handlers.Sessions.Retry))

	// Local media journal
	rt.mux.Handle("GET /api/v1/device/media", protect(rt.handlers.DeviceMedia.List))
	rt.mux.Handle("GET /api/v1/device/media/status", protect(rt.handlers.DeviceMedia.Status))
	rt.mux.Handle("DELETE /api/v1/device/media", protect(rt.handlers.DeviceMedia.Clear))
	rt.mux.Handle("DELETE /api/v1/device/media/{id}", protect(rt.handlers.DeviceMedia.Delete))

	// Применяем middleware
	var handler http.Handler = rt.mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = middleware.Logger(rt.logger)(handler)
	handler = middleware.Recovery(rt.logger)(handler)

	return handler
}

// AuthConfig returns the token settings shared by the middleware and the WebSocket handler.
func (rt *Router) AuthConfig() middleware.AuthConfig {
	cfg := middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}
	if rt.metrics != nil {
		cfg.OnFailure = rt.metrics.AuthFailures.Inc
	}
	return cfg
}
