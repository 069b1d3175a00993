package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"innkeeper/internal/config"
	"innkeeper/internal/service"
)

// Services groups the engine services the API serves.
type Services struct {
	Reservations *service.ReservationService
	Inventory    *service.InventoryService
	Pricing      *service.PricingService
}

// HTTPServer exposes the engine over JSON.
type HTTPServer struct {
	server   *http.Server
	svc      Services
	apiKey   string
	limiters *clientLimiters
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.HTTPConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &HTTPServer{
		svc:    svc,
		apiKey: cfg.APIKey,
		logger: logger,
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = int(cfg.RateLimitRPS) + 1
		}
		s.limiters = newClientLimiters(rate.Limit(cfg.RateLimitRPS), burst)
	}

	router := mux.NewRouter()
	router.Use(s.recoverMiddleware, s.rateLimitMiddleware, s.authMiddleware)
	s.routes(router)

	var handler http.Handler = router
	if cfg.TimeoutSeconds > 0 {
		handler = http.TimeoutHandler(handler, time.Duration(cfg.TimeoutSeconds)*time.Second, `{"error":"request timed out"}`)
	}
	if len(cfg.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Api-Key"},
		}).Handler(handler)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/room-types", s.handleListRoomTypes).Methods(http.MethodGet)
	api.HandleFunc("/room-types", s.handleCreateRoomType).Methods(http.MethodPost)
	api.HandleFunc("/room-types/{id}", s.handleGetRoomType).Methods(http.MethodGet)
	api.HandleFunc("/room-types/{id}", s.handleUpdateRoomType).Methods(http.MethodPut)
	api.HandleFunc("/room-types/{id}", s.handleDeleteRoomType).Methods(http.MethodDelete)
	api.HandleFunc("/room-types/{id}/instances", s.handleListInstances).Methods(http.MethodGet)

	api.HandleFunc("/instances/{id}", s.handleRenumberInstance).Methods(http.MethodPatch)
	api.HandleFunc("/instances/{id}/availability", s.handleResolveAvailability).Methods(http.MethodGet)
	api.HandleFunc("/instances/{id}/status", s.handleSetRoomStatus).Methods(http.MethodPut)
	api.HandleFunc("/calendar", s.handleCalendar).Methods(http.MethodGet)

	api.HandleFunc("/reservations", s.handleListReservations).Methods(http.MethodGet)
	api.HandleFunc("/reservations", s.handleCreateReservation).Methods(http.MethodPost)
	api.HandleFunc("/reservations/by-code/{code}", s.handleGetReservationByCode).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id}", s.handleGetReservation).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id}/transition", s.handleTransition).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}/move", s.handleMove).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}/payment", s.handlePayment).Methods(http.MethodPut)

	api.HandleFunc("/prices/overrides", s.handleApplyPrices).Methods(http.MethodPost)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown. http.ErrServerClosed is not an error.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-Api-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiters != nil && !s.limiters.get(clientKey(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Handler panicked")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller by API key, else by remote IP.
func clientKey(r *http.Request) string {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type clientLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newClientLimiters(limit rate.Limit, burst int) *clientLimiters {
	return &clientLimiters{limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (c *clientLimiters) get(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[key]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[key] = l
	}
	return l
}
