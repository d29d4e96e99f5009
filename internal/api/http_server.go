package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"foodtruck/internal/config"
	"foodtruck/internal/events"
	"foodtruck/internal/metrics"
	"foodtruck/internal/models"
	"foodtruck/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrderJournal принимает события заказов для фоновой выгрузки во внешний журнал.
type OrderJournal interface {
	EnqueueOrderUpsert(ctx context.Context, order *models.Order) error
	EnqueueOrderStatus(ctx context.Context, orderID int64, status string) error
}

// ReportWriter renders the order book into a downloadable report.
type ReportWriter interface {
	WriteOrdersReport(w io.Writer, orders []models.Order, items []models.MenuItem) error
}

// HTTPServer exposes the ledger over a JSON API.
type HTTPServer struct {
	cfg      *config.APIConfig
	ledger   Ledger
	cache    repository.MenuCache
	journal  OrderJournal
	reports  ReportWriter
	bus      *events.EventBus
	logger   zerolog.Logger
	server   *http.Server
	auth     *HTTPAuth
}

// Ledger is the surface the transport needs from the order engine.
type Ledger interface {
	Owner() string
	MenuItems() []models.MenuItem
	AddMenuItem(ctx context.Context, caller, name string, price, inventory int64, itemType models.ItemType) (int64, error)
	UpdateInventory(ctx context.Context, caller string, itemID, inventory int64) error
	SetItemAvailability(ctx context.Context, caller string, itemID int64, available bool) error
	PlaceOrder(ctx context.Context, customer string, itemIDs, quantities []int64, amountPaid int64) (int64, error)
	OrderCount() int64
	Order(ctx context.Context, orderID int64) (*models.Order, error)
	Orders(ctx context.Context, caller string) ([]models.Order, error)
	FulfillOrder(ctx context.Context, caller string, orderID int64) error
	Withdraw(ctx context.Context, caller string) (int64, error)
	Balance() int64
}

func NewHTTPServer(cfg *config.APIConfig, ledger Ledger, cache repository.MenuCache, journal OrderJournal, reports ReportWriter, bus *events.EventBus, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:     cfg,
		ledger:  ledger,
		cache:   cache,
		journal: journal,
		reports: reports,
		bus:     bus,
		logger:  logger.With().Str("component", "http").Logger(),
	}
	srv.auth = NewHTTPAuth(cfg)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(srv.requestIDMiddleware)
	r.Use(srv.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(srv.auth.Middleware)

		r.Get("/menu", srv.handleGetMenu)
		r.Get("/owner", srv.handleGetOwner)
		r.Get("/treasury", srv.handleGetTreasury)

		r.Post("/orders", srv.handlePlaceOrder)
		r.Get("/orders/count", srv.handleOrderCount)
		r.Get("/orders/{id}", srv.handleGetOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/menu", srv.handleAddMenuItem)
			r.Put("/menu/{id}/inventory", srv.handleUpdateInventory)
			r.Put("/menu/{id}/availability", srv.handleSetAvailability)
			r.Get("/orders", srv.handleListOrders)
			r.Get("/orders/export", srv.handleExportOrders)
			r.Post("/orders/{id}/fulfill", srv.handleFulfillOrder)
			r.Post("/withdraw", srv.handleWithdraw)
		})
	})

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler отдает корневой роутер; используется в тестах через httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

const requestIDHeader = "X-Request-Id"

func (s *HTTPServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		logger := s.logger.With().Str("request_id", requestID).Logger()
		ctx := logger.WithContext(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(r.URL.Path)
		zerolog.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
