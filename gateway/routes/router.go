package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"agrichain/core/events"
	"agrichain/core/types"
	"agrichain/gateway/idempotency"
	"agrichain/gateway/middleware"
	"agrichain/gateway/orderbook"
	"agrichain/native/escrow"
	"agrichain/native/poll"
	"agrichain/observability"
)

// AccountReader exposes ledger balances to the accounts route.
type AccountReader interface {
	Account(holder [20]byte) (*types.Account, error)
}

type Config struct {
	Escrow        *escrow.Engine
	Polls         *poll.Engine
	Accounts      AccountReader
	Events        *events.Broadcaster
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Idempotency   *idempotency.Store
	// OrderBook enables the /v1/orderbook routes. Optional.
	OrderBook *orderbook.Store
	Logger    *slog.Logger
	// HealthCheck reports storage readiness for /healthz. Optional.
	HealthCheck func() error
}

type handlers struct {
	escrow   *escrow.Engine
	polls    *poll.Engine
	accounts AccountReader
	events   *events.Broadcaster
	orders   *orderbook.Store
	logger   *slog.Logger
	metrics  *observability.EscrowMetricsRegistry
}

// New builds the gateway HTTP handler.
func New(cfg Config) (http.Handler, error) {
	if cfg.Escrow == nil || cfg.Polls == nil || cfg.Accounts == nil {
		return nil, errors.New("routes: escrow, poll and account backends are required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("routes: authenticator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{
		escrow:   cfg.Escrow,
		polls:    cfg.Polls,
		accounts: cfg.Accounts,
		events:   cfg.Events,
		orders:   cfg.OrderBook,
		logger:   logger,
		metrics:  observability.EscrowMetrics(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Observability(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(); err != nil {
				middleware.WriteError(w, http.StatusServiceUnavailable, err.Error(), "unavailable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(cfg.Authenticator.Middleware)
		if cfg.RateLimiter != nil {
			v1.Use(cfg.RateLimiter.Middleware)
		}
		if cfg.Idempotency != nil {
			v1.Use(idempotency.Middleware(cfg.Idempotency, func(r *http.Request) string {
				return middleware.SubjectFromContext(r.Context())
			}, logger))
		}

		v1.Route("/escrows", func(er chi.Router) {
			er.Post("/", h.initializeEscrow)
			er.Get("/{key}", h.getEscrow)
			er.Post("/{key}/confirm", h.transition(opConfirm, h.escrow.Confirm))
			er.Post("/{key}/refund", h.transition(opRefund, h.escrow.Refund))
			er.Post("/{key}/fail", h.transition(opFail, h.escrow.Fail))
			er.Post("/{key}/withdraw", h.transition(opWithdraw, h.escrow.Withdraw))
			er.Post("/{key}/close", h.closeEscrow)
		})
		v1.Route("/polls", func(pr chi.Router) {
			pr.Post("/", h.createPoll)
			pr.Get("/{id}", h.getPoll)
			pr.Post("/{id}/candidates", h.createCandidate)
			pr.Post("/{id}/candidates/{name}/vote", h.vote)
		})
		if cfg.OrderBook != nil {
			v1.Route("/orderbook", func(or chi.Router) {
				or.Post("/", h.createOrder)
				or.Get("/", h.listOrders)
				or.Get("/{id}", h.getOrder)
				or.Patch("/{id}", h.updateOrder)
				or.Delete("/{id}", h.deleteOrder)
				or.Post("/{id}/escrow", h.linkOrder)
			})
		}
		v1.Get("/accounts/{address}", h.getAccount)
		if cfg.Events != nil {
			v1.Get("/events", h.streamEvents)
		}
	})

	return otelhttp.NewHandler(r, "escrowd"), nil
}
