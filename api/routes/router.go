package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/partsreserve-backend/api/controllers"
	"github.com/angelmondragon/partsreserve-backend/api/middleware"
	"github.com/angelmondragon/partsreserve-backend/internal/engine"
	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
)

// Params carries everything the router mounts.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	Engine      *engine.Engine
	Idempotency middleware.IdempotencyStore
	RateLimit   middleware.RateLimitStore
	Ready       map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(p Params) http.Handler {
	cfg, logg, eng := p.Config, p.Logger, p.Engine

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.Correlation(logg),
		middleware.Logging(logg),
		middleware.Metrics(p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Ready))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	staff := []enums.ActorRole{enums.ActorRoleEVMStaff, enums.ActorRoleSCStaff}
	scStaff := middleware.RequireRoles(logg, enums.ActorRoleSCStaff)
	evmStaff := middleware.RequireRoles(logg, enums.ActorRoleEVMStaff)
	technician := middleware.RequireRoles(logg, enums.ActorRoleTechnician)
	idem := middleware.NewIdempotency(p.Idempotency, cfg.Redis.IdempotencyTTL, logg)
	once, onceCritical := idem.Standard, idem.Critical

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.WriteRateLimit(middleware.WritePolicy{
			Window:      cfg.Redis.RateLimitWindow,
			ActorLimit:  cfg.Redis.RateLimitActorWrites,
			ClientLimit: cfg.Redis.RateLimitIPWrites,
		}, p.RateLimit, logg))
		r.Use(chimiddleware.Timeout(cfg.Engine.OperationTimeout))

		r.Route("/stocks", func(r chi.Router) {
			r.With(middleware.RequireRoles(logg, staff...), once).Post("/", controllers.OpenStock(eng.Stock, logg))
			r.Get("/{stockId}", controllers.GetStock(eng.Stock, logg))
			r.Get("/{stockId}/adjustments", controllers.ListStockAdjustments(eng.Stock, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, staff...), once)
				r.Post("/{stockId}/adjustments", controllers.AdjustStock(eng.Stock, logg))
				r.Post("/{stockId}/reserve", controllers.ReserveStock(eng.Stock, logg))
				r.Post("/{stockId}/release", controllers.ReleaseStock(eng.Stock, logg))
			})
		})

		r.Get("/warehouses/{warehouseId}/components", controllers.AvailableComponents(eng.Stock, logg))
		r.Get("/service-centers/{serviceCenterId}/inventory-summary", controllers.InventorySummary(eng.Stock, logg))

		r.Route("/reservations", func(r chi.Router) {
			r.With(scStaff, once).Post("/", controllers.CreateReservation(eng.Reservations, logg))
			r.Get("/{reservationId}", controllers.GetReservation(eng.Reservations, logg))
			r.With(scStaff, once).Post("/{reservationId}/cancel", controllers.CancelReservation(eng.Reservations, logg))
			r.With(technician, once).Post("/{reservationId}/install", controllers.InstallReservation(eng.Reservations, logg))
			r.With(technician, once).Post("/{reservationId}/return", controllers.ReturnComponent(eng.Reservations, logg))
		})

		r.Route("/transfer-requests", func(r chi.Router) {
			r.With(scStaff, onceCritical).Post("/", controllers.CreateTransferRequest(eng.Transfers, logg))
			r.Route("/{requestId}", func(r chi.Router) {
				r.Get("/", controllers.GetTransferRequest(eng.Transfers, logg))
				r.Get("/shipments", controllers.ListTransferShipments(eng.Shipments, logg))
				r.With(evmStaff, onceCritical).Post("/approve", controllers.ApproveTransferRequest(eng.Transfers, logg))
				r.With(evmStaff, onceCritical).Post("/reject", controllers.RejectTransferRequest(eng.Transfers, logg))
				r.With(scStaff, onceCritical).Post("/cancel", controllers.CancelTransferRequest(eng.Transfers, logg))
				r.With(evmStaff).Post("/selection/validate", controllers.ValidateTransferSelection(eng.Transfers, logg))
				r.With(evmStaff, onceCritical).Post("/ship", controllers.ShipTransferRequest(eng.Transfers, logg))
				r.With(scStaff, onceCritical).Post("/receive", controllers.ReceiveTransferRequest(eng.Transfers, logg))
			})
		})

		r.With(middleware.RequireRoles(logg, enums.ActorRoleTechnician, enums.ActorRoleSCStaff), onceCritical).
			Post("/pickups", controllers.Pickup(eng.Pickups, logg))

		r.Route("/admin/outbox/dead-letters", func(r chi.Router) {
			r.Use(middleware.RequireRoles(logg, enums.ActorRoleAdmin))
			r.Get("/", controllers.ListDeadLetters(eng.Outbox, logg))
			r.With(once).Post("/{eventId}/requeue", controllers.RequeueDeadLetter(eng.Outbox, logg))
		})
	})

	return r
}
