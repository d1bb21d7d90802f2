// Package engine wires the reservation engine's services over one database
// handle so every entry point builds them the same way.
package engine

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/internal/caselines"
	"github.com/angelmondragon/partsreserve-backend/internal/pickups"
	"github.com/angelmondragon/partsreserve-backend/internal/reservations"
	"github.com/angelmondragon/partsreserve-backend/internal/shipments"
	"github.com/angelmondragon/partsreserve-backend/internal/stock"
	"github.com/angelmondragon/partsreserve-backend/internal/transfers"
	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	"github.com/angelmondragon/partsreserve-backend/pkg/db"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox"
)

type Params struct {
	DB      *gorm.DB
	Config  config.EngineConfig
	Logger  *logger.Logger
	Metrics *metrics.EngineMetrics
}

// Engine holds the wired services.
type Engine struct {
	Stock        stock.Service
	Reservations reservations.Service
	Shipments    shipments.Service
	Transfers    transfers.Service
	Pickups      pickups.Service
	Outbox       *outbox.Service
}

func New(params Params) (*Engine, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database handle required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	conn := params.DB
	runner := db.Wrap(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), params.Logger)
	caseLines := caselines.NewRepository(conn)

	ledger, err := stock.NewService(stock.ServiceParams{
		Repository: stock.NewRepository(conn),
		TxRunner:   runner,
		Outbox:     emitter,
		Logger:     params.Logger,
		Metrics:    params.Metrics,
		PageSize:   params.Config.ComponentPageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("stock ledger: %w", err)
	}

	reservationSvc, err := reservations.NewService(reservations.ServiceParams{
		Repository: reservations.NewRepository(conn),
		CaseLines:  caseLines,
		Ledger:     ledger,
		TxRunner:   runner,
		Outbox:     emitter,
		Logger:     params.Logger,
		Metrics:    params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("reservation manager: %w", err)
	}

	shipmentSvc, err := shipments.NewService(shipments.ServiceParams{
		Repository:   shipments.NewRepository(conn),
		Reservations: reservationSvc,
		TxRunner:     runner,
		Logger:       params.Logger,
		Metrics:      params.Metrics,
		Concurrency:  params.Config.ShipmentConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("shipment binder: %w", err)
	}

	transferSvc, err := transfers.NewService(transfers.ServiceParams{
		Repository:   transfers.NewRepository(conn),
		Reservations: reservationSvc,
		Shipments:    shipmentSvc,
		TxRunner:     runner,
		Outbox:       emitter,
		Logger:       params.Logger,
		Metrics:      params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("transfer workflow: %w", err)
	}

	pickupSvc, err := pickups.NewService(pickups.ServiceParams{
		Reservations: reservationSvc,
		CaseLines:    caseLines,
		TxRunner:     runner,
		Logger:       params.Logger,
		Metrics:      params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("pickup coordinator: %w", err)
	}

	return &Engine{
		Stock:        ledger,
		Reservations: reservationSvc,
		Shipments:    shipmentSvc,
		Transfers:    transferSvc,
		Pickups:      pickupSvc,
		Outbox:       emitter,
	}, nil
}
