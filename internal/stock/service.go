package stock

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/pkg/db"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
	"github.com/angelmondragon/partsreserve-backend/pkg/pagination"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox/payloads"
)

const defaultPageSize = 100

// Service is the stock ledger. It is the only writer of stock quantities;
// every change goes through a guarded conditional update.
type Service interface {
	Open(ctx context.Context, warehouseID, typeComponentID uuid.UUID) (*models.Stock, error)
	Get(ctx context.Context, stockID uuid.UUID) (*models.Stock, error)
	Adjust(ctx context.Context, input AdjustInput) (*models.Stock, error)
	Reserve(ctx context.Context, stockID uuid.UUID, quantity int) (*models.Stock, error)
	Release(ctx context.Context, stockID uuid.UUID, quantity int) (*models.Stock, error)
	AvailableComponents(ctx context.Context, warehouseID, typeComponentID uuid.UUID) iter.Seq2[models.Component, error]
	InventorySummary(ctx context.Context, serviceCenterID uuid.UUID) ([]WarehouseSummary, error)
	Adjustments(ctx context.Context, stockID uuid.UUID, page pagination.Params) (*AdjustmentPage, error)

	ResolveTx(ctx context.Context, tx *gorm.DB, warehouseID, typeComponentID uuid.UUID) (*models.Stock, error)
	ReserveTx(ctx context.Context, tx *gorm.DB, stockID uuid.UUID, quantity int) (*models.Stock, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, stockID uuid.UUID, quantity int) (*models.Stock, error)
	ConsumeTx(ctx context.Context, tx *gorm.DB, input ConsumeInput) (*models.Stock, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AdjustInput describes one ledger adjustment. Serials are optional; when
// present their count must equal Quantity.
type AdjustInput struct {
	StockID     uuid.UUID
	Type        enums.AdjustmentType
	Quantity    int
	Reason      enums.AdjustmentReason
	Note        string
	ActorUserID *uuid.UUID
	Serials     []string
}

// ConsumeInput removes reserved units from stock when they are installed.
type ConsumeInput struct {
	StockID       uuid.UUID
	Quantity      int
	ReservationID uuid.UUID
	ActorUserID   *uuid.UUID
}

// WarehouseSummary aggregates stock for one warehouse.
type WarehouseSummary struct {
	WarehouseID       uuid.UUID       `json:"warehouse_id"`
	WarehouseName     string          `json:"warehouse_name"`
	QuantityInStock   int             `json:"quantity_in_stock"`
	QuantityReserved  int             `json:"quantity_reserved"`
	QuantityAvailable int             `json:"quantity_available"`
	Valuation         decimal.Decimal `json:"valuation"`
}

// ServiceParams wires the ledger dependencies.
type ServiceParams struct {
	Repository Repository
	TxRunner   txRunner
	Outbox     outbox.Emitter
	Logger     *logger.Logger
	Metrics    *metrics.EngineMetrics
	PageSize   int
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outbox.Emitter
	logg     *logger.Logger
	metrics  *metrics.EngineMetrics
	pageSize int
}

// NewService builds the stock ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &service{
		repo:     params.Repository,
		tx:       params.TxRunner,
		outbox:   params.Outbox,
		logg:     params.Logger,
		metrics:  params.Metrics,
		pageSize: pageSize,
	}, nil
}

func (s *service) Open(ctx context.Context, warehouseID, typeComponentID uuid.UUID) (*models.Stock, error) {
	if warehouseID == uuid.Nil || typeComponentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse_id and type_component_id are required")
	}
	var out *models.Stock
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByWarehouseAndType(ctx, warehouseID, typeComponentID)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.FromStore(err, "load stock")
		}
		stock := &models.Stock{WarehouseID: warehouseID, TypeComponentID: typeComponentID}
		if err := repo.Create(ctx, stock); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "stock opened concurrently")
			}
			return pkgerrors.FromStore(err, "create stock")
		}
		out = stock
		return nil
	})
	s.metrics.Observe("stock.open", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, stockID uuid.UUID) (*models.Stock, error) {
	stock, err := s.repo.FindByID(ctx, stockID)
	if err != nil {
		return nil, mapLoadError(err, "stock")
	}
	return stock, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.Stock, error) {
	if err := validateAdjust(input); err != nil {
		s.metrics.Observe("stock.adjust", err)
		return nil, err
	}

	var out *models.Stock
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		stock, err := s.adjustTx(ctx, tx, input)
		if err != nil {
			return err
		}
		out = stock
		return nil
	})
	s.metrics.Observe("stock.adjust", err)
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"stock_id": out.ID.String(),
		"type":     input.Type,
		"reason":   input.Reason,
		"quantity": input.Quantity,
	})
	s.logg.Info(logCtx, "stock adjusted")
	return out, nil
}

func (s *service) adjustTx(ctx context.Context, tx *gorm.DB, input AdjustInput) (*models.Stock, error) {
	repo := s.repo.WithTx(tx)
	delta := Delta{InStock: input.Quantity}
	if input.Type == enums.AdjustmentTypeOut {
		delta.InStock = -input.Quantity
	}

	stock, err := s.applyTx(ctx, repo, input.StockID, delta, input.Quantity)
	if err != nil {
		return nil, err
	}

	if len(input.Serials) > 0 {
		if err := s.applySerials(ctx, repo, stock, input); err != nil {
			return nil, err
		}
	}

	adjustment := &models.StockAdjustment{
		StockID:     stock.ID,
		Type:        input.Type,
		Quantity:    input.Quantity,
		Reason:      input.Reason,
		Note:        strings.TrimSpace(input.Note),
		ActorUserID: input.ActorUserID,
	}
	if err := repo.AppendAdjustment(ctx, adjustment); err != nil {
		return nil, pkgerrors.FromStore(err, "append stock adjustment")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventStockAdjusted,
		AggregateType: enums.AggregateStock,
		AggregateID:   stock.ID,
		Actor:         actorRef(input.ActorUserID),
		Data: payloads.StockAdjustedEvent{
			StockID:           stock.ID,
			AdjustmentID:      adjustment.ID,
			Type:              adjustment.Type,
			Reason:            adjustment.Reason,
			Quantity:          adjustment.Quantity,
			QuantityInStock:   stock.QuantityInStock,
			QuantityReserved:  stock.QuantityReserved,
			QuantityAvailable: stock.QuantityAvailable,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.FromStore(err, "emit stock adjusted event")
	}
	return stock, nil
}

// applySerials registers received units on IN and retires damaged units on
// OUT.
func (s *service) applySerials(ctx context.Context, repo Repository, stock *models.Stock, input AdjustInput) error {
	if input.Type == enums.AdjustmentTypeIn {
		warehouseID := stock.WarehouseID
		components := make([]models.Component, 0, len(input.Serials))
		for _, serial := range input.Serials {
			components = append(components, models.Component{
				SerialNumber:    strings.TrimSpace(serial),
				TypeComponentID: stock.TypeComponentID,
				WarehouseID:     &warehouseID,
				Status:          enums.ComponentStatusInWarehouse,
			})
		}
		if err := repo.CreateComponents(ctx, components); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "serial number already registered")
			}
			return pkgerrors.FromStore(err, "create components")
		}
		return nil
	}

	affected, err := repo.MarkDefective(ctx, stock.WarehouseID, stock.TypeComponentID, input.Serials)
	if err != nil {
		return pkgerrors.FromStore(err, "retire components")
	}
	if int(affected) != len(input.Serials) {
		return pkgerrors.New(pkgerrors.CodeValidation, "serials must reference available units of this stock").
			WithDetails(map[string]any{"requested": len(input.Serials), "matched": affected})
	}
	return nil
}

func (s *service) Reserve(ctx context.Context, stockID uuid.UUID, quantity int) (*models.Stock, error) {
	var out *models.Stock
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		stock, err := s.ReserveTx(ctx, tx, stockID, quantity)
		out = stock
		return err
	})
	s.metrics.Observe("stock.reserve", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Release(ctx context.Context, stockID uuid.UUID, quantity int) (*models.Stock, error) {
	var out *models.Stock
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		stock, err := s.ReleaseTx(ctx, tx, stockID, quantity)
		out = stock
		return err
	})
	s.metrics.Observe("stock.release", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) ResolveTx(ctx context.Context, tx *gorm.DB, warehouseID, typeComponentID uuid.UUID) (*models.Stock, error) {
	stock, err := s.repo.WithTx(tx).FindByWarehouseAndType(ctx, warehouseID, typeComponentID)
	if err != nil {
		return nil, mapLoadError(err, "stock")
	}
	return stock, nil
}

func (s *service) ReserveTx(ctx context.Context, tx *gorm.DB, stockID uuid.UUID, quantity int) (*models.Stock, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	return s.applyTx(ctx, s.repo.WithTx(tx), stockID, Delta{Reserved: quantity}, quantity)
}

func (s *service) ReleaseTx(ctx context.Context, tx *gorm.DB, stockID uuid.UUID, quantity int) (*models.Stock, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	return s.applyTx(ctx, s.repo.WithTx(tx), stockID, Delta{Reserved: -quantity}, quantity)
}

// ConsumeTx removes installed units from both in-stock and reserved and
// records the removal as an OUT adjustment.
func (s *service) ConsumeTx(ctx context.Context, tx *gorm.DB, input ConsumeInput) (*models.Stock, error) {
	if err := validateQuantity(input.Quantity); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)
	stock, err := s.applyTx(ctx, repo, input.StockID, Delta{InStock: -input.Quantity, Reserved: -input.Quantity}, input.Quantity)
	if err != nil {
		return nil, err
	}
	adjustment := &models.StockAdjustment{
		StockID:     stock.ID,
		Type:        enums.AdjustmentTypeOut,
		Quantity:    input.Quantity,
		Reason:      enums.AdjustmentReasonOther,
		Note:        "installed for reservation " + input.ReservationID.String(),
		ActorUserID: input.ActorUserID,
	}
	if err := repo.AppendAdjustment(ctx, adjustment); err != nil {
		return nil, pkgerrors.FromStore(err, "append stock adjustment")
	}
	return stock, nil
}

// applyTx runs the guarded update and, when the guard rejects it, reloads
// the row to report why.
func (s *service) applyTx(ctx context.Context, repo Repository, stockID uuid.UUID, delta Delta, quantity int) (*models.Stock, error) {
	if stockID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock_id is required")
	}
	applied, err := repo.ApplyDelta(ctx, stockID, delta)
	if err != nil {
		return nil, pkgerrors.FromStore(err, "update stock quantities")
	}

	stock, err := repo.FindByID(ctx, stockID)
	if err != nil {
		return nil, mapLoadError(err, "stock")
	}

	if !applied {
		if delta.available() < 0 {
			return nil, pkgerrors.InsufficientStock(stock.ID, quantity, stock.QuantityAvailable)
		}
		s.logg.Error(s.logg.WithField(ctx, "stock_id", stock.ID.String()), "stock release rejected", errors.New("reserved quantity would go negative"))
		return nil, pkgerrors.InvariantViolation("release exceeds reserved quantity").
			WithDetails(map[string]any{"stock_id": stock.ID.String(), "reserved": stock.QuantityReserved, "requested": quantity})
	}

	if !stock.Conserved() {
		s.logg.Error(s.logg.WithField(ctx, "stock_id", stock.ID.String()), "stock conservation broken", errors.New("available != in_stock - reserved"))
		return nil, pkgerrors.InvariantViolation("stock quantities are inconsistent")
	}
	return stock, nil
}

// AvailableComponents lazily pages through IN_WAREHOUSE units. Each range
// over the returned sequence starts a fresh scan.
func (s *service) AvailableComponents(ctx context.Context, warehouseID, typeComponentID uuid.UUID) iter.Seq2[models.Component, error] {
	return func(yield func(models.Component, error) bool) {
		after := ""
		for {
			if err := ctx.Err(); err != nil {
				yield(models.Component{}, err)
				return
			}
			page, err := s.repo.ListAvailableComponents(ctx, warehouseID, typeComponentID, after, s.pageSize)
			if err != nil {
				yield(models.Component{}, pkgerrors.FromStore(err, "list available components"))
				return
			}
			for _, component := range page {
				if !yield(component, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			after = page[len(page)-1].SerialNumber
		}
	}
}

func (s *service) InventorySummary(ctx context.Context, serviceCenterID uuid.UUID) ([]WarehouseSummary, error) {
	if serviceCenterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service_center_id is required")
	}
	rows, err := s.repo.Summary(ctx, serviceCenterID)
	if err != nil {
		return nil, pkgerrors.FromStore(err, "summarize inventory")
	}
	return rows, nil
}

// AdjustmentPage is one cursor page of a stock's adjustment history.
type AdjustmentPage struct {
	Items      []models.StockAdjustment
	NextCursor string
}

func (s *service) Adjustments(ctx context.Context, stockID uuid.UUID, page pagination.Params) (*AdjustmentPage, error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(page.Limit)
	rows, err := s.repo.ListAdjustments(ctx, stockID, cursor, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, pkgerrors.FromStore(err, "list adjustments")
	}

	items, next := pagination.Trim(rows, limit, func(row models.StockAdjustment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &AdjustmentPage{Items: items, NextCursor: next}, nil
}

// Collect snapshots a component sequence into a slice, stopping at limit
// when limit is positive.
func Collect(seq iter.Seq2[models.Component, error], limit int) ([]models.Component, error) {
	var out []models.Component
	for component, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, component)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func validateAdjust(input AdjustInput) error {
	if input.StockID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock_id is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid adjustment type %q", input.Type))
	}
	if !input.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid adjustment reason %q", input.Reason))
	}
	if err := validateQuantity(input.Quantity); err != nil {
		return err
	}
	if len(input.Serials) == 0 {
		return nil
	}
	if len(input.Serials) != input.Quantity {
		return pkgerrors.New(pkgerrors.CodeValidation, "serial count must equal quantity")
	}
	seen := make(map[string]struct{}, len(input.Serials))
	for _, serial := range input.Serials {
		serial = strings.TrimSpace(serial)
		if serial == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "serial numbers must not be blank")
		}
		if _, dup := seen[serial]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate serial number "+serial)
		}
		seen[serial] = struct{}{}
	}
	return nil
}

func validateQuantity(quantity int) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a positive integer")
	}
	return nil
}

func mapLoadError(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	return pkgerrors.FromStore(err, "load "+entity)
}

func actorRef(userID *uuid.UUID) *outbox.ActorRef {
	if userID == nil {
		return nil
	}
	return &outbox.ActorRef{UserID: *userID}
}
