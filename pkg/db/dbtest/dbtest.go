// Package dbtest opens migrated in-memory sqlite databases and seeds the
// reference rows engine tests need.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
)

// Open returns an isolated in-memory database with every model migrated.
// The pool is pinned to one connection so concurrent transactions queue
// instead of failing with a locked table.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

func MustCreateWarehouse(t *testing.T, db *gorm.DB, name string, priority int) *models.Warehouse {
	t.Helper()
	warehouse := &models.Warehouse{Name: name, PriorityRank: priority}
	if err := db.Create(warehouse).Error; err != nil {
		t.Fatalf("create warehouse: %v", err)
	}
	return warehouse
}

func MustCreateTypeComponent(t *testing.T, db *gorm.DB, sku string, price string) *models.TypeComponent {
	t.Helper()
	typeComponent := &models.TypeComponent{
		SKU:      sku,
		Category: "battery",
		Name:     "Part " + sku,
		Price:    decimal.RequireFromString(price),
	}
	if err := db.Create(typeComponent).Error; err != nil {
		t.Fatalf("create type component: %v", err)
	}
	return typeComponent
}

// MustCreateStock seeds a stock row together with inStock serialized units
// in IN_WAREHOUSE status.
func MustCreateStock(t *testing.T, db *gorm.DB, warehouseID, typeComponentID uuid.UUID, inStock int) *models.Stock {
	t.Helper()
	stock := &models.Stock{
		WarehouseID:       warehouseID,
		TypeComponentID:   typeComponentID,
		QuantityInStock:   inStock,
		QuantityAvailable: inStock,
	}
	if err := db.Create(stock).Error; err != nil {
		t.Fatalf("create stock: %v", err)
	}
	for i := 0; i < inStock; i++ {
		wh := warehouseID
		component := &models.Component{
			SerialNumber:    fmt.Sprintf("SN-%s-%03d", uuid.NewString()[:8], i),
			TypeComponentID: typeComponentID,
			WarehouseID:     &wh,
			Status:          enums.ComponentStatusInWarehouse,
		}
		if err := db.Create(component).Error; err != nil {
			t.Fatalf("create component: %v", err)
		}
	}
	return stock
}

func MustCreateCaseLine(t *testing.T, db *gorm.DB, typeComponentID uuid.UUID, techID *uuid.UUID) *models.CaseLine {
	t.Helper()
	caseLine := &models.CaseLine{
		ID:              uuid.New(),
		CaseID:          uuid.New(),
		TypeComponentID: typeComponentID,
		RepairTechID:    techID,
	}
	if err := db.Create(caseLine).Error; err != nil {
		t.Fatalf("create case line: %v", err)
	}
	return caseLine
}

func ReloadStock(t *testing.T, db *gorm.DB, id uuid.UUID) models.Stock {
	t.Helper()
	var stock models.Stock
	if err := db.First(&stock, "id = ?", id).Error; err != nil {
		t.Fatalf("reload stock: %v", err)
	}
	return stock
}

func ReloadReservation(t *testing.T, db *gorm.DB, id uuid.UUID) models.Reservation {
	t.Helper()
	var reservation models.Reservation
	if err := db.First(&reservation, "id = ?", id).Error; err != nil {
		t.Fatalf("reload reservation: %v", err)
	}
	return reservation
}

func ComponentIDs(t *testing.T, db *gorm.DB, warehouseID, typeComponentID uuid.UUID, limit int) []uuid.UUID {
	t.Helper()
	var ids []uuid.UUID
	err := db.Model(&models.Component{}).
		Where("warehouse_id = ? AND type_component_id = ? AND status = ?", warehouseID, typeComponentID, enums.ComponentStatusInWarehouse).
		Order("serial_number").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		t.Fatalf("list components: %v", err)
	}
	return ids
}
