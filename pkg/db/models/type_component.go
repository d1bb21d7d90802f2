package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TypeComponent is immutable catalog data describing a kind of part.
type TypeComponent struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SKU       string          `gorm:"column:sku;not null;uniqueIndex"`
	Category  string          `gorm:"column:category;not null"`
	Name      string          `gorm:"column:name;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (c *TypeComponent) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
