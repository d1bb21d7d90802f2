// Package dbtypes holds column types shared by the models.
package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// UUIDArray is a reservation's bound component ids. Postgres stores it as
// uuid[]; sqlite keeps the same array literal in a text column.
type UUIDArray []uuid.UUID

func (UUIDArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "uuid[]"
	}
	return "text"
}

func (a UUIDArray) Contains(id uuid.UUID) bool {
	return slices.Contains(a, id)
}

// Scan reads a NULL column as an empty array.
func (a *UUIDArray) Scan(src any) error {
	ids := []uuid.UUID{}
	if src != nil {
		if err := (pq.GenericArray{A: &ids}).Scan(src); err != nil {
			return fmt.Errorf("scan uuid array: %w", err)
		}
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	*a = ids
	return nil
}

// Value writes an empty array rather than NULL so the binding CHECK
// constraints always see a cardinality.
func (a UUIDArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	return pq.GenericArray{A: []uuid.UUID(a)}.Value()
}
