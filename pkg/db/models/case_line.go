package models

import "github.com/google/uuid"

// CaseLine is a repair case demand line owned by the warranty service. This
// service only reads it to learn which technician is assigned.
type CaseLine struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	CaseID          uuid.UUID  `gorm:"column:case_id;type:uuid;not null;index"`
	TypeComponentID uuid.UUID  `gorm:"column:type_component_id;type:uuid;not null"`
	RepairTechID    *uuid.UUID `gorm:"column:repair_tech_id;type:uuid"`
}
