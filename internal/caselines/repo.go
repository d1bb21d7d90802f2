// Package caselines reads repair case lines owned by the warranty service.
// The engine only needs them to learn which technician a part is for.
package caselines

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/internal/repo"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
)

// Unassigned is reported for reservations with no case line or a case line
// without a repair technician.
const Unassigned = "unassigned"

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.CaseLine, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Technicians(ctx context.Context, caseLineIDs []*uuid.UUID) ([]string, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.CaseLine, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.CaseLine
	err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

func (r *repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.CaseLine{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// Technicians resolves the repair technician of each case line, in input
// order. Missing case lines and unassigned lines resolve to Unassigned.
func (r *repository) Technicians(ctx context.Context, caseLineIDs []*uuid.UUID) ([]string, error) {
	ids := make([]uuid.UUID, 0, len(caseLineIDs))
	for _, id := range caseLineIDs {
		if id != nil {
			ids = append(ids, *id)
		}
	}
	rows, err := r.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*uuid.UUID, len(rows))
	for _, row := range rows {
		byID[row.ID] = row.RepairTechID
	}

	out := make([]string, 0, len(caseLineIDs))
	for _, id := range caseLineIDs {
		tech := Unassigned
		if id != nil {
			if techID := byID[*id]; techID != nil {
				tech = techID.String()
			}
		}
		out = append(out, tech)
	}
	return out, nil
}
