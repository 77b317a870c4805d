package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"royal-decrees/internal/model"
)

// DecreeRepository handles CRUD for decrees.
type DecreeRepository struct {
	db *gorm.DB
}

func NewDecreeRepository(db *gorm.DB) *DecreeRepository {
	return &DecreeRepository{db: db}
}

func (r *DecreeRepository) Create(ctx context.Context, decree *model.Decree) error {
	if err := r.db.WithContext(ctx).Create(decree).Error; err != nil {
		return fmt.Errorf("create decree: %w", err)
	}
	return nil
}

// Save writes every column of an existing decree.
func (r *DecreeRepository) Save(ctx context.Context, decree *model.Decree) error {
	res := r.db.WithContext(ctx).Model(decree).
		Where("user_id = ?", decree.UserID).
		Select("*").Omit("created_at").
		Updates(decree)
	if res.Error != nil {
		return fmt.Errorf("save decree: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("save decree %s: %w", decree.ID, gorm.ErrRecordNotFound)
	}
	return nil
}

// ListByUser returns every decree of the monarch, oldest first.
func (r *DecreeRepository) ListByUser(ctx context.Context, userID uint) ([]model.Decree, error) {
	var decrees []model.Decree
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&decrees).Error; err != nil {
		return nil, fmt.Errorf("list decrees: %w", err)
	}
	return decrees, nil
}

func (r *DecreeRepository) FindByID(ctx context.Context, userID uint, decreeID string) (*model.Decree, error) {
	var decree model.Decree
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, decreeID).First(&decree).Error; err != nil {
		return nil, err
	}
	return &decree, nil
}

// Delete removes a decree for the given monarch.
func (r *DecreeRepository) Delete(ctx context.Context, userID uint, decreeID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, decreeID).
		Delete(&model.Decree{}).Error; err != nil {
		return fmt.Errorf("delete decree: %w", err)
	}
	return nil
}
