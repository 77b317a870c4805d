package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"royal-decrees/internal/model"
)

// MonarchRepository stores the Telegram users who issue decrees.
type MonarchRepository struct {
	db *gorm.DB
}

func NewMonarchRepository(db *gorm.DB) *MonarchRepository {
	return &MonarchRepository{db: db}
}

// UpsertFromTelegram finds or creates a monarch by TelegramID and refreshes the profile names.
func (r *MonarchRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.Monarch, error) {
	var monarch model.Monarch
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&monarch).Error
	switch {
	case err == nil:
		if monarch.FirstName == firstName && monarch.LastName == lastName && monarch.Username == username {
			return &monarch, nil
		}
		updates := map[string]interface{}{
			"first_name": firstName,
			"last_name":  lastName,
			"username":   username,
		}
		if err := db.Model(&monarch).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update monarch: %w", err)
		}
		return &monarch, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		monarch = model.Monarch{
			TelegramID: telegramID,
			FirstName:  firstName,
			LastName:   lastName,
			Username:   username,
		}
		if err := db.Create(&monarch).Error; err != nil {
			return nil, fmt.Errorf("create monarch: %w", err)
		}
		return &monarch, nil
	default:
		return nil, fmt.Errorf("find monarch: %w", err)
	}
}

func (r *MonarchRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.Monarch, error) {
	var monarch model.Monarch
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&monarch).Error; err != nil {
		return nil, err
	}
	return &monarch, nil
}

func (r *MonarchRepository) FindByID(ctx context.Context, id uint) (*model.Monarch, error) {
	var monarch model.Monarch
	if err := r.db.WithContext(ctx).First(&monarch, id).Error; err != nil {
		return nil, err
	}
	return &monarch, nil
}

func (r *MonarchRepository) ListAll(ctx context.Context) ([]model.Monarch, error) {
	var monarchs []model.Monarch
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&monarchs).Error; err != nil {
		return nil, err
	}
	return monarchs, nil
}

// AddRenown increments the monarch's renown in a single UPDATE.
func (r *MonarchRepository) AddRenown(ctx context.Context, monarchID uint, points int) error {
	res := r.db.WithContext(ctx).Model(&model.Monarch{}).Where("id = ?", monarchID).
		UpdateColumn("renown", gorm.Expr("renown + ?", points))
	if res.Error != nil {
		return fmt.Errorf("add renown: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("add renown: %w", gorm.ErrRecordNotFound)
	}
	return nil
}
