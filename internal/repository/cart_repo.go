package repository

import (
	"context"

	"snackorder/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CartRepository interface {
	FindActiveByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]model.CartItem, error)
	SoftDelete(ctx context.Context, ids []uuid.UUID) error
	Restore(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) error
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

// FindActiveByIDs returns the caller's live cart lines among ids, product preloaded.
func (r *cartRepository) FindActiveByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]model.CartItem, error) {
	var items []model.CartItem
	if err := GetDB(ctx, r.db).
		Preload("Product").
		Where("user_id = ? AND id IN ?", userID, ids).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *cartRepository) SoftDelete(ctx context.Context, ids []uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id IN ?", ids).Delete(&model.CartItem{}).Error
}

// Restore clears deleted_at on the user's lines for productIDs. Live lines are untouched.
func (r *cartRepository) Restore(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) error {
	return GetDB(ctx, r.db).Unscoped().Model(&model.CartItem{}).
		Where("user_id = ? AND product_id IN ? AND deleted_at IS NOT NULL", userID, productIDs).
		Update("deleted_at", nil).Error
}
