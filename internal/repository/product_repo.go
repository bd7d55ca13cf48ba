package repository

import (
	"context"

	"snackorder/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductRepository writes the only catalog column the order core owns.
type ProductRepository interface {
	IncrementSales(ctx context.Context, id uuid.UUID, quantity int) error
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) IncrementSales(ctx context.Context, id uuid.UUID, quantity int) error {
	return GetDB(ctx, r.db).Model(&model.Product{}).
		Where("id = ?", id).
		Update("cumulative_sales", gorm.Expr("cumulative_sales + ?", quantity)).Error
}
