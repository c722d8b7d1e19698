package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 条件付き減算。足りなければ0行更新でfalse（stock_quantityは負にならない）
func (r *InventoryGormRepository) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	if qty <= 0 {
		return false, nil
	}
	n, err := r.shiftStock(ctx, productID, -qty)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// キャンセル時の在庫戻し
func (r *InventoryGormRepository) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	if qty <= 0 {
		return nil
	}
	n, err := r.shiftStock(ctx, productID, qty)
	if err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// deltaが負のときは残りが足りる行だけ更新する
func (r *InventoryGormRepository) shiftStock(ctx context.Context, productID int64, delta int64) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", productID)
	if delta < 0 {
		q = q.Where("stock_quantity >= ?", -delta)
	}
	res := q.Update("stock_quantity", gorm.Expr("stock_quantity + ?", delta))
	return res.RowsAffected, res.Error
}

func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	return r.db.WithContext(ctx).Create(&adj).Error
}
