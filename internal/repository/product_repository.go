package repository

import (
	"context"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 並び替えに使える列
const (
	ProductSortName      = "name"
	ProductSortPrice     = "price"
	ProductSortCreatedAt = "created_at"
	ProductSortStock     = "stock_quantity"
)

// 一覧検索
type ProductListQuery struct {
	Page            int
	Limit           int
	CategoryID      *int64
	Search          string
	Sort            string
	Desc            bool
	IncludeInactive bool
}

// 商品の部分更新。nilの項目は変更しない
type ProductPatch struct {
	Name          *string
	Description   *string
	Price         *decimal.Decimal
	CategoryID    *int64
	ImageURL      *string
	StockQuantity *int64
	IsActive      *bool
}

func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.CategoryID == nil &&
		p.ImageURL == nil && p.StockQuantity == nil && p.IsActive == nil
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	// Categoryをpreloadして返す
	List(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
	// 管理者更新用に行ロック
	FindByIDForUpdate(ctx context.Context, id int64) (model.Product, error)
	// 有効な商品だけをid順に行ロックして返す
	FindActiveByIDsForUpdate(ctx context.Context, ids []int64) ([]model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, id int64, patch ProductPatch) error
	Deactivate(ctx context.Context, id int64) error
}
