package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartItemRepository interface {
	// Productをpreloadしてproduct_id順で返す
	ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error)
	// 注文確定用。ユーザーの明細行をproduct_id順にFOR UPDATEで取る（Productはpreloadしない）
	ListByUserIDForUpdate(ctx context.Context, userID int64) ([]model.CartItem, error)
	// 行が無ければqtyで作成、あれば保存済みの数量に加算。加算後の数量を返す
	AddQuantity(ctx context.Context, userID int64, productID int64, qty int64) (int64, error)
	UpdateQuantity(ctx context.Context, userID int64, productID int64, qty int64) error
	Delete(ctx context.Context, userID int64, productID int64) error
	DeleteByUserID(ctx context.Context, userID int64) error
}
