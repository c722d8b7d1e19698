package usecase

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

type CartUsecase struct {
	tx        repo.TransactionManager
	cartItems repo.CartItemRepository
	products  repo.ProductRepository
}

func NewCartUsecase(tx repo.TransactionManager, cartItems repo.CartItemRepository, products repo.ProductRepository) *CartUsecase {
	return &CartUsecase{tx: tx, cartItems: cartItems, products: products}
}

type CartLineOutput struct {
	ProductID     int64           `json:"productId"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"imageUrl"`
	StockQuantity int64           `json:"stockQuantity"`
	Quantity      int64           `json:"quantity"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type CartOutput struct {
	Items     []CartLineOutput `json:"items"`
	Total     decimal.Decimal  `json:"total"`
	ItemCount int64            `json:"itemCount"`
}

// カートの中身（公開中の商品だけ、価格は現在値）
func (u *CartUsecase) Get(ctx context.Context, userID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewUnauthorizedError("unauthorized")
	}

	items, err := u.cartItems.ListByUserID(ctx, userID)
	if err != nil {
		return CartOutput{}, newServerError()
	}

	lines, total, count := summarizeCart(items)
	return CartOutput{Items: lines, Total: total, ItemCount: count}, nil
}

func (u *CartUsecase) Add(ctx context.Context, userID int64, productID int64, qty int64) error {
	if userID <= 0 {
		return NewUnauthorizedError("unauthorized")
	}
	if productID <= 0 {
		return NewValidationError("invalid productId")
	}
	if qty < 1 {
		return NewValidationError("quantity must be at least 1")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFoundError("product not found")
		}
		if err != nil {
			return newServerError()
		}
		if !p.IsActive {
			return NewNotFoundError("product not found")
		}

		if qty > p.StockQuantity {
			return newInsufficientStockError(p.Name, p.StockQuantity, qty)
		}

		//既存の明細に加算してから在庫と比べる。超えたらrollback
		merged, err := r.CartItems().AddQuantity(ctx, userID, productID, qty)
		if err != nil {
			return newServerError()
		}
		if merged > p.StockQuantity {
			return newInsufficientStockError(p.Name, p.StockQuantity, merged)
		}
		return nil
	})
}

// 数量を上書き。0なら削除
func (u *CartUsecase) SetQuantity(ctx context.Context, userID int64, productID int64, qty int64) error {
	if userID <= 0 {
		return NewUnauthorizedError("unauthorized")
	}
	if productID <= 0 {
		return NewValidationError("invalid productId")
	}
	if qty < 0 {
		return NewValidationError("quantity must be 0 or more")
	}

	if qty == 0 {
		err := u.cartItems.Delete(ctx, userID, productID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return newServerError()
		}
		return nil
	}

	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewNotFoundError("product not found")
	}
	if err != nil {
		return newServerError()
	}
	if !p.IsActive {
		return NewNotFoundError("product not found")
	}
	if qty > p.StockQuantity {
		return newInsufficientStockError(p.Name, p.StockQuantity, qty)
	}

	err = u.cartItems.UpdateQuantity(ctx, userID, productID, qty)
	if errors.Is(err, repo.ErrNotFound) {
		return NewNotFoundError("item not found in cart")
	}
	if err != nil {
		return newServerError()
	}
	return nil
}

func (u *CartUsecase) Remove(ctx context.Context, userID int64, productID int64) error {
	if userID <= 0 {
		return NewUnauthorizedError("unauthorized")
	}
	if productID <= 0 {
		return NewValidationError("invalid productId")
	}

	err := u.cartItems.Delete(ctx, userID, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewNotFoundError("item not found in cart")
	}
	if err != nil {
		return newServerError()
	}
	return nil
}

func (u *CartUsecase) Clear(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return NewUnauthorizedError("unauthorized")
	}
	if err := u.cartItems.DeleteByUserID(ctx, userID); err != nil {
		return newServerError()
	}
	return nil
}

// 非公開・削除済みの商品の行は表示しない（行自体は残す）
func summarizeCart(items []model.CartItem) ([]CartLineOutput, decimal.Decimal, int64) {
	lines := make([]CartLineOutput, 0, len(items))
	total := decimal.Zero
	var count int64

	for _, it := range items {
		if it.Product == nil || !it.Product.IsActive {
			continue
		}
		lineTotal := it.Product.Price.Mul(decimal.NewFromInt(it.Quantity))
		lines = append(lines, CartLineOutput{
			ProductID:     it.ProductID,
			Name:          it.Product.Name,
			Description:   it.Product.Description,
			Price:         it.Product.Price,
			ImageURL:      it.Product.ImageURL,
			StockQuantity: it.Product.StockQuantity,
			Quantity:      it.Quantity,
			TotalPrice:    lineTotal,
			UpdatedAt:     it.UpdatedAt,
		})
		total = total.Add(lineTotal)
		count += it.Quantity
	}
	return lines, total, count
}
