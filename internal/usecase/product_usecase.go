package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// numeric(10,2)の上限
var maxPrice = decimal.RequireFromString("99999999.99")

type ProductUsecase struct {
	tx         repo.TransactionManager
	products   repo.ProductRepository
	categories repo.CategoryRepository
}

// DI
func NewProductUsecase(
	tx repo.TransactionManager,
	products repo.ProductRepository,
	categories repo.CategoryRepository,
) *ProductUsecase {
	return &ProductUsecase{
		tx:         tx,
		products:   products,
		categories: categories,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page            int
	Limit           int
	CategoryID      *int64
	Search          string
	Sort            string
	Order           string
	IncludeInactive bool
}

type ProductOutput struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	CategoryID    *int64          `json:"categoryId"`
	CategoryName  string          `json:"categoryName"`
	ImageURL      string          `json:"imageUrl"`
	StockQuantity int64           `json:"stockQuantity"`
	IsActive      bool            `json:"isActive"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type ProductListOutput struct {
	Products   []ProductOutput `json:"products"`
	Pagination Pagination      `json:"pagination"`
}

func (u *ProductUsecase) ListProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, NewValidationError("invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, NewValidationError("invalid limit")
	}
	if len(in.Search) > 100 {
		return ProductListOutput{}, NewValidationError("search too long")
	}
	if in.CategoryID != nil && *in.CategoryID <= 0 {
		return ProductListOutput{}, NewValidationError("invalid category")
	}

	items, total, err := u.products.List(ctx, repo.ProductListQuery{
		Page:            in.Page,
		Limit:           in.Limit,
		CategoryID:      in.CategoryID,
		Search:          strings.TrimSpace(in.Search),
		Sort:            normalizeSort(in.Sort),
		Desc:            !strings.EqualFold(strings.TrimSpace(in.Order), "asc"),
		IncludeInactive: in.IncludeInactive,
	})
	if err != nil {
		return ProductListOutput{}, newServerError()
	}

	outs := make([]ProductOutput, 0, len(items))
	for _, p := range items {
		outs = append(outs, toProductOutput(p))
	}
	return ProductListOutput{
		Products:   outs,
		Pagination: newPagination(in.Page, in.Limit, total),
	}, nil
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (ProductOutput, error) {
	if productID <= 0 {
		return ProductOutput{}, NewValidationError("invalid product id")
	}

	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return ProductOutput{}, NewNotFoundError("product not found")
	}
	if err != nil {
		return ProductOutput{}, newServerError()
	}

	if !p.IsActive {
		return ProductOutput{}, NewNotFoundError("product not found")
	}
	return toProductOutput(p), nil
}

func (u *ProductUsecase) ListCategories(ctx context.Context) ([]model.Category, error) {
	cs, err := u.categories.List(ctx)
	if err != nil {
		return []model.Category{}, newServerError()
	}
	return cs, nil
}

type AdminCreateProductInput struct {
	Name          string
	Description   string
	Price         decimal.Decimal
	CategoryID    *int64
	ImageURL      string
	StockQuantity int64
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, adminUserID int64, in AdminCreateProductInput) (ProductOutput, error) {
	if adminUserID <= 0 {
		return ProductOutput{}, NewUnauthorizedError("unauthorized")
	}
	if strings.TrimSpace(in.Name) == "" {
		return ProductOutput{}, NewValidationError("name required")
	}
	if err := validatePrice(in.Price); err != nil {
		return ProductOutput{}, err
	}
	if in.StockQuantity < 0 {
		return ProductOutput{}, NewValidationError("stockQuantity must be >= 0")
	}
	if err := u.ensureCategory(ctx, in.CategoryID); err != nil {
		return ProductOutput{}, err
	}

	var created model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().Create(ctx, model.Product{
			Name:          strings.TrimSpace(in.Name),
			Description:   in.Description,
			Price:         in.Price.Round(2),
			CategoryID:    in.CategoryID,
			ImageURL:      in.ImageURL,
			StockQuantity: in.StockQuantity,
			IsActive:      true,
		})
		if err != nil {
			return newServerError()
		}
		created = p

		return writeProductAudit(ctx, r, adminUserID, model.AuditActionCreateProduct, p.ID, nil, &p)
	})
	if err != nil {
		return ProductOutput{}, err
	}
	return toProductOutput(created), nil
}

// 指定された項目だけ更新。在庫が変わったら調整履歴も残す
func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, adminUserID int64, productID int64, patch repo.ProductPatch) (ProductOutput, error) {
	if adminUserID <= 0 {
		return ProductOutput{}, NewUnauthorizedError("unauthorized")
	}
	if productID <= 0 {
		return ProductOutput{}, NewValidationError("invalid product id")
	}
	if patch.IsEmpty() {
		return ProductOutput{}, NewValidationError("no fields to update")
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return ProductOutput{}, NewValidationError("name required")
		}
		patch.Name = &name
	}
	if patch.Price != nil {
		if err := validatePrice(*patch.Price); err != nil {
			return ProductOutput{}, err
		}
		rounded := patch.Price.Round(2)
		patch.Price = &rounded
	}
	if patch.StockQuantity != nil && *patch.StockQuantity < 0 {
		return ProductOutput{}, NewValidationError("stockQuantity must be >= 0")
	}
	if err := u.ensureCategory(ctx, patch.CategoryID); err != nil {
		return ProductOutput{}, err
	}

	var updated model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前（before）。差分がずれないよう行ロックしてから読む
		before, err := r.Products().FindByIDForUpdate(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFoundError("product not found")
		}
		if err != nil {
			return newServerError()
		}

		if err := r.Products().Update(ctx, productID, patch); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewNotFoundError("product not found")
			}
			return newServerError()
		}

		if patch.StockQuantity != nil && *patch.StockQuantity != before.StockQuantity {
			if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
				ProductID:   productID,
				AdminUserID: adminUserID,
				Delta:       *patch.StockQuantity - before.StockQuantity,
				Reason:      "admin product update",
				CreatedAt:   time.Now(),
			}); err != nil {
				return newServerError()
			}
		}

		after, err := r.Products().FindByID(ctx, productID)
		if err != nil {
			return newServerError()
		}
		updated = after

		return writeProductAudit(ctx, r, adminUserID, model.AuditActionUpdateProduct, productID, &before, &after)
	})
	if err != nil {
		return ProductOutput{}, err
	}
	return toProductOutput(updated), nil
}

// 論理削除（is_active=false）。注文明細からは引き続き参照できる
func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, adminUserID int64, productID int64) error {
	if adminUserID <= 0 {
		return NewUnauthorizedError("unauthorized")
	}
	if productID <= 0 {
		return NewValidationError("invalid product id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFoundError("product not found")
		}
		if err != nil {
			return newServerError()
		}

		if err := r.Products().Deactivate(ctx, productID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewNotFoundError("product not found")
			}
			return newServerError()
		}

		after := before
		after.IsActive = false
		return writeProductAudit(ctx, r, adminUserID, model.AuditActionDeleteProduct, productID, &before, &after)
	})
}

func (u *ProductUsecase) ensureCategory(ctx context.Context, categoryID *int64) error {
	if categoryID == nil {
		return nil
	}
	if *categoryID <= 0 {
		return NewValidationError("invalid categoryId")
	}
	_, err := u.categories.FindByID(ctx, *categoryID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewValidationError("category does not exist")
	}
	if err != nil {
		return newServerError()
	}
	return nil
}

func validatePrice(p decimal.Decimal) error {
	if p.IsNegative() {
		return NewValidationError("price must be >= 0")
	}
	if p.GreaterThan(maxPrice) {
		return NewValidationError("price too large")
	}
	return nil
}

// 表記ゆれを吸収。未知の値はcreated_at
func normalizeSort(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "name":
		return repo.ProductSortName
	case "price":
		return repo.ProductSortPrice
	case "stock", "stock_quantity", "stockquantity":
		return repo.ProductSortStock
	default:
		return repo.ProductSortCreatedAt
	}
}

// 監査ログに残す商品の項目
type productAuditView struct {
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	CategoryID    *int64          `json:"categoryId"`
	StockQuantity int64           `json:"stockQuantity"`
	IsActive      bool            `json:"isActive"`
}

func writeProductAudit(ctx context.Context, r repo.TxRepos, actor int64, action model.AuditAction, productID int64, before *model.Product, after *model.Product) error {
	log := model.AuditLog{
		ActorUserID:  actor,
		Action:       action,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   productID,
		BeforeJSON:   productAuditJSON(before),
		AfterJSON:    productAuditJSON(after),
		CreatedAt:    time.Now(),
	}
	if err := r.AuditLogs().Create(ctx, log); err != nil {
		return newServerError()
	}
	return nil
}

func productAuditJSON(p *model.Product) string {
	if p == nil {
		return ""
	}
	b, err := json.Marshal(productAuditView{
		Name:          p.Name,
		Price:         p.Price,
		CategoryID:    p.CategoryID,
		StockQuantity: p.StockQuantity,
		IsActive:      p.IsActive,
	})
	if err != nil {
		return ""
	}
	return string(b)
}

func toProductOutput(p model.Product) ProductOutput {
	out := ProductOutput{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		CategoryID:    p.CategoryID,
		ImageURL:      p.ImageURL,
		StockQuantity: p.StockQuantity,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.Category != nil {
		out.CategoryName = p.Category.Name
	}
	return out
}
