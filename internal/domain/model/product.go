package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 商品。削除はis_active=falseにするだけ
type Product struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	Description   string          `gorm:"type:text" json:"description"`
	Price         decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	CategoryID    *int64          `gorm:"index" json:"categoryId"`
	Category      *Category       `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"-"`
	ImageURL      string          `gorm:"type:varchar(500)" json:"imageUrl"`
	StockQuantity int64           `gorm:"not null;default:0;check:stock_quantity >= 0" json:"stockQuantity"`
	IsActive      bool            `gorm:"not null;default:true;index" json:"isActive"`
	CreatedAt     time.Time       `gorm:"not null;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"not null;autoUpdateTime" json:"updatedAt"`
}
