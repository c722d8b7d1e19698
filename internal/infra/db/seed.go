package db

import (
	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 開発用のサンプルデータ。カテゴリが1件でもあれば何もしない
func Seed(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.Category{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		categories := []model.Category{
			{Name: "Electronics", Description: "Electronic devices and accessories"},
			{Name: "Clothing", Description: "Fashion and apparel"},
			{Name: "Books", Description: "Books and educational materials"},
			{Name: "Home & Garden", Description: "Home improvement and garden supplies"},
		}
		if err := tx.Create(&categories).Error; err != nil {
			return err
		}

		cat := func(i int) *int64 { return &categories[i].ID }
		price := decimal.RequireFromString

		products := []model.Product{
			{Name: "Wireless Headphones", Description: "High-quality wireless headphones with noise cancellation", Price: price("199.99"), CategoryID: cat(0), StockQuantity: 50, IsActive: true, ImageURL: "https://images.unsplash.com/photo-1505740420928-5e560c06d30e?w=500"},
			{Name: "Smartphone", Description: "Latest model smartphone with advanced features", Price: price("899.99"), CategoryID: cat(0), StockQuantity: 25, IsActive: true, ImageURL: "https://images.unsplash.com/photo-1511707171634-5f897ff02aa9?w=500"},
			{Name: "Laptop", Description: "High-performance laptop for work and gaming", Price: price("1299.99"), CategoryID: cat(0), StockQuantity: 15, IsActive: true, ImageURL: "https://images.unsplash.com/photo-1496181133206-80ce9b88a853?w=500"},
			{Name: "Cotton T-Shirt", Description: "Comfortable cotton t-shirt in various colors", Price: price("29.99"), CategoryID: cat(1), StockQuantity: 100, IsActive: true, ImageURL: "https://images.unsplash.com/photo-1521572163474-6864f9cf17ab?w=500"},
			{Name: "Jeans", Description: "Classic blue jeans with modern fit", Price: price("79.99"), CategoryID: cat(1), StockQuantity: 75, IsActive: true, ImageURL: "https://images.unsplash.com/photo-1542272604-787c3835535d?w=500"},
			{Name: "Programming Book", Description: "Comprehensive guide to modern programming", Price: price("49.99"), CategoryID: cat(2), StockQuantity: 30, IsActive: true, ImageURL: "https://images.unsplash.com/photo-1481627834876-b7833e8f5570?w=500"},
			{Name: "Garden Tools Set", Description: "Complete set of gardening tools", Price: price("89.99"), CategoryID: cat(3), StockQuantity: 20, IsActive: true, ImageURL: "https://images.unsplash.com/photo-1416879595882-3373a0480b5b?w=500"},
		}
		return tx.Create(&products).Error
	})
}
