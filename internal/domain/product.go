package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category is the closed set of product groups shown in the catalog
type Category string

const (
	CategoryPuff     Category = "puff"
	CategoryCake     Category = "cake"
	CategoryBread    Category = "bread"
	CategoryPastry   Category = "pastry"
	CategoryBeverage Category = "beverage"
	CategoryOther    Category = "other"
)

// Categories lists every valid category in display order
var Categories = []Category{
	CategoryPuff,
	CategoryCake,
	CategoryBread,
	CategoryPastry,
	CategoryBeverage,
	CategoryOther,
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Product is the single mutable source of truth for current stock
type Product struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Stock     int       `json:"stock" db:"stock"`
	Image     string    `json:"image" db:"image"`
	Category  Category  `json:"category" db:"category"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StockUpdate is one entry of an administrative stock override batch
type StockUpdate struct {
	ID    uuid.UUID `json:"id"`
	Stock int       `json:"stock"`
}

// SaleLine is a requested sale quantity for one product
type SaleLine struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// CategorySummary counts the products and units on hand in one category
type CategorySummary struct {
	Category     Category `json:"category" db:"category"`
	ProductCount int      `json:"productCount" db:"product_count"`
	TotalStock   int      `json:"totalStock" db:"total_stock"`
}
