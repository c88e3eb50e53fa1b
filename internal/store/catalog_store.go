package store

import (
	"context"
	"time"
)

// UnlimitedStock marks a product that never runs out.
const UnlimitedStock = -1

type Category struct {
	ID          int64     `json:"id"`
	BotID       int64     `json:"bot_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
}

// Product is a sellable item. Stock is the count of unsold stock items,
// or UnlimitedStock when the product delivers the same content forever.
type Product struct {
	ID           int64     `json:"id"`
	BotID        int64     `json:"bot_id"`
	CategoryID   *int64    `json:"category_id"`
	CategoryName string    `json:"category_name,omitempty"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Price        int64     `json:"price"`
	ContentType  string    `json:"content_type"`
	Unlimited    bool      `json:"unlimited"`
	Content      string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	Stock        int       `json:"stock"`
	Sold         int       `json:"sold"`
	CreatedAt    time.Time `json:"created_at"`
}

// StockItem is one deliverable unit taken from a product's stock.
type StockItem struct {
	ID        int64
	ProductID int64
	Content   string
}

// CatalogStore manages categories, products and their stock.
type CatalogStore interface {
	ListCategories(ctx context.Context, botID int64, activeOnly bool) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	SetCategoryActive(ctx context.Context, id int64, active bool) error
	DeleteCategory(ctx context.Context, id int64) error

	ListProducts(ctx context.Context, botID int64, activeOnly bool) ([]Product, error)
	ListProductsByCategory(ctx context.Context, categoryID, botID int64) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	SetProductActive(ctx context.Context, id int64, active bool) error
	DeleteProduct(ctx context.Context, id int64) error

	// AddStock inserts one stock row per non-blank item and returns how many were added.
	AddStock(ctx context.Context, productID int64, items []string) (int, error)
	// TakeStock claims one unsold item for the order. Unlimited products
	// return their shared content. ErrNotFound means the product is sold out.
	TakeStock(ctx context.Context, productID int64, orderID string) (*StockItem, error)
	StockCount(ctx context.Context, productID int64) (int, error)
}
