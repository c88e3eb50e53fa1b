package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// PGCatalogStore implements store.CatalogStore backed by Postgres.
type PGCatalogStore struct {
	db *sql.DB
}

func NewPGCatalogStore(db *sql.DB) *PGCatalogStore {
	return &PGCatalogStore{db: db}
}

const categorySelectCols = `id, bot_id, name, description, is_active, sort_order, created_at`

// Stock is derived: unlimited products report -1, others count unsold rows.
const productSelectCols = `p.id, p.bot_id, p.category_id, COALESCE(c.name, ''), p.name, p.description, p.price,
	p.content_type, p.unlimited, p.content, p.is_active,
	CASE WHEN p.unlimited THEN -1 ELSE (SELECT COUNT(*) FROM product_stock ps WHERE ps.product_id = p.id AND NOT ps.is_sold) END,
	(SELECT COUNT(*) FROM orders o WHERE o.product_id = p.id AND o.status = 'paid'),
	p.created_at`

const productFrom = ` FROM products p LEFT JOIN categories c ON c.id = p.category_id`

func (s *PGCatalogStore) ListCategories(ctx context.Context, botID int64, activeOnly bool) ([]store.Category, error) {
	q := `SELECT ` + categorySelectCols + ` FROM categories WHERE bot_id = $1`
	if activeOnly {
		q += ` AND is_active = true`
	}
	q += ` ORDER BY sort_order, name`
	rows, err := s.db.QueryContext(ctx, q, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []store.Category
	for rows.Next() {
		c, err := scanCategoryRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *PGCatalogStore) GetCategory(ctx context.Context, id int64) (*store.Category, error) {
	c, err := scanCategoryRow(s.db.QueryRowContext(ctx,
		`SELECT `+categorySelectCols+` FROM categories WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *PGCatalogStore) CreateCategory(ctx context.Context, c *store.Category) error {
	return s.db.QueryRowContext(ctx,
		`INSERT INTO categories (bot_id, name, description, is_active, sort_order)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		c.BotID, c.Name, c.Description, c.IsActive, c.SortOrder,
	).Scan(&c.ID, &c.CreatedAt)
}

func (s *PGCatalogStore) SetCategoryActive(ctx context.Context, id int64, active bool) error {
	return execOne(ctx, s.db, `UPDATE categories SET is_active = $1 WHERE id = $2`, active, id)
}

func (s *PGCatalogStore) DeleteCategory(ctx context.Context, id int64) error {
	return execOne(ctx, s.db, `DELETE FROM categories WHERE id = $1`, id)
}

func (s *PGCatalogStore) ListProducts(ctx context.Context, botID int64, activeOnly bool) ([]store.Product, error) {
	q := `SELECT ` + productSelectCols + productFrom + ` WHERE p.bot_id = $1`
	if activeOnly {
		q += ` AND p.is_active = true`
	}
	q += ` ORDER BY p.created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, botID)
	if err != nil {
		return nil, err
	}
	return scanProducts(rows)
}

func (s *PGCatalogStore) ListProductsByCategory(ctx context.Context, categoryID, botID int64) ([]store.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productSelectCols+productFrom+
			` WHERE p.category_id = $1 AND p.bot_id = $2 AND p.is_active = true ORDER BY p.name`,
		categoryID, botID)
	if err != nil {
		return nil, err
	}
	return scanProducts(rows)
}

func (s *PGCatalogStore) GetProduct(ctx context.Context, id int64) (*store.Product, error) {
	p, err := scanProductRow(s.db.QueryRowContext(ctx,
		`SELECT `+productSelectCols+productFrom+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *PGCatalogStore) CreateProduct(ctx context.Context, p *store.Product) error {
	if p.ContentType == "" {
		p.ContentType = "text"
	}
	return s.db.QueryRowContext(ctx,
		`INSERT INTO products (bot_id, category_id, name, description, price, content_type, unlimited, content, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`,
		p.BotID, nilInt64(p.CategoryID), p.Name, p.Description, p.Price, p.ContentType, p.Unlimited, p.Content, p.IsActive,
	).Scan(&p.ID, &p.CreatedAt)
}

func (s *PGCatalogStore) SetProductActive(ctx context.Context, id int64, active bool) error {
	return execOne(ctx, s.db, `UPDATE products SET is_active = $1 WHERE id = $2`, active, id)
}

func (s *PGCatalogStore) DeleteProduct(ctx context.Context, id int64) error {
	return execOne(ctx, s.db, `DELETE FROM products WHERE id = $1`, id)
}

func (s *PGCatalogStore) AddStock(ctx context.Context, productID int64, items []string) (int, error) {
	clean := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			clean = append(clean, it)
		}
	}
	if len(clean) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO product_stock (product_id, content) SELECT $1, unnest($2::text[])`,
		productID, pqStringArray(clean))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PGCatalogStore) TakeStock(ctx context.Context, productID int64, orderID string) (*store.StockItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var unlimited bool
	var content string
	if err := tx.QueryRowContext(ctx,
		`SELECT unlimited, content FROM products WHERE id = $1`, productID,
	).Scan(&unlimited, &content); err != nil {
		return nil, notFound(err)
	}
	if unlimited {
		return &store.StockItem{ProductID: productID, Content: content}, nil
	}

	item := store.StockItem{ProductID: productID}
	err = tx.QueryRowContext(ctx,
		`SELECT id, content FROM product_stock
		 WHERE product_id = $1 AND NOT is_sold
		 ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED`, productID,
	).Scan(&item.ID, &item.Content)
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE product_stock SET is_sold = true, order_id = $1, sold_at = $2 WHERE id = $3`,
		orderID, time.Now(), item.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *PGCatalogStore) StockCount(ctx context.Context, productID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT CASE WHEN p.unlimited THEN -1 ELSE
		   (SELECT COUNT(*) FROM product_stock ps WHERE ps.product_id = p.id AND NOT ps.is_sold) END
		 FROM products p WHERE p.id = $1`, productID).Scan(&n)
	if err != nil {
		return 0, notFound(err)
	}
	return n, nil
}

func scanCategoryRow(row rowScanner) (store.Category, error) {
	var c store.Category
	err := row.Scan(&c.ID, &c.BotID, &c.Name, &c.Description, &c.IsActive, &c.SortOrder, &c.CreatedAt)
	return c, err
}

func scanProductRow(row rowScanner) (store.Product, error) {
	var p store.Product
	var categoryID sql.NullInt64
	err := row.Scan(&p.ID, &p.BotID, &categoryID, &p.CategoryName, &p.Name, &p.Description, &p.Price,
		&p.ContentType, &p.Unlimited, &p.Content, &p.IsActive, &p.Stock, &p.Sold, &p.CreatedAt)
	p.CategoryID = int64Ptr(categoryID)
	return p, err
}

func scanProducts(rows *sql.Rows) ([]store.Product, error) {
	defer rows.Close()
	var result []store.Product
	for rows.Next() {
		p, err := scanProductRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// execOne runs a statement that must touch exactly one row.
func execOne(ctx context.Context, db *sql.DB, q string, args ...any) error {
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
