// Package legacy imports the SQLite database of the single-bot release
// (store.db) into the multi-bot stores.
package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// DefaultPassword is given to an owner account created by the import.
const DefaultPassword = "changeme123"

// Options describe the bot the legacy data is attached to.
type Options struct {
	OwnerEmail    string
	Token         string
	Username      string
	Name          string
	PaymentSlug   string
	PaymentAPIKey string
}

// Summary counts what an import created.
type Summary struct {
	OwnerID       int64
	CreatedOwner  bool
	BotID         int64
	CreatedBot    bool
	Categories    int
	Products      int
	Users         int
	Orders        int
	SkippedOrders int
}

// Open opens an existing legacy database file.
func Open(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("legacy database: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	return db, nil
}

// Importer copies one legacy database into dst.
type Importer struct {
	src *sql.DB
	dst *store.Stores
}

func NewImporter(src *sql.DB, dst *store.Stores) *Importer {
	return &Importer{src: src, dst: dst}
}

// Run attaches the legacy catalog, users and orders to the bot described
// by opts, creating the owner account and the bot when they do not exist.
// Running it twice duplicates catalog rows; users and orders are skipped
// when already present.
func (im *Importer) Run(ctx context.Context, opts Options) (*Summary, error) {
	opts.OwnerEmail = strings.ToLower(strings.TrimSpace(opts.OwnerEmail))
	if opts.OwnerEmail == "" || opts.Token == "" {
		return nil, errors.New("owner email and bot token are required")
	}

	sum := &Summary{}
	if err := im.owner(ctx, opts, sum); err != nil {
		return nil, err
	}
	if err := im.bot(ctx, opts, sum); err != nil {
		return nil, err
	}

	cats, err := im.categories(ctx, sum)
	if err != nil {
		return sum, err
	}
	prods, err := im.products(ctx, sum, cats)
	if err != nil {
		return sum, err
	}
	users, err := im.users(ctx, sum)
	if err != nil {
		return sum, err
	}
	if err := im.orders(ctx, sum, prods, users); err != nil {
		return sum, err
	}

	slog.Info("legacy import complete", "bot_id", sum.BotID,
		"categories", sum.Categories, "products", sum.Products,
		"users", sum.Users, "orders", sum.Orders, "skipped_orders", sum.SkippedOrders)
	return sum, nil
}

func (im *Importer) owner(ctx context.Context, opts Options, sum *Summary) error {
	u, err := im.dst.Users.GetByEmail(ctx, opts.OwnerEmail)
	if err == nil {
		sum.OwnerID = u.ID
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("look up owner: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u = &store.User{Email: opts.OwnerEmail, PasswordHash: string(hash), Name: "Owner"}
	if err := im.dst.Users.Create(ctx, u); err != nil {
		return fmt.Errorf("create owner: %w", err)
	}
	sum.OwnerID, sum.CreatedOwner = u.ID, true
	return nil
}

func (im *Importer) bot(ctx context.Context, opts Options, sum *Summary) error {
	cfg := &store.BotConfig{
		OwnerID:       sum.OwnerID,
		Name:          opts.Name,
		Username:      strings.TrimPrefix(opts.Username, "@"),
		Type:          store.BotTypeStore,
		Token:         opts.Token,
		PaymentSlug:   opts.PaymentSlug,
		PaymentAPIKey: opts.PaymentAPIKey,
		IsActive:      true,
	}
	err := im.dst.Bots.Create(ctx, cfg)
	if err == nil {
		sum.BotID, sum.CreatedBot = cfg.ID, true
		return nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("create bot: %w", err)
	}

	owned, err := im.dst.Bots.ListByOwner(ctx, sum.OwnerID)
	if err != nil {
		return fmt.Errorf("list owner bots: %w", err)
	}
	for _, b := range owned {
		if b.Token == opts.Token {
			sum.BotID = b.ID
			return nil
		}
	}
	return errors.New("bot token is registered to another account")
}

func (im *Importer) categories(ctx context.Context, sum *Summary) (map[int64]int64, error) {
	rows, err := im.src.QueryContext(ctx,
		`SELECT id, name, COALESCE(description, ''), is_active, COALESCE(sort_order, 0) FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]int64)
	for rows.Next() {
		var old int64
		c := store.Category{BotID: sum.BotID}
		if err := rows.Scan(&old, &c.Name, &c.Description, &c.IsActive, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		if err := im.dst.Catalog.CreateCategory(ctx, &c); err != nil {
			return nil, fmt.Errorf("create category %q: %w", c.Name, err)
		}
		ids[old] = c.ID
		sum.Categories++
	}
	return ids, rows.Err()
}

// products copies each product; its single content field becomes one
// stock item.
func (im *Importer) products(ctx context.Context, sum *Summary, cats map[int64]int64) (map[int64]int64, error) {
	rows, err := im.src.QueryContext(ctx,
		`SELECT id, category_id, name, COALESCE(description, ''), price,
		        COALESCE(content_type, 'text'), COALESCE(content, ''), is_active
		   FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read products: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]int64)
	for rows.Next() {
		var (
			old     int64
			catID   sql.NullInt64
			content string
		)
		p := store.Product{BotID: sum.BotID}
		if err := rows.Scan(&old, &catID, &p.Name, &p.Description, &p.Price, &p.ContentType, &content, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if catID.Valid {
			if id, ok := cats[catID.Int64]; ok {
				p.CategoryID = &id
			}
		}
		if err := im.dst.Catalog.CreateProduct(ctx, &p); err != nil {
			return nil, fmt.Errorf("create product %q: %w", p.Name, err)
		}
		if content != "" {
			if _, err := im.dst.Catalog.AddStock(ctx, p.ID, []string{content}); err != nil {
				return nil, fmt.Errorf("stock product %q: %w", p.Name, err)
			}
		}
		ids[old] = p.ID
		sum.Products++
	}
	return ids, rows.Err()
}

func (im *Importer) users(ctx context.Context, sum *Summary) (map[int64]int64, error) {
	rows, err := im.src.QueryContext(ctx,
		`SELECT id, telegram_id, COALESCE(username, ''), COALESCE(first_name, '') FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]int64)
	for rows.Next() {
		var old, tgID int64
		var username, firstName string
		if err := rows.Scan(&old, &tgID, &username, &firstName); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u, err := im.dst.BotUsers.GetOrCreate(ctx, sum.BotID, tgID, username, firstName)
		if err != nil {
			return nil, fmt.Errorf("create bot user %d: %w", tgID, err)
		}
		ids[old] = u.ID
		sum.Users++
	}
	return ids, rows.Err()
}

// orders copies orders whose product and buyer were imported. Legacy
// creation times are not preserved.
func (im *Importer) orders(ctx context.Context, sum *Summary, prods, users map[int64]int64) error {
	rows, err := im.src.QueryContext(ctx,
		`SELECT order_id, product_id, user_id, amount, COALESCE(fee, 0), COALESCE(total, 0),
		        status, COALESCE(payment_method, ''), COALESCE(qris_string, ''), paid_at
		   FROM orders ORDER BY id`)
	if err != nil {
		return fmt.Errorf("read orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			oldProd, oldUser int64
			paidAt           any
		)
		o := store.Order{BotID: sum.BotID, Status: store.OrderPending}
		var status string
		if err := rows.Scan(&o.OrderID, &oldProd, &oldUser, &o.Amount, &o.Fee, &o.Total,
			&status, &o.PaymentMethod, &o.QRISString, &paidAt); err != nil {
			return fmt.Errorf("scan order: %w", err)
		}
		prodID, okProd := prods[oldProd]
		userID, okUser := users[oldUser]
		if !okProd || !okUser {
			sum.SkippedOrders++
			continue
		}
		o.ProductID, o.BotUserID = prodID, userID

		err := im.dst.Orders.Create(ctx, &o)
		if errors.Is(err, store.ErrDuplicate) {
			sum.SkippedOrders++
			continue
		}
		if err != nil {
			return fmt.Errorf("create order %s: %w", o.OrderID, err)
		}
		if err := im.settle(ctx, o.OrderID, status, paidAt); err != nil {
			return err
		}
		sum.Orders++
	}
	return rows.Err()
}

func (im *Importer) settle(ctx context.Context, orderID, status string, paidAt any) error {
	switch status {
	case store.OrderPending, "":
		return nil
	case store.OrderPaid:
		at, ok := parseTime(paidAt)
		if !ok {
			at = time.Now()
		}
		if _, err := im.dst.Orders.MarkPaid(ctx, orderID, at); err != nil {
			return fmt.Errorf("mark order %s paid: %w", orderID, err)
		}
		return nil
	default:
		if err := im.dst.Orders.SetStatus(ctx, orderID, status); err != nil {
			return fmt.Errorf("set order %s status: %w", orderID, err)
		}
		return nil
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999",
}

// parseTime accepts what SQLite hands back for a timestamp column.
func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case []byte:
		return parseTime(string(t))
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
