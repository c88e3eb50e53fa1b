package shop

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/botfleet/internal/convstate"
	"github.com/nextlevelbuilder/botfleet/internal/format"
	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// Dialog flows and their steps.
const (
	flowCategory = "category"
	flowProduct  = "product"

	stepName        = "name"
	stepDescription = "description"
	stepPrice       = "price"
	stepStock       = "stock"
)

// dialog is the in-progress admin form, persisted between messages.
type dialog struct {
	Flow        string `json:"flow"`
	Step        string `json:"step"`
	CategoryID  int64  `json:"category_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price,omitempty"`
}

func dialogKey(botID, userID int64) string {
	return convstate.Key(botID, userID) + "/shop"
}

var cancelKeyboard = messaging.Keyboard{
	messaging.Row(messaging.Button{Text: "❌ Batal", Data: "admin_cancel"}),
}

func (h *handler) saveDialog(ctx context.Context, req *messaging.Request, d dialog) error {
	if err := h.env.State.Put(ctx, dialogKey(h.env.Config.ID, req.UserID()), d); err != nil {
		return fmt.Errorf("save dialog: %w", err)
	}
	return nil
}

func (h *handler) endDialog(ctx context.Context, req *messaging.Request) error {
	if err := h.env.State.Delete(ctx, dialogKey(h.env.Config.ID, req.UserID())); err != nil {
		return fmt.Errorf("clear dialog: %w", err)
	}
	return nil
}

func (h *handler) adminMenu(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	kb := messaging.Keyboard{
		messaging.Row(
			messaging.Button{Text: "📁 Kategori", Data: "admin_categories"},
			messaging.Button{Text: "📦 Produk", Data: "admin_products"},
		),
		messaging.Row(
			messaging.Button{Text: "📋 Pesanan", Data: "admin_orders"},
			messaging.Button{Text: "📊 Statistik", Data: "admin_stats"},
		),
		messaging.Row(messaging.Button{Text: "◀️ Kembali", Data: "back_menu"}),
	}
	return req.Show(ctx, "🔧 *Panel Admin*\n\nPilih menu untuk mengelola toko:", true, kb)
}

func activeMark(active bool) string {
	if active {
		return "✅"
	}
	return "❌"
}

func toggleButton(active bool, data string) messaging.Button {
	if active {
		return messaging.Button{Text: "❌ Nonaktifkan", Data: data}
	}
	return messaging.Button{Text: "✅ Aktifkan", Data: data}
}

func statusText(active bool) string {
	if active {
		return "Aktif ✅"
	}
	return "Nonaktif ❌"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ---- categories ----

func (h *handler) adminCategories(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	return h.showCategories(ctx, req)
}

func (h *handler) showCategories(ctx context.Context, req *messaging.Request) error {
	cats, err := h.env.Stores.Catalog.ListCategories(ctx, h.env.Config.ID, false)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	var kb messaging.Keyboard
	for _, c := range cats {
		kb = append(kb, messaging.Row(messaging.Button{
			Text: activeMark(c.IsActive) + " " + c.Name,
			Data: fmt.Sprintf("admin_cat_%d", c.ID),
		}))
	}
	kb = append(kb,
		messaging.Row(messaging.Button{Text: "➕ Tambah Kategori", Data: "admin_cat_add"}),
		messaging.Row(messaging.Button{Text: "◀️ Kembali", Data: "menu_admin"}),
	)
	return req.Show(ctx, "📁 *Manajemen Kategori*\n\nPilih kategori untuk mengelola:", true, kb)
}

// ownCategory loads a category of this bot.
func (h *handler) ownCategory(ctx context.Context, id int64) (*store.Category, error) {
	c, err := h.env.Stores.Catalog.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.BotID != h.env.Config.ID {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (h *handler) showCategory(ctx context.Context, req *messaging.Request, id int64) error {
	c, err := h.ownCategory(ctx, id)
	if notFound(err) {
		return req.Show(ctx, "❌ Kategori tidak ditemukan.", false, backKeyboard("admin_categories"))
	}
	if err != nil {
		return fmt.Errorf("get category %d: %w", id, err)
	}
	text := fmt.Sprintf("📁 *%s*\n\n📝 %s\n📊 Status: %s",
		c.Name, orDefault(c.Description, "Tidak ada deskripsi"), statusText(c.IsActive))
	kb := messaging.Keyboard{
		messaging.Row(toggleButton(c.IsActive, fmt.Sprintf("admin_cat_toggle_%d", c.ID))),
		messaging.Row(messaging.Button{Text: "🗑️ Hapus", Data: fmt.Sprintf("admin_cat_del_%d", c.ID)}),
		messaging.Row(messaging.Button{Text: "◀️ Kembali", Data: "admin_categories"}),
	}
	return req.Show(ctx, text, true, kb)
}

func (h *handler) adminCategoryDetail(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	id, ok := suffixID(req, "admin_cat_")
	if !ok {
		return nil
	}
	return h.showCategory(ctx, req, id)
}

func (h *handler) adminCategoryToggle(ctx context.Context, req *messaging.Request) error {
	id, ok := suffixID(req, "admin_cat_toggle_")
	if !ok {
		return req.Answer(ctx, "")
	}
	c, err := h.ownCategory(ctx, id)
	if err != nil {
		_ = req.Answer(ctx, "")
		if notFound(err) {
			return req.Show(ctx, "❌ Kategori tidak ditemukan.", false, backKeyboard("admin_categories"))
		}
		return fmt.Errorf("get category %d: %w", id, err)
	}
	if err := h.env.Stores.Catalog.SetCategoryActive(ctx, id, !c.IsActive); err != nil {
		return fmt.Errorf("toggle category %d: %w", id, err)
	}
	_ = req.Answer(ctx, "✅ Status diperbarui")
	return h.showCategory(ctx, req, id)
}

func (h *handler) adminCategoryDelete(ctx context.Context, req *messaging.Request) error {
	id, ok := suffixID(req, "admin_cat_del_")
	if !ok {
		return req.Answer(ctx, "")
	}
	if _, err := h.ownCategory(ctx, id); err == nil {
		if err := h.env.Stores.Catalog.DeleteCategory(ctx, id); err != nil {
			return fmt.Errorf("delete category %d: %w", id, err)
		}
	}
	_ = req.Answer(ctx, "🗑️ Kategori dihapus")
	return h.showCategories(ctx, req)
}

func (h *handler) adminCategoryAdd(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	if err := h.saveDialog(ctx, req, dialog{Flow: flowCategory, Step: stepName}); err != nil {
		return err
	}
	return req.Show(ctx, "📁 *Tambah Kategori Baru*\n\nMasukkan nama kategori:", true, cancelKeyboard)
}

// ---- products ----

func (h *handler) adminProducts(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	return h.showProducts(ctx, req)
}

func (h *handler) showProducts(ctx context.Context, req *messaging.Request) error {
	products, err := h.env.Stores.Catalog.ListProducts(ctx, h.env.Config.ID, false)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	var kb messaging.Keyboard
	for _, p := range products {
		stock := "∞"
		if p.Stock != store.UnlimitedStock {
			stock = fmt.Sprint(p.Stock)
		}
		kb = append(kb, messaging.Row(messaging.Button{
			Text: fmt.Sprintf("%s %s [%s]", activeMark(p.IsActive), format.Truncate(p.Name, 40), stock),
			Data: fmt.Sprintf("admin_prod_%d", p.ID),
		}))
	}
	kb = append(kb,
		messaging.Row(messaging.Button{Text: "➕ Tambah Produk", Data: "admin_prod_add"}),
		messaging.Row(messaging.Button{Text: "◀️ Kembali", Data: "menu_admin"}),
	)
	return req.Show(ctx, "📦 *Manajemen Produk*\n\nPilih produk untuk mengelola:", true, kb)
}

func (h *handler) ownProduct(ctx context.Context, id int64) (*store.Product, error) {
	p, err := h.env.Stores.Catalog.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.BotID != h.env.Config.ID {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (h *handler) showProduct(ctx context.Context, req *messaging.Request, id int64) error {
	p, err := h.ownProduct(ctx, id)
	if notFound(err) {
		return req.Show(ctx, "❌ Produk tidak ditemukan.", false, backKeyboard("admin_products"))
	}
	if err != nil {
		return fmt.Errorf("get product %d: %w", id, err)
	}
	text := fmt.Sprintf("📦 *%s*\n\n📝 %s\n💰 Harga: %s\n📊 Status: %s\n📦 Stok: %s",
		p.Name, orDefault(p.Description, "Tidak ada deskripsi"), format.Rupiah(p.Price),
		statusText(p.IsActive), stockLabel(p.Stock))
	kb := messaging.Keyboard{
		messaging.Row(toggleButton(p.IsActive, fmt.Sprintf("admin_prod_toggle_%d", p.ID))),
		messaging.Row(messaging.Button{Text: "🗑️ Hapus", Data: fmt.Sprintf("admin_prod_del_%d", p.ID)}),
		messaging.Row(messaging.Button{Text: "◀️ Kembali", Data: "admin_products"}),
	}
	return req.Show(ctx, text, true, kb)
}

func (h *handler) adminProductDetail(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	id, ok := suffixID(req, "admin_prod_")
	if !ok {
		return nil
	}
	return h.showProduct(ctx, req, id)
}

func (h *handler) adminProductToggle(ctx context.Context, req *messaging.Request) error {
	id, ok := suffixID(req, "admin_prod_toggle_")
	if !ok {
		return req.Answer(ctx, "")
	}
	p, err := h.ownProduct(ctx, id)
	if err != nil {
		_ = req.Answer(ctx, "")
		if notFound(err) {
			return req.Show(ctx, "❌ Produk tidak ditemukan.", false, backKeyboard("admin_products"))
		}
		return fmt.Errorf("get product %d: %w", id, err)
	}
	if err := h.env.Stores.Catalog.SetProductActive(ctx, id, !p.IsActive); err != nil {
		return fmt.Errorf("toggle product %d: %w", id, err)
	}
	_ = req.Answer(ctx, "✅ Status diperbarui")
	return h.showProduct(ctx, req, id)
}

func (h *handler) adminProductDelete(ctx context.Context, req *messaging.Request) error {
	id, ok := suffixID(req, "admin_prod_del_")
	if !ok {
		return req.Answer(ctx, "")
	}
	if _, err := h.ownProduct(ctx, id); err == nil {
		if err := h.env.Stores.Catalog.DeleteProduct(ctx, id); err != nil {
			return fmt.Errorf("delete product %d: %w", id, err)
		}
	}
	_ = req.Answer(ctx, "🗑️ Produk dihapus")
	return h.showProducts(ctx, req)
}

func (h *handler) adminProductAdd(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	cats, err := h.env.Stores.Catalog.ListCategories(ctx, h.env.Config.ID, false)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	if len(cats) == 0 {
		return req.Show(ctx, "❌ Tidak ada kategori. Buat kategori terlebih dahulu.", false, backKeyboard("admin_products"))
	}
	var kb messaging.Keyboard
	for _, c := range cats {
		kb = append(kb, messaging.Row(messaging.Button{Text: "📁 " + c.Name, Data: fmt.Sprintf("addprod_cat_%d", c.ID)}))
	}
	kb = append(kb, cancelKeyboard...)
	return req.Show(ctx, "📦 *Tambah Produk Baru*\n\nPilih kategori produk:", true, kb)
}

func (h *handler) adminProductCategory(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	id, ok := suffixID(req, "addprod_cat_")
	if !ok {
		return nil
	}
	if _, err := h.ownCategory(ctx, id); err != nil {
		if notFound(err) {
			return req.Show(ctx, "❌ Kategori tidak ditemukan.", false, backKeyboard("admin_products"))
		}
		return fmt.Errorf("get category %d: %w", id, err)
	}
	if err := h.saveDialog(ctx, req, dialog{Flow: flowProduct, Step: stepName, CategoryID: id}); err != nil {
		return err
	}
	return req.Show(ctx, "📝 Masukkan nama produk:", false, cancelKeyboard)
}

func (h *handler) adminCancel(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	if err := h.endDialog(ctx, req); err != nil {
		return err
	}
	return req.Show(ctx, "❌ Operasi dibatalkan.", false, backKeyboard("menu_admin"))
}

// dialogText advances whichever admin form the user has open. Text from
// users without an open form is ignored.
func (h *handler) dialogText(ctx context.Context, req *messaging.Request) error {
	var d dialog
	ok, err := h.env.State.Get(ctx, dialogKey(h.env.Config.ID, req.UserID()), &d)
	if err != nil {
		return fmt.Errorf("load dialog: %w", err)
	}
	if !ok {
		return nil
	}
	text := strings.TrimSpace(req.Update.Text)

	switch d.Flow {
	case flowCategory:
		return h.categoryStep(ctx, req, d, text)
	case flowProduct:
		return h.productStep(ctx, req, d, text)
	}
	return h.endDialog(ctx, req)
}

func skippable(text string) string {
	if text == "-" {
		return ""
	}
	return text
}

func (h *handler) categoryStep(ctx context.Context, req *messaging.Request, d dialog, text string) error {
	switch d.Step {
	case stepName:
		d.Name, d.Step = text, stepDescription
		if err := h.saveDialog(ctx, req, d); err != nil {
			return err
		}
		return req.Reply(ctx, "📝 Masukkan deskripsi kategori (atau ketik '-' untuk skip):", cancelKeyboard)

	case stepDescription:
		c := &store.Category{BotID: h.env.Config.ID, Name: d.Name, Description: skippable(text), IsActive: true}
		if err := h.env.Stores.Catalog.CreateCategory(ctx, c); err != nil {
			return fmt.Errorf("create category: %w", err)
		}
		if err := h.endDialog(ctx, req); err != nil {
			return err
		}
		return req.ReplyMarkdown(ctx, fmt.Sprintf("✅ Kategori *%s* berhasil ditambahkan!", c.Name), backKeyboard("admin_categories"))
	}
	return h.endDialog(ctx, req)
}

func (h *handler) productStep(ctx context.Context, req *messaging.Request, d dialog, text string) error {
	switch d.Step {
	case stepName:
		d.Name, d.Step = text, stepDescription
		if err := h.saveDialog(ctx, req, d); err != nil {
			return err
		}
		return req.Reply(ctx, "📝 Masukkan deskripsi produk (atau '-' untuk skip):", cancelKeyboard)

	case stepDescription:
		d.Description, d.Step = skippable(text), stepPrice
		if err := h.saveDialog(ctx, req, d); err != nil {
			return err
		}
		return req.Reply(ctx, "💰 Masukkan harga produk (angka saja, contoh: 15000):", cancelKeyboard)

	case stepPrice:
		price, ok := format.ParseAmount(text)
		if !ok || price < 0 {
			return req.Reply(ctx, "❌ Harga tidak valid. Masukkan angka saja:", nil)
		}
		d.Price, d.Step = price, stepStock
		if err := h.saveDialog(ctx, req, d); err != nil {
			return err
		}
		return req.Reply(ctx, "📦 Masukkan stok produk (satu item per baris):\n\n"+
			"Contoh:\nakun1@email.com:pass123\nakun2@email.com:pass456", cancelKeyboard)

	case stepStock:
		catID := d.CategoryID
		p := &store.Product{
			BotID:       h.env.Config.ID,
			CategoryID:  &catID,
			Name:        d.Name,
			Description: d.Description,
			Price:       d.Price,
			ContentType: "text",
			IsActive:    true,
		}
		if err := h.env.Stores.Catalog.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		added, err := h.env.Stores.Catalog.AddStock(ctx, p.ID, strings.Split(req.Update.Text, "\n"))
		if err != nil {
			return fmt.Errorf("add stock: %w", err)
		}
		if err := h.endDialog(ctx, req); err != nil {
			return err
		}
		return req.ReplyMarkdown(ctx, fmt.Sprintf("✅ Produk *%s* berhasil ditambahkan!\n📦 %d stok ditambahkan.", p.Name, added),
			backKeyboard("admin_products"))
	}
	return h.endDialog(ctx, req)
}

// ---- reports ----

func (h *handler) adminOrders(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	orders, err := h.env.Stores.Orders.ListByBot(ctx, h.env.Config.ID, 10)
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	if len(orders) == 0 {
		return req.Show(ctx, "📋 *Pesanan*\n\n📭 Belum ada pesanan.", true, backKeyboard("menu_admin"))
	}
	return req.Show(ctx, "📋 *Pesanan Terbaru*\n\n"+orderLines(orders), true, backKeyboard("menu_admin"))
}

func (h *handler) adminStats(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	st, err := h.env.Stores.Orders.BotStats(ctx, h.env.Config.ID)
	if err != nil {
		return fmt.Errorf("bot stats: %w", err)
	}
	text := fmt.Sprintf("📊 *Statistik Toko*\n\n📦 Produk: %d\n👥 User: %d\n🛒 Pesanan: %d\n💰 Total Revenue: %s",
		st.TotalProducts, st.TotalUsers, st.TotalOrders, format.Rupiah(st.TotalRevenue))
	return req.Show(ctx, text, true, backKeyboard("menu_admin"))
}
