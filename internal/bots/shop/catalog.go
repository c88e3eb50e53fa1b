package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/botfleet/internal/format"
	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/payment"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// newOrderID returns "ORD-" followed by 12 upper-case hex digits.
func newOrderID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(hex[:12])
}

func stockLabel(stock int) string {
	switch {
	case stock == store.UnlimitedStock:
		return "Unlimited"
	case stock > 0:
		return fmt.Sprintf("%d tersedia", stock)
	default:
		return "❌ Stok habis"
	}
}

func (h *handler) catalog(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	cats, err := h.env.Stores.Catalog.ListCategories(ctx, h.env.Config.ID, true)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}

	var kb messaging.Keyboard
	for _, c := range cats {
		kb = append(kb, messaging.Row(messaging.Button{Text: "📁 " + c.Name, Data: fmt.Sprintf("cat_%d", c.ID)}))
	}
	kb = append(kb, backKeyboard("back_menu")...)

	if len(cats) == 0 {
		return req.Show(ctx, "📭 *Katalog Kosong*\n\nBelum ada kategori produk tersedia.", true, kb)
	}
	return req.Show(ctx, "📦 *Katalog Produk*\n\nPilih kategori di bawah ini:", true, kb)
}

func (h *handler) category(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	id, ok := suffixID(req, "cat_")
	if !ok {
		return nil
	}
	cat, err := h.env.Stores.Catalog.GetCategory(ctx, id)
	if notFound(err) || (err == nil && cat.BotID != h.env.Config.ID) {
		return req.Show(ctx, "❌ Kategori tidak ditemukan.", false, backKeyboard("menu_catalog"))
	}
	if err != nil {
		return fmt.Errorf("get category %d: %w", id, err)
	}
	products, err := h.env.Stores.Catalog.ListProductsByCategory(ctx, id, h.env.Config.ID)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	var kb messaging.Keyboard
	for _, p := range products {
		label := fmt.Sprintf("%s - %s", p.Name, format.Rupiah(p.Price))
		kb = append(kb, messaging.Row(messaging.Button{Text: label, Data: fmt.Sprintf("prod_%d", p.ID)}))
	}
	kb = append(kb, backKeyboard("menu_catalog")...)

	var text string
	if len(products) == 0 {
		text = fmt.Sprintf("📁 *%s*\n\n📭 Tidak ada produk dalam kategori ini.", cat.Name)
	} else {
		text = fmt.Sprintf("📁 *%s*\n%s\n\n📦 *%d produk tersedia:*", cat.Name, cat.Description, len(products))
	}
	return req.Show(ctx, text, true, kb)
}

func (h *handler) product(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	id, ok := suffixID(req, "prod_")
	if !ok {
		return nil
	}
	p, err := h.env.Stores.Catalog.GetProduct(ctx, id)
	if notFound(err) || (err == nil && (p.BotID != h.env.Config.ID || !p.IsActive)) {
		return req.Show(ctx, "❌ Produk tidak ditemukan.", false, backKeyboard("menu_catalog"))
	}
	if err != nil {
		return fmt.Errorf("get product %d: %w", id, err)
	}

	desc := p.Description
	if desc == "" {
		desc = "Tidak ada deskripsi."
	}
	text := fmt.Sprintf("🛍️ *%s*\n\n%s\n\n💰 *Harga:* %s\n📦 *Stok:* %s",
		p.Name, desc, format.Rupiah(p.Price), stockLabel(p.Stock))

	back := "menu_catalog"
	if p.CategoryID != nil {
		back = fmt.Sprintf("cat_%d", *p.CategoryID)
	}
	if p.Stock == 0 {
		return req.Show(ctx, text+"\n\n⚠️ *Maaf, produk ini sedang tidak tersedia.*", true, backKeyboard(back))
	}
	kb := messaging.Keyboard{
		messaging.Row(messaging.Button{Text: "🛒 Beli Sekarang", Data: fmt.Sprintf("buy_%d", p.ID)}),
		messaging.Row(messaging.Button{Text: "◀️ Kembali", Data: back}),
	}
	return req.Show(ctx, text, true, kb)
}

func (h *handler) buy(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	id, ok := suffixID(req, "buy_")
	if !ok {
		return nil
	}
	p, err := h.env.Stores.Catalog.GetProduct(ctx, id)
	if notFound(err) || (err == nil && (p.BotID != h.env.Config.ID || !p.IsActive)) {
		return req.Show(ctx, "❌ Produk tidak ditemukan.", false, backKeyboard("menu_catalog"))
	}
	if err != nil {
		return fmt.Errorf("get product %d: %w", id, err)
	}
	if p.Stock == 0 {
		return req.Show(ctx, "❌ Stok habis. Silakan pilih produk lain.", false, backKeyboard("menu_catalog"))
	}

	pay := h.env.Payment()
	if pay == nil || !pay.Configured() {
		return req.Show(ctx, "⚠️ Pembayaran belum tersedia untuk toko ini. Silakan hubungi admin.", false, backKeyboard("back_menu"))
	}

	buyer, err := h.registerUser(ctx, req)
	if err != nil {
		return err
	}
	order := &store.Order{
		BotID:     h.env.Config.ID,
		BotUserID: buyer.ID,
		ProductID: p.ID,
		OrderID:   newOrderID(),
		Amount:    p.Price,
		Total:     p.Price,
		Status:    store.OrderPending,
	}
	if err := h.env.Stores.Orders.Create(ctx, order); err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	tx, err := pay.CreateTransaction(ctx, order.OrderID, order.Amount, payment.MethodQRIS)
	if err != nil {
		slog.Error("create payment failed", "bot_id", h.env.Config.ID, "order_id", order.OrderID, "error", err)
		if serr := h.env.Stores.Orders.SetStatus(ctx, order.OrderID, store.OrderCancelled); serr != nil {
			slog.Warn("failed to cancel order", "order_id", order.OrderID, "error", serr)
		}
		return req.Show(ctx, "❌ Gagal membuat pembayaran. Silakan coba lagi nanti.", false, backKeyboard("back_menu"))
	}

	details := store.PaymentDetails{
		Fee:           tx.Fee,
		Total:         tx.TotalPayment,
		PaymentMethod: tx.PaymentMethod,
		QRISString:    tx.PaymentNumber,
	}
	expiry := ""
	if exp, ok := tx.ExpiresAt(); ok {
		details.ExpiredAt = &exp
		expiry = fmt.Sprintf("\n⏰ Berlaku sampai: %s", exp.Format("15:04 02/01/2006"))
	}
	if err := h.env.Stores.Orders.UpdatePayment(ctx, order.OrderID, details); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}

	text := fmt.Sprintf("🧾 *Pesanan Dibuat*\n\n"+
		"🆔 `%s`\n📦 %s\n💰 Harga: %s\n💳 Biaya: %s\n💵 *Total: %s*%s\n\n"+
		"Scan QRIS berikut untuk membayar:\n`%s`\n\n"+
		"Setelah membayar, tekan *Cek Pembayaran*.",
		order.OrderID, p.Name, format.Rupiah(order.Amount), format.Rupiah(tx.Fee),
		format.Rupiah(tx.TotalPayment), expiry, tx.PaymentNumber)
	kb := messaging.Keyboard{
		messaging.Row(messaging.Button{Text: "🔄 Cek Pembayaran", Data: "check_" + order.OrderID}),
		messaging.Row(messaging.Button{Text: "❌ Batalkan", Data: "cancel_" + order.OrderID}),
	}
	return req.Show(ctx, text, true, kb)
}

// userOrder loads an order of the requesting user.
func (h *handler) userOrder(ctx context.Context, req *messaging.Request, orderID string) (*store.Order, error) {
	o, err := h.env.Stores.Orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BotID != h.env.Config.ID || o.TelegramID != req.UserID() {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (h *handler) check(ctx context.Context, req *messaging.Request) error {
	orderID := strings.TrimPrefix(req.Update.CallbackData, "check_")
	o, err := h.userOrder(ctx, req, orderID)
	if notFound(err) {
		_ = req.Answer(ctx, "")
		return req.Show(ctx, "❌ Pesanan tidak ditemukan.", false, backKeyboard("back_menu"))
	}
	if err != nil {
		return fmt.Errorf("get order %s: %w", orderID, err)
	}

	switch o.Status {
	case store.OrderPaid:
		return req.Answer(ctx, "✅ Pesanan sudah dibayar.")
	case store.OrderCancelled, store.OrderExpired:
		_ = req.Answer(ctx, "")
		return req.Show(ctx, fmt.Sprintf("%s Pesanan `%s` sudah %s.", format.StatusEmoji(o.Status), o.OrderID, statusLabel(o.Status)),
			true, backKeyboard("back_menu"))
	}

	pay := h.env.Payment()
	if pay == nil {
		return req.Answer(ctx, "⚠️ Pembayaran tidak tersedia.")
	}
	tx, err := pay.TransactionStatus(ctx, o.OrderID, o.Amount)
	if err != nil {
		slog.Warn("payment status check failed", "order_id", o.OrderID, "error", err)
		return req.Answer(ctx, "❌ Gagal mengecek pembayaran. Coba lagi.")
	}
	if !tx.Completed() {
		return req.Answer(ctx, "⏳ Pembayaran belum diterima.")
	}

	paid, err := h.env.Stores.Orders.MarkPaid(ctx, o.OrderID, h.now())
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	if !paid {
		return req.Answer(ctx, "✅ Pesanan sudah diproses.")
	}
	_ = req.Answer(ctx, "✅ Pembayaran diterima!")
	return h.deliver(ctx, req, o)
}

func (h *handler) deliver(ctx context.Context, req *messaging.Request, o *store.Order) error {
	item, err := h.env.Stores.Catalog.TakeStock(ctx, o.ProductID, o.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Error("paid order without stock", "bot_id", h.env.Config.ID, "order_id", o.OrderID)
		if h.env.OwnerID != 0 {
			_, _ = req.Bot.Send(ctx, messaging.Message{
				ChatID:   h.env.OwnerID,
				Text:     fmt.Sprintf("⚠️ Pesanan `%s` sudah dibayar tetapi stok habis.", o.OrderID),
				Markdown: true,
			})
		}
		return req.Show(ctx, "✅ Pembayaran diterima, tetapi stok sedang habis.\nAdmin akan segera menghubungi Anda.", false, backKeyboard("back_menu"))
	}
	if err != nil {
		return fmt.Errorf("take stock for %s: %w", o.OrderID, err)
	}

	text := fmt.Sprintf("✅ *Pembayaran Berhasil!*\n\n🆔 `%s`\n📦 %s\n\n🎁 *Produk Anda:*\n`%s`\n\nTerima kasih telah berbelanja!",
		o.OrderID, o.ProductName, item.Content)
	return req.Show(ctx, text, true, backKeyboard("back_menu"))
}

func (h *handler) cancelOrder(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	orderID := strings.TrimPrefix(req.Update.CallbackData, "cancel_")
	o, err := h.userOrder(ctx, req, orderID)
	if notFound(err) {
		return req.Show(ctx, "❌ Pesanan tidak ditemukan.", false, backKeyboard("back_menu"))
	}
	if err != nil {
		return fmt.Errorf("get order %s: %w", orderID, err)
	}
	if o.Status != store.OrderPending {
		return req.Show(ctx, fmt.Sprintf("%s Pesanan `%s` tidak dapat dibatalkan.", format.StatusEmoji(o.Status), o.OrderID),
			true, backKeyboard("back_menu"))
	}

	if pay := h.env.Payment(); pay != nil && pay.Configured() {
		if err := pay.CancelTransaction(ctx, o.OrderID, o.Amount); err != nil {
			slog.Warn("cancel payment failed", "order_id", o.OrderID, "error", err)
		}
	}
	if err := h.env.Stores.Orders.SetStatus(ctx, o.OrderID, store.OrderCancelled); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return req.Show(ctx, fmt.Sprintf("❌ Pesanan `%s` dibatalkan.", o.OrderID), true, backKeyboard("back_menu"))
}

func statusLabel(status string) string {
	switch status {
	case store.OrderPending:
		return "menunggu pembayaran"
	case store.OrderPaid:
		return "dibayar"
	case store.OrderCancelled:
		return "dibatalkan"
	case store.OrderExpired:
		return "kedaluwarsa"
	}
	return status
}

func orderLines(orders []store.Order) string {
	var b strings.Builder
	for _, o := range orders {
		fmt.Fprintf(&b, "%s `%s`\n   📦 %s | %s\n\n", format.StatusEmoji(o.Status), o.OrderID, o.ProductName, format.Rupiah(o.Amount))
	}
	return b.String()
}

func (h *handler) myOrders(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	buyer, err := h.registerUser(ctx, req)
	if err != nil {
		return err
	}
	orders, err := h.env.Stores.Orders.ListByUser(ctx, h.env.Config.ID, buyer.ID, 10)
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	if len(orders) == 0 {
		return req.Show(ctx, "🧾 *Pesanan Saya*\n\n📭 Belum ada pesanan.", true, backKeyboard("back_menu"))
	}
	return req.Show(ctx, "🧾 *Pesanan Saya*\n\n"+orderLines(orders), true, backKeyboard("back_menu"))
}
