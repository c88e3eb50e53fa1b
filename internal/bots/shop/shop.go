// Package shop is the digital store bot type: a catalog browsed through
// inline buttons, QRIS checkout through the payment gateway and automatic
// delivery of stock items once an order is paid.
package shop

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

type Variant struct{}

func (Variant) Kind() string { return store.BotTypeStore }

func (Variant) Routes(env bots.BotEnv) []messaging.Route {
	h := &handler{env: env, now: time.Now}
	return []messaging.Route{
		messaging.Command("start", "Menu utama", h.start),
		messaging.HiddenCommand("cancel", h.owner(h.adminCancel)),

		messaging.Callback("menu_catalog", h.catalog),
		messaging.Callback("menu_orders", h.myOrders),
		messaging.Callback("back_menu", h.backMenu),
		messaging.CallbackPrefix("cat_", h.category),
		messaging.CallbackPrefix("prod_", h.product),
		messaging.CallbackPrefix("buy_", h.buy),
		messaging.CallbackPrefix("check_", h.check),
		messaging.CallbackPrefix("cancel_", h.cancelOrder),

		messaging.Callback("menu_admin", h.owner(h.adminMenu)),
		messaging.Callback("admin_categories", h.owner(h.adminCategories)),
		messaging.Callback("admin_cat_add", h.owner(h.adminCategoryAdd)),
		messaging.CallbackPrefix("admin_cat_toggle_", h.owner(h.adminCategoryToggle)),
		messaging.CallbackPrefix("admin_cat_del_", h.owner(h.adminCategoryDelete)),
		messaging.CallbackPrefix("admin_cat_", h.owner(h.adminCategoryDetail)),
		messaging.Callback("admin_products", h.owner(h.adminProducts)),
		messaging.Callback("admin_prod_add", h.owner(h.adminProductAdd)),
		messaging.CallbackPrefix("admin_prod_toggle_", h.owner(h.adminProductToggle)),
		messaging.CallbackPrefix("admin_prod_del_", h.owner(h.adminProductDelete)),
		messaging.CallbackPrefix("admin_prod_", h.owner(h.adminProductDetail)),
		messaging.CallbackPrefix("addprod_cat_", h.owner(h.adminProductCategory)),
		messaging.Callback("admin_cancel", h.owner(h.adminCancel)),
		messaging.Callback("admin_orders", h.owner(h.adminOrders)),
		messaging.Callback("admin_stats", h.owner(h.adminStats)),

		messaging.Text(h.owner(h.dialogText)),
	}
}

type handler struct {
	env bots.BotEnv
	now func() time.Time
}

// owner restricts a handler to the fleet admin.
func (h *handler) owner(next messaging.HandlerFunc) messaging.HandlerFunc {
	return func(ctx context.Context, req *messaging.Request) error {
		if !h.env.IsOwner(req.UserID()) {
			if req.Update.IsCallback() {
				return req.Show(ctx, "⛔ Akses ditolak.", false, nil)
			}
			return nil
		}
		return next(ctx, req)
	}
}

// suffixID parses the id after prefix in callback data.
func suffixID(req *messaging.Request, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(req.Update.CallbackData, prefix), 10, 64)
	return id, err == nil
}

func backKeyboard(data string) messaging.Keyboard {
	return messaging.Keyboard{messaging.Row(messaging.Button{Text: "◀️ Kembali", Data: data})}
}

func (h *handler) registerUser(ctx context.Context, req *messaging.Request) (*store.BotUser, error) {
	from := req.Update.From
	u, err := h.env.Stores.BotUsers.GetOrCreate(ctx, h.env.Config.ID, from.ID, from.Username, from.FirstName)
	if err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}
	return u, nil
}

func (h *handler) mainMenu(req *messaging.Request) (string, messaging.Keyboard) {
	text := fmt.Sprintf("🛍️ *Selamat datang di %s!*\n\nHalo %s, silakan pilih menu di bawah ini:",
		h.env.Config.Name, req.Update.From.FirstName)
	kb := messaging.Keyboard{
		messaging.Row(
			messaging.Button{Text: "📦 Katalog", Data: "menu_catalog"},
			messaging.Button{Text: "🧾 Pesanan Saya", Data: "menu_orders"},
		),
	}
	if h.env.IsOwner(req.UserID()) {
		kb = append(kb, messaging.Row(messaging.Button{Text: "🔧 Panel Admin", Data: "menu_admin"}))
	}
	return text, kb
}

func (h *handler) start(ctx context.Context, req *messaging.Request) error {
	if _, err := h.registerUser(ctx, req); err != nil {
		return err
	}
	_ = h.env.State.Delete(ctx, dialogKey(h.env.Config.ID, req.UserID()))
	text, kb := h.mainMenu(req)
	return req.ReplyMarkdown(ctx, text, kb)
}

func (h *handler) backMenu(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	text, kb := h.mainMenu(req)
	return req.Show(ctx, text, true, kb)
}

func notFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
