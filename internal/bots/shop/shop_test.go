package shop

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/bots/botstest"
	"github.com/nextlevelbuilder/botfleet/internal/payment"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

type fakePayments struct {
	mu        sync.Mutex
	createErr error
	completed map[string]bool
	cancelled []string
}

func newFakePayments() *fakePayments {
	return &fakePayments{completed: make(map[string]bool)}
}

func (f *fakePayments) Configured() bool { return true }

func (f *fakePayments) CreateTransaction(_ context.Context, orderID string, amount int64, method string) (*payment.Payment, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &payment.Payment{
		OrderID:       orderID,
		Amount:        amount,
		Fee:           310,
		TotalPayment:  amount + 310,
		PaymentMethod: method,
		PaymentNumber: "00020101021226QRIS" + orderID,
		ExpiredAt:     "2026-10-19T12:00:00Z",
	}, nil
}

func (f *fakePayments) TransactionStatus(_ context.Context, orderID string, amount int64) (*payment.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := payment.StatusPending
	if f.completed[orderID] {
		status = payment.StatusCompleted
	}
	return &payment.Transaction{OrderID: orderID, Amount: amount, Status: status}, nil
}

func (f *fakePayments) CancelTransaction(_ context.Context, orderID string, _ int64) error {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, orderID)
	f.mu.Unlock()
	return nil
}

func (f *fakePayments) SimulatePayment(_ context.Context, orderID string, _ int64) error {
	f.mu.Lock()
	f.completed[orderID] = true
	f.mu.Unlock()
	return nil
}

func newShop(t *testing.T, pay payment.Provider) *botstest.Harness {
	return botstest.New(t, Variant{}, func(env *bots.BotEnv) {
		if pay != nil {
			env.Payments = func(store.BotConfig) payment.Provider { return pay }
		}
	})
}

// seed creates one active category with one product holding stock items.
func seed(t *testing.T, h *botstest.Harness, price int64, stock ...string) (catID, prodID int64) {
	t.Helper()
	ctx := context.Background()
	c := &store.Category{BotID: h.Env.Config.ID, Name: "Akun Premium", IsActive: true}
	require.NoError(t, h.Env.Stores.Catalog.CreateCategory(ctx, c))
	p := &store.Product{BotID: h.Env.Config.ID, CategoryID: &c.ID, Name: "Netflix 1 Bulan", Price: price, IsActive: true}
	require.NoError(t, h.Env.Stores.Catalog.CreateProduct(ctx, p))
	_, err := h.Env.Stores.Catalog.AddStock(ctx, p.ID, stock)
	require.NoError(t, err)
	return c.ID, p.ID
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func TestStartShowsMenu(t *testing.T) {
	h := newShop(t, nil)
	buyer := botstest.User(7)

	require.True(t, h.Text(buyer, "/start"))
	msg := h.Last()
	assert.Contains(t, msg.Text, "Test Bot")
	assert.True(t, botstest.HasButton(msg, "menu_catalog"))
	assert.False(t, botstest.HasButton(msg, "menu_admin"))

	require.True(t, h.Text(botstest.User(botstest.OwnerID), "/start"))
	assert.True(t, botstest.HasButton(h.Last(), "menu_admin"))
}

func TestCatalogBrowsing(t *testing.T) {
	h := newShop(t, nil)
	buyer := botstest.User(7)

	h.Press(buyer, "menu_catalog")
	assert.Contains(t, h.Last().Text, "Katalog Kosong")

	catID, prodID := seed(t, h, 15000, "a:1", "b:2")
	h.Press(buyer, "menu_catalog")
	assert.Contains(t, h.Last().Text, "Katalog Produk")
	assert.True(t, botstest.HasButton(h.Last(), "cat_"+itoa(catID)))

	h.Press(buyer, "cat_"+itoa(catID))
	assert.Contains(t, h.Last().Text, "1 produk tersedia")
	assert.True(t, botstest.HasButton(h.Last(), "prod_"+itoa(prodID)))

	h.Press(buyer, "prod_"+itoa(prodID))
	msg := h.Last()
	assert.Contains(t, msg.Text, "Rp 15.000")
	assert.Contains(t, msg.Text, "2 tersedia")
	assert.Contains(t, msg.Text, "Tidak ada deskripsi.")
	assert.True(t, botstest.HasButton(msg, "buy_"+itoa(prodID)))
}

func TestSoldOutProductHasNoBuyButton(t *testing.T) {
	h := newShop(t, nil)
	_, prodID := seed(t, h, 15000)

	h.Press(botstest.User(7), "prod_"+itoa(prodID))
	msg := h.Last()
	assert.Contains(t, msg.Text, "sedang tidak tersedia")
	assert.False(t, botstest.HasButton(msg, "buy_"+itoa(prodID)))
}

func TestBuyWithoutPaymentConfig(t *testing.T) {
	h := newShop(t, nil)
	_, prodID := seed(t, h, 15000, "a:1")

	h.Press(botstest.User(7), "buy_"+itoa(prodID))
	assert.Contains(t, h.Last().Text, "Pembayaran belum tersedia")
}

// buy presses the buy button and returns the created order id.
func buy(t *testing.T, h *botstest.Harness, buyerID, prodID int64) string {
	t.Helper()
	h.Press(botstest.User(buyerID), "buy_"+itoa(prodID))
	msg := h.Last()
	require.Contains(t, msg.Text, "Pesanan Dibuat")
	for _, row := range msg.Keyboard {
		for _, b := range row {
			if strings.HasPrefix(b.Data, "check_") {
				return strings.TrimPrefix(b.Data, "check_")
			}
		}
	}
	t.Fatal("no check button")
	return ""
}

func TestPurchaseFlowDeliversStockOnce(t *testing.T) {
	pay := newFakePayments()
	h := newShop(t, pay)
	_, prodID := seed(t, h, 15000, "akun1:pass1", "akun2:pass2")

	orderID := buy(t, h, 7, prodID)
	assert.Regexp(t, `^ORD-[0-9A-F]{12}$`, orderID)
	assert.Contains(t, h.Last().Text, "Rp 15.310")

	o := h.DB.Order(orderID)
	require.NotNil(t, o)
	assert.Equal(t, store.OrderPending, o.Status)
	assert.Equal(t, int64(310), o.Fee)
	require.NotNil(t, o.ExpiredAt)

	h.Press(botstest.User(7), "check_"+orderID)
	answers := h.Sender.Answers()
	assert.Equal(t, "⏳ Pembayaran belum diterima.", answers[len(answers)-1])

	require.NoError(t, pay.SimulatePayment(context.Background(), orderID, 15000))
	h.Press(botstest.User(7), "check_"+orderID)
	msg := h.Last()
	assert.Contains(t, msg.Text, "Pembayaran Berhasil")
	assert.Contains(t, msg.Text, "akun1:pass1")
	assert.Equal(t, store.OrderPaid, h.DB.Order(orderID).Status)

	before := len(h.Outputs())
	h.Press(botstest.User(7), "check_"+orderID)
	assert.Len(t, h.Outputs(), before)

	p, err := h.Env.Stores.Catalog.GetProduct(context.Background(), prodID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)
}

func TestCheckRejectsOtherUsersOrders(t *testing.T) {
	h := newShop(t, newFakePayments())
	_, prodID := seed(t, h, 15000, "a:1")
	orderID := buy(t, h, 7, prodID)

	h.Press(botstest.User(8), "check_"+orderID)
	assert.Contains(t, h.Last().Text, "Pesanan tidak ditemukan")
}

func TestCreatePaymentFailureCancelsOrder(t *testing.T) {
	pay := newFakePayments()
	pay.createErr = errors.New("gateway down")
	h := newShop(t, pay)
	_, prodID := seed(t, h, 15000, "a:1")

	h.Press(botstest.User(7), "buy_"+itoa(prodID))
	assert.Contains(t, h.Last().Text, "Gagal membuat pembayaran")

	orders, err := h.Env.Stores.Orders.ListByBot(context.Background(), h.Env.Config.ID, 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, store.OrderCancelled, orders[0].Status)
}

func TestCancelOrder(t *testing.T) {
	pay := newFakePayments()
	h := newShop(t, pay)
	_, prodID := seed(t, h, 15000, "a:1")
	orderID := buy(t, h, 7, prodID)

	h.Press(botstest.User(7), "cancel_"+orderID)
	assert.Contains(t, h.Last().Text, "dibatalkan")
	assert.Equal(t, store.OrderCancelled, h.DB.Order(orderID).Status)
	assert.Equal(t, []string{orderID}, pay.cancelled)

	h.Press(botstest.User(7), "cancel_"+orderID)
	assert.Contains(t, h.Last().Text, "tidak dapat dibatalkan")
}

func TestMyOrders(t *testing.T) {
	h := newShop(t, newFakePayments())
	buyer := botstest.User(7)

	h.Press(buyer, "menu_orders")
	assert.Contains(t, h.Last().Text, "Belum ada pesanan")

	_, prodID := seed(t, h, 15000, "a:1")
	orderID := buy(t, h, 7, prodID)
	h.Press(buyer, "menu_orders")
	assert.Contains(t, h.Last().Text, orderID)
	assert.Contains(t, h.Last().Text, "Netflix 1 Bulan")
}

func TestAdminRequiresOwner(t *testing.T) {
	h := newShop(t, nil)

	h.Press(botstest.User(7), "menu_admin")
	assert.Equal(t, "⛔ Akses ditolak.", h.Last().Text)

	h.Press(botstest.User(botstest.OwnerID), "menu_admin")
	assert.Contains(t, h.Last().Text, "Panel Admin")
}

func TestAdminAddCategoryDialog(t *testing.T) {
	h := newShop(t, nil)
	owner := botstest.User(botstest.OwnerID)

	h.Press(owner, "admin_cat_add")
	assert.Contains(t, h.Last().Text, "Masukkan nama kategori")

	h.Text(owner, "Game")
	assert.Contains(t, h.Last().Text, "deskripsi kategori")
	h.Text(owner, "-")
	assert.Equal(t, "✅ Kategori *Game* berhasil ditambahkan!", h.Last().Text)

	cats, err := h.Env.Stores.Catalog.ListCategories(context.Background(), h.Env.Config.ID, false)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Game", cats[0].Name)
	assert.Empty(t, cats[0].Description)
	assert.True(t, cats[0].IsActive)

	before := len(h.Outputs())
	h.Text(owner, "stray text")
	assert.Len(t, h.Outputs(), before)
}

func TestAdminAddProductDialog(t *testing.T) {
	h := newShop(t, nil)
	owner := botstest.User(botstest.OwnerID)

	h.Press(owner, "admin_prod_add")
	assert.Contains(t, h.Last().Text, "Tidak ada kategori")

	catID, _ := seed(t, h, 1000)
	h.Press(owner, "admin_prod_add")
	assert.True(t, botstest.HasButton(h.Last(), "addprod_cat_"+itoa(catID)))

	h.Press(owner, "addprod_cat_"+itoa(catID))
	h.Text(owner, "Spotify")
	h.Text(owner, "Premium 1 bulan")
	h.Text(owner, "lima ribu")
	assert.Equal(t, "❌ Harga tidak valid. Masukkan angka saja:", h.Last().Text)
	h.Text(owner, "25.000")
	assert.Contains(t, h.Last().Text, "satu item per baris")
	h.Text(owner, "s1:p1\ns2:p2\n\ns3:p3")
	assert.Contains(t, h.Last().Text, "Produk *Spotify* berhasil ditambahkan!")
	assert.Contains(t, h.Last().Text, "3 stok ditambahkan")

	products, err := h.Env.Stores.Catalog.ListProductsByCategory(context.Background(), catID, h.Env.Config.ID)
	require.NoError(t, err)
	var spotify *store.Product
	for i := range products {
		if products[i].Name == "Spotify" {
			spotify = &products[i]
		}
	}
	require.NotNil(t, spotify)
	assert.Equal(t, int64(25000), spotify.Price)
	assert.Equal(t, 3, spotify.Stock)
}

func TestAdminCancelDialog(t *testing.T) {
	h := newShop(t, nil)
	owner := botstest.User(botstest.OwnerID)

	h.Press(owner, "admin_cat_add")
	h.Text(owner, "/cancel")
	assert.Equal(t, "❌ Operasi dibatalkan.", h.Last().Text)

	before := len(h.Outputs())
	h.Text(owner, "Game")
	assert.Len(t, h.Outputs(), before)
}

func TestAdminToggleAndDelete(t *testing.T) {
	h := newShop(t, nil)
	owner := botstest.User(botstest.OwnerID)
	catID, prodID := seed(t, h, 1000, "x")

	h.Press(owner, "admin_prod_"+itoa(prodID))
	assert.True(t, botstest.HasButton(h.Last(), "admin_prod_toggle_"+itoa(prodID)))
	assert.Equal(t, "❌ Nonaktifkan", h.Last().Keyboard[0][0].Text)

	h.Press(owner, "admin_prod_toggle_"+itoa(prodID))
	assert.Contains(t, h.Last().Text, "Nonaktif ❌")
	assert.Equal(t, "✅ Aktifkan", h.Last().Keyboard[0][0].Text)

	h.Press(owner, "admin_cat_toggle_"+itoa(catID))
	c, err := h.Env.Stores.Catalog.GetCategory(context.Background(), catID)
	require.NoError(t, err)
	assert.False(t, c.IsActive)

	h.Press(owner, "admin_prod_del_"+itoa(prodID))
	_, err = h.Env.Stores.Catalog.GetProduct(context.Background(), prodID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, h.Last().Text, "Manajemen Produk")

	h.Press(owner, "admin_cat_del_"+itoa(catID))
	_, err = h.Env.Stores.Catalog.GetCategory(context.Background(), catID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdminStats(t *testing.T) {
	pay := newFakePayments()
	h := newShop(t, pay)
	_, prodID := seed(t, h, 15000, "a:1")
	orderID := buy(t, h, 7, prodID)
	require.NoError(t, pay.SimulatePayment(context.Background(), orderID, 15000))
	h.Press(botstest.User(7), "check_"+orderID)

	h.Press(botstest.User(botstest.OwnerID), "admin_stats")
	msg := h.Last()
	assert.Contains(t, msg.Text, "Produk: 1")
	assert.Contains(t, msg.Text, "Pesanan: 1")
	assert.Contains(t, msg.Text, "Rp 15.000")

	h.Press(botstest.User(botstest.OwnerID), "admin_orders")
	assert.Contains(t, h.Last().Text, orderID)
}
