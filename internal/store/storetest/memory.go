// Package storetest provides in-memory implementations of the store
// interfaces for handler and API tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// DB is the shared state behind every in-memory store.
type DB struct {
	mu     sync.Mutex
	nextID int64
	now    func() time.Time

	bots          map[int64]*store.BotConfig
	users         map[int64]*store.User
	botUsers      map[int64]*store.BotUser
	categories    map[int64]*store.Category
	products      map[int64]*store.Product
	stock         map[int64]*stockRow
	orders        map[string]*store.Order
	broadcasts    map[int64]*store.Broadcast
	verifications map[int64]*store.Verification
	points        map[int64]*store.PointsUser
	pvVerifs      []pvVerification
	cardKeys      map[int64]*store.CardKey
	cardKeyUses   map[[2]int64]bool
}

type stockRow struct {
	item    store.StockItem
	sold    bool
	orderID string
}

type pvVerification struct {
	BotID, TelegramID int64
	Kind              string
	Cost              int
}

// New returns a fresh store set and the DB behind it.
func New() (*store.Stores, *DB) {
	db := &DB{
		now:           time.Now,
		bots:          map[int64]*store.BotConfig{},
		users:         map[int64]*store.User{},
		botUsers:      map[int64]*store.BotUser{},
		categories:    map[int64]*store.Category{},
		products:      map[int64]*store.Product{},
		stock:         map[int64]*stockRow{},
		orders:        map[string]*store.Order{},
		broadcasts:    map[int64]*store.Broadcast{},
		verifications: map[int64]*store.Verification{},
		points:        map[int64]*store.PointsUser{},
		cardKeys:      map[int64]*store.CardKey{},
		cardKeyUses:   map[[2]int64]bool{},
	}
	return &store.Stores{
		Bots:          botStore{db},
		Users:         userStore{db},
		BotUsers:      botUserStore{db},
		Catalog:       catalogStore{db},
		Orders:        orderStore{db},
		Broadcasts:    broadcastStore{db},
		Verifications: verificationStore{db},
		Points:        pointsStore{db},
	}, db
}

func (db *DB) id() int64 {
	db.nextID++
	return db.nextID
}

// VerificationKinds lists the points_verify verifications recorded for a user.
func (db *DB) VerificationKinds(botID, telegramID int64) []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []string
	for _, v := range db.pvVerifs {
		if v.BotID == botID && v.TelegramID == telegramID {
			out = append(out, v.Kind)
		}
	}
	return out
}

// Order returns a copy of the order, or nil.
func (db *DB) Order(orderID string) *store.Order {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.orders[orderID]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

// ---- bots ----

type botStore struct{ db *DB }

func (s botStore) ListActive(ctx context.Context) ([]store.BotConfig, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []store.BotConfig
	for _, b := range s.db.bots {
		if b.IsActive {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s botStore) Get(ctx context.Context, id int64) (*store.BotConfig, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s botStore) ListByOwner(ctx context.Context, ownerID int64) ([]store.BotConfig, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []store.BotConfig
	for _, b := range s.db.bots {
		if b.OwnerID == ownerID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s botStore) GetForOwner(ctx context.Context, id, ownerID int64) (*store.BotConfig, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (s botStore) Create(ctx context.Context, b *store.BotConfig) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, other := range s.db.bots {
		if other.Token == b.Token {
			return store.ErrDuplicate
		}
	}
	b.ID = s.db.id()
	b.CreatedAt = s.db.now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	s.db.bots[b.ID] = &cp
	return nil
}

func (s botStore) Update(ctx context.Context, id int64, updates map[string]any) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bots[id]
	if !ok {
		return store.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "bot_name":
			b.Name = v.(string)
		case "bot_username":
			b.Username = v.(string)
		case "telegram_token":
			b.Token = v.(string)
		case "pakasir_slug":
			b.PaymentSlug = v.(string)
		case "pakasir_api_key":
			b.PaymentAPIKey = v.(string)
		case "is_active":
			b.IsActive = v.(bool)
		}
	}
	b.UpdatedAt = s.db.now()
	return nil
}

func (s botStore) Delete(ctx context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.bots[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.db.bots, id)
	return nil
}

func (s botStore) SetActive(ctx context.Context, id int64, active bool) error {
	return s.Update(ctx, id, map[string]any{"is_active": active})
}

// ---- dashboard users ----

type userStore struct{ db *DB }

func (s userStore) Create(ctx context.Context, u *store.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(u.Email))
	for _, other := range s.db.users {
		if other.Email == email {
			return store.ErrDuplicate
		}
	}
	u.ID = s.db.id()
	u.Email = email
	u.CreatedAt = s.db.now()
	cp := *u
	s.db.users[u.ID] = &cp
	return nil
}

func (s userStore) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s userStore) GetByID(ctx context.Context, id int64) (*store.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ---- bot users ----

type botUserStore struct{ db *DB }

func (s botUserStore) GetOrCreate(ctx context.Context, botID, telegramID int64, username, firstName string) (*store.BotUser, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.botUsers {
		if u.BotID == botID && u.TelegramID == telegramID {
			u.Username, u.FirstName = username, firstName
			cp := *u
			return &cp, nil
		}
	}
	u := &store.BotUser{ID: s.db.id(), BotID: botID, TelegramID: telegramID, Username: username, FirstName: firstName, CreatedAt: s.db.now()}
	s.db.botUsers[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s botUserStore) ListTelegramIDs(ctx context.Context, botID int64) ([]int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []int64
	for _, u := range s.db.botUsers {
		if u.BotID == botID {
			out = append(out, u.TelegramID)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out, nil
}

func (s botUserStore) Count(ctx context.Context, botID int64) (int, error) {
	ids, _ := s.ListTelegramIDs(ctx, botID)
	return len(ids), nil
}

// ---- catalog ----

type catalogStore struct{ db *DB }

func (s catalogStore) ListCategories(ctx context.Context, botID int64, activeOnly bool) ([]store.Category, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []store.Category
	for _, c := range s.db.categories {
		if c.BotID == botID && (!activeOnly || c.IsActive) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s catalogStore) GetCategory(ctx context.Context, id int64) (*store.Category, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s catalogStore) CreateCategory(ctx context.Context, c *store.Category) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c.ID = s.db.id()
	c.CreatedAt = s.db.now()
	cp := *c
	s.db.categories[c.ID] = &cp
	return nil
}

func (s catalogStore) SetCategoryActive(ctx context.Context, id int64, active bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.categories[id]
	if !ok {
		return store.ErrNotFound
	}
	c.IsActive = active
	return nil
}

func (s catalogStore) DeleteCategory(ctx context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.categories[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.db.categories, id)
	for _, p := range s.db.products {
		if p.CategoryID != nil && *p.CategoryID == id {
			p.CategoryID = nil
		}
	}
	return nil
}

// fill computes the derived product fields. Caller holds mu.
func (s catalogStore) fill(p store.Product) store.Product {
	if p.CategoryID != nil {
		if c, ok := s.db.categories[*p.CategoryID]; ok {
			p.CategoryName = c.Name
		}
	}
	if p.Unlimited {
		p.Stock = store.UnlimitedStock
	} else {
		p.Stock = 0
		for _, r := range s.db.stock {
			if r.item.ProductID == p.ID && !r.sold {
				p.Stock++
			}
		}
	}
	p.Sold = 0
	for _, o := range s.db.orders {
		if o.ProductID == p.ID && o.Status == store.OrderPaid {
			p.Sold++
		}
	}
	return p
}

func (s catalogStore) listProducts(keep func(*store.Product) bool) []store.Product {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []store.Product
	for _, p := range s.db.products {
		if keep(p) {
			out = append(out, s.fill(*p))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (s catalogStore) ListProducts(ctx context.Context, botID int64, activeOnly bool) ([]store.Product, error) {
	return s.listProducts(func(p *store.Product) bool {
		return p.BotID == botID && (!activeOnly || p.IsActive)
	}), nil
}

func (s catalogStore) ListProductsByCategory(ctx context.Context, categoryID, botID int64) ([]store.Product, error) {
	return s.listProducts(func(p *store.Product) bool {
		return p.BotID == botID && p.IsActive && p.CategoryID != nil && *p.CategoryID == categoryID
	}), nil
}

func (s catalogStore) GetProduct(ctx context.Context, id int64) (*store.Product, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := s.fill(*p)
	return &cp, nil
}

func (s catalogStore) CreateProduct(ctx context.Context, p *store.Product) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p.ID = s.db.id()
	p.CreatedAt = s.db.now()
	cp := *p
	s.db.products[p.ID] = &cp
	return nil
}

func (s catalogStore) SetProductActive(ctx context.Context, id int64, active bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.products[id]
	if !ok {
		return store.ErrNotFound
	}
	p.IsActive = active
	return nil
}

func (s catalogStore) DeleteProduct(ctx context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.db.products, id)
	return nil
}

func (s catalogStore) AddStock(ctx context.Context, productID int64, items []string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.products[productID]; !ok {
		return 0, store.ErrNotFound
	}
	n := 0
	for _, it := range items {
		if strings.TrimSpace(it) == "" {
			continue
		}
		id := s.db.id()
		s.db.stock[id] = &stockRow{item: store.StockItem{ID: id, ProductID: productID, Content: strings.TrimSpace(it)}}
		n++
	}
	return n, nil
}

func (s catalogStore) TakeStock(ctx context.Context, productID int64, orderID string) (*store.StockItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.Unlimited {
		return &store.StockItem{ProductID: productID, Content: p.Content}, nil
	}
	var ids []int64
	for id, r := range s.db.stock {
		if r.item.ProductID == productID && !r.sold {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, store.ErrNotFound
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	r := s.db.stock[ids[0]]
	r.sold, r.orderID = true, orderID
	item := r.item
	return &item, nil
}

func (s catalogStore) StockCount(ctx context.Context, productID int64) (int, error) {
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

// ---- orders ----

type orderStore struct{ db *DB }

func (s orderStore) join(o store.Order) store.Order {
	if p, ok := s.db.products[o.ProductID]; ok {
		o.ProductName = p.Name
	}
	if u, ok := s.db.botUsers[o.BotUserID]; ok {
		o.BuyerUsername, o.BuyerName, o.TelegramID = u.Username, u.FirstName, u.TelegramID
	}
	return o
}

func (s orderStore) Create(ctx context.Context, o *store.Order) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.orders[o.OrderID]; ok {
		return store.ErrDuplicate
	}
	o.ID = s.db.id()
	o.CreatedAt = s.db.now()
	cp := *o
	s.db.orders[o.OrderID] = &cp
	return nil
}

func (s orderStore) GetByOrderID(ctx context.Context, orderID string) (*store.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := s.join(*o)
	return &cp, nil
}

func (s orderStore) UpdatePayment(ctx context.Context, orderID string, p store.PaymentDetails) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.Fee, o.Total, o.PaymentMethod, o.QRISString, o.ExpiredAt = p.Fee, p.Total, p.PaymentMethod, p.QRISString, p.ExpiredAt
	return nil
}

func (s orderStore) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[orderID]
	if !ok || o.Status != store.OrderPending {
		return false, nil
	}
	o.Status = store.OrderPaid
	o.PaidAt = &paidAt
	return true, nil
}

func (s orderStore) SetStatus(ctx context.Context, orderID, status string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.Status = status
	return nil
}

func (s orderStore) list(keep func(*store.Order) bool, limit int) []store.Order {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []store.Order
	for _, o := range s.db.orders {
		if keep(o) {
			out = append(out, s.join(*o))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s orderStore) ListByBot(ctx context.Context, botID int64, limit int) ([]store.Order, error) {
	return s.list(func(o *store.Order) bool { return o.BotID == botID }, limit), nil
}

func (s orderStore) ListByUser(ctx context.Context, botID, botUserID int64, limit int) ([]store.Order, error) {
	return s.list(func(o *store.Order) bool { return o.BotID == botID && o.BotUserID == botUserID }, limit), nil
}

func (s orderStore) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, o := range s.db.orders {
		if o.Status == store.OrderPending && o.ExpiredAt != nil && o.ExpiredAt.Before(now) {
			o.Status = store.OrderExpired
			n++
		}
	}
	return n, nil
}

func (s orderStore) Stats(ctx context.Context, botID int64) (*store.OrderStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	st := &store.OrderStats{}
	for _, o := range s.db.orders {
		if o.BotID != botID {
			continue
		}
		st.TotalTransactions++
		if o.Status == store.OrderPaid {
			st.CompletedTransactions++
			st.TotalRevenue += o.Amount
		}
	}
	return st, nil
}

func (s orderStore) BotStats(ctx context.Context, botID int64) (*store.BotStats, error) {
	os, _ := s.Stats(ctx, botID)
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	st := &store.BotStats{TotalOrders: os.TotalTransactions, TotalRevenue: os.TotalRevenue}
	for _, p := range s.db.products {
		if p.BotID == botID {
			st.TotalProducts++
		}
	}
	for _, u := range s.db.botUsers {
		if u.BotID == botID {
			st.TotalUsers++
		}
	}
	return st, nil
}

// ---- broadcasts ----

type broadcastStore struct{ db *DB }

func (s broadcastStore) Create(ctx context.Context, b *store.Broadcast) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b.ID = s.db.id()
	b.CreatedAt = s.db.now()
	cp := *b
	s.db.broadcasts[b.ID] = &cp
	return nil
}

func (s broadcastStore) SetResult(ctx context.Context, id int64, recipients int, status string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.broadcasts[id]
	if !ok {
		return store.ErrNotFound
	}
	b.RecipientsCount, b.Status = recipients, status
	return nil
}

func (s broadcastStore) ListByBot(ctx context.Context, botID int64, limit int) ([]store.Broadcast, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []store.Broadcast
	for _, b := range s.db.broadcasts {
		if b.BotID == botID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- verifications ----

type verificationStore struct{ db *DB }

func (s verificationStore) Create(ctx context.Context, v *store.Verification) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	v.ID = s.db.id()
	v.CreatedAt = s.db.now()
	if v.Status == "" {
		v.Status = store.VerificationPending
	}
	cp := *v
	s.db.verifications[v.ID] = &cp
	return nil
}

func (s verificationStore) GetLatest(ctx context.Context, botID, telegramID int64) (*store.Verification, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var latest *store.Verification
	for _, v := range s.db.verifications {
		if v.BotID == botID && v.TelegramID == telegramID && (latest == nil || v.ID > latest.ID) {
			latest = v
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s verificationStore) Get(ctx context.Context, id int64) (*store.Verification, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	v, ok := s.db.verifications[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s verificationStore) ListByBot(ctx context.Context, botID int64, status string) ([]store.Verification, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []store.Verification
	for _, v := range s.db.verifications {
		if v.BotID == botID && (status == "" || v.Status == status) {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s verificationStore) ListPending(ctx context.Context, botID int64, limit int) ([]store.Verification, error) {
	out, _ := s.ListByBot(ctx, botID, store.VerificationPending)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s verificationStore) SetStatus(ctx context.Context, id int64, status string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	v, ok := s.db.verifications[id]
	if !ok {
		return store.ErrNotFound
	}
	v.Status = status
	if status == store.VerificationApproved {
		now := s.db.now()
		v.VerifiedAt = &now
	}
	return nil
}

// ---- points ----

type pointsStore struct{ db *DB }

// find returns the live row. Caller holds mu.
func (s pointsStore) find(botID, telegramID int64) *store.PointsUser {
	for _, u := range s.db.points {
		if u.BotID == botID && u.TelegramID == telegramID {
			return u
		}
	}
	return nil
}

func (s pointsStore) GetOrCreate(ctx context.Context, botID, telegramID int64, username, fullName string, inviterID *int64, inviteeBonus, inviterBonus int) (*store.PointsUser, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if u := s.find(botID, telegramID); u != nil {
		cp := *u
		return &cp, false, nil
	}
	u := &store.PointsUser{ID: s.db.id(), BotID: botID, TelegramID: telegramID, Username: username, FullName: fullName, CreatedAt: s.db.now()}
	if inviterID != nil && *inviterID != telegramID {
		if inviter := s.find(botID, *inviterID); inviter != nil {
			inviter.Balance += inviterBonus
			u.Balance += inviteeBonus
			id := *inviterID
			u.InvitedBy = &id
		}
	}
	s.db.points[u.ID] = u
	cp := *u
	return &cp, true, nil
}

func (s pointsStore) Get(ctx context.Context, botID, telegramID int64) (*store.PointsUser, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u := s.find(botID, telegramID)
	if u == nil {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s pointsStore) CheckIn(ctx context.Context, botID, telegramID int64, day time.Time, points int) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u := s.find(botID, telegramID)
	if u == nil {
		return false, store.ErrNotFound
	}
	y, m, d := day.Date()
	if u.LastCheckin != nil {
		ly, lm, ld := u.LastCheckin.Date()
		if ly == y && lm == m && ld == d {
			return false, nil
		}
	}
	u.Balance += points
	t := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	u.LastCheckin = &t
	return true, nil
}

func (s pointsStore) Deduct(ctx context.Context, botID, telegramID int64, points int) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u := s.find(botID, telegramID)
	if u == nil {
		return 0, store.ErrNotFound
	}
	if u.Balance < points {
		return u.Balance, store.ErrInsufficientBalance
	}
	u.Balance -= points
	return u.Balance, nil
}

func (s pointsStore) AddBalance(ctx context.Context, botID, telegramID int64, points int) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u := s.find(botID, telegramID)
	if u == nil {
		return 0, store.ErrNotFound
	}
	u.Balance += points
	return u.Balance, nil
}

func (s pointsStore) SetBlocked(ctx context.Context, botID, telegramID int64, blocked bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u := s.find(botID, telegramID)
	if u == nil {
		return store.ErrNotFound
	}
	u.IsBlocked = blocked
	return nil
}

func (s pointsStore) Blacklist(ctx context.Context, botID int64, limit int) ([]store.PointsUser, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []store.PointsUser
	for _, u := range s.db.points {
		if u.BotID == botID && u.IsBlocked {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s pointsStore) AddVerification(ctx context.Context, botID, telegramID int64, kind string, cost int) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u := s.find(botID, telegramID)
	if u == nil {
		return 0, store.ErrNotFound
	}
	if u.Balance < cost {
		return u.Balance, store.ErrInsufficientBalance
	}
	u.Balance -= cost
	s.db.pvVerifs = append(s.db.pvVerifs, pvVerification{BotID: botID, TelegramID: telegramID, Kind: kind, Cost: cost})
	return u.Balance, nil
}

func (s pointsStore) CreateCardKey(ctx context.Context, k *store.CardKey) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, other := range s.db.cardKeys {
		if other.BotID == k.BotID && other.Code == k.Code {
			return store.ErrDuplicate
		}
	}
	k.ID = s.db.id()
	k.CreatedAt = s.db.now()
	cp := *k
	s.db.cardKeys[k.ID] = &cp
	return nil
}

func (s pointsStore) ListCardKeys(ctx context.Context, botID int64, limit int) ([]store.CardKey, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []store.CardKey
	for _, k := range s.db.cardKeys {
		if k.BotID == botID {
			out = append(out, *k)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s pointsStore) UseCardKey(ctx context.Context, botID int64, code string, telegramID int64, now time.Time) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var key *store.CardKey
	for _, k := range s.db.cardKeys {
		if k.BotID == botID && k.Code == code {
			key = k
		}
	}
	if key == nil {
		return 0, store.ErrKeyNotFound
	}
	if key.CurrentUses >= key.MaxUses {
		return 0, store.ErrKeyExhausted
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(now) {
		return 0, store.ErrKeyExpired
	}
	use := [2]int64{key.ID, telegramID}
	if s.db.cardKeyUses[use] {
		return 0, store.ErrKeyAlreadyUsed
	}
	u := s.find(botID, telegramID)
	if u == nil {
		return 0, store.ErrNotFound
	}
	s.db.cardKeyUses[use] = true
	key.CurrentUses++
	u.Balance += key.Balance
	return key.Balance, nil
}

func (s pointsStore) ListTelegramIDs(ctx context.Context, botID int64) ([]int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []int64
	for _, u := range s.db.points {
		if u.BotID == botID {
			out = append(out, u.TelegramID)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out, nil
}
