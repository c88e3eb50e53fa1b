package bots

import (
	"sort"
	"sync"

	"github.com/nextlevelbuilder/botfleet/internal/broadcast"
	"github.com/nextlevelbuilder/botfleet/internal/convstate"
	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/payment"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// PaymentFactory builds the payment provider for one bot from its
// credentials.
type PaymentFactory func(cfg store.BotConfig) payment.Provider

// BotEnv is everything a bot type's handlers may use. The Manager fills
// Config per instance; the other fields are shared by the fleet.
type BotEnv struct {
	Config   store.BotConfig
	Stores   *store.Stores
	OwnerID  int64 // Telegram id allowed to use admin commands
	Payments PaymentFactory
	State    convstate.Store
	Pacer    *broadcast.Pacer
}

// IsOwner reports whether the Telegram user is the fleet admin.
func (e BotEnv) IsOwner(userID int64) bool {
	return e.OwnerID != 0 && userID == e.OwnerID
}

// Payment returns the bot's payment provider, or nil when the fleet runs
// without one.
func (e BotEnv) Payment() payment.Provider {
	if e.Payments == nil {
		return nil
	}
	return e.Payments(e.Config)
}

// Variant supplies the handler set of one bot type.
type Variant interface {
	Kind() string
	Routes(env BotEnv) []messaging.Route
}

// Variants is the registry of bot types, keyed by Kind.
type Variants struct {
	mu sync.RWMutex
	m  map[string]Variant
}

func NewVariants(vs ...Variant) *Variants {
	r := &Variants{m: make(map[string]Variant)}
	for _, v := range vs {
		r.Register(v)
	}
	return r
}

// Register adds or replaces the variant for v.Kind().
func (r *Variants) Register(v Variant) {
	r.mu.Lock()
	r.m[v.Kind()] = v
	r.mu.Unlock()
}

func (r *Variants) Get(kind string) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[kind]
	return v, ok
}

// Kinds lists the registered bot types, sorted.
func (r *Variants) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
