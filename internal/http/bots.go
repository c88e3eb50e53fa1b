package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// botView is a bot record together with its runtime state.
type botView struct {
	store.BotConfig
	PaymentConfigured bool       `json:"payment_configured"`
	State             bots.State `json:"state"`
	LastError         string     `json:"last_error,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
}

func (s *Server) view(cfg store.BotConfig, st bots.Status) botView {
	v := botView{BotConfig: cfg, PaymentConfigured: cfg.PaymentConfigured(), State: bots.StateStopped}
	if bs, ok := st.Bot(cfg.ID); ok {
		v.State, v.LastError, v.StartedAt = bs.State, bs.LastError, bs.StartedAt
	}
	return v
}

// ownedBot loads the bot of the caller, writing 404 when it is missing or
// belongs to someone else.
func (s *Server) ownedBot(c *gin.Context) (*store.BotConfig, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	cfg, err := s.deps.Stores.Bots.GetForOwner(c.Request.Context(), id, userID(c))
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, "bot not found")
		return nil, false
	}
	if err != nil {
		internal(c, "get bot", err)
		return nil, false
	}
	return cfg, true
}

func (s *Server) handleBotsList(c *gin.Context) {
	list, err := s.deps.Stores.Bots.ListByOwner(c.Request.Context(), userID(c))
	if err != nil {
		internal(c, "list bots", err)
		return
	}
	st := s.deps.Manager.Status()
	out := make([]botView, 0, len(list))
	for _, cfg := range list {
		out = append(out, s.view(cfg, st))
	}
	c.JSON(http.StatusOK, gin.H{"bots": out})
}

type botRequest struct {
	Name          *string `json:"name"`
	Username      *string `json:"username"`
	Type          *string `json:"type"`
	Token         *string `json:"token"`
	PaymentSlug   *string `json:"payment_slug"`
	PaymentAPIKey *string `json:"payment_api_key"`
	IsActive      *bool   `json:"is_active"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func (s *Server) handleBotCreate(c *gin.Context) {
	var req botRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON")
		return
	}
	cfg := &store.BotConfig{
		OwnerID:       userID(c),
		Name:          str(req.Name),
		Username:      strings.TrimPrefix(str(req.Username), "@"),
		Type:          str(req.Type),
		Token:         str(req.Token),
		PaymentSlug:   str(req.PaymentSlug),
		PaymentAPIKey: str(req.PaymentAPIKey),
		IsActive:      true,
	}
	if cfg.Type == "" {
		cfg.Type = store.BotTypeStore
	}
	switch {
	case cfg.Name == "":
		fail(c, http.StatusBadRequest, "name is required")
		return
	case !store.ValidBotType(cfg.Type):
		fail(c, http.StatusBadRequest, "unknown bot type "+cfg.Type)
		return
	case !bots.ValidToken(cfg.Token):
		fail(c, http.StatusBadRequest, "invalid bot token")
		return
	}

	err := s.deps.Stores.Bots.Create(c.Request.Context(), cfg)
	if errors.Is(err, store.ErrDuplicate) {
		fail(c, http.StatusBadRequest, "bot token already registered")
		return
	}
	if err != nil {
		internal(c, "create bot", err)
		return
	}
	started := s.deps.Manager.StartBot(c.Request.Context(), cfg.ID)
	c.JSON(http.StatusCreated, gin.H{
		"message": "bot created",
		"bot":     s.view(*cfg, s.deps.Manager.Status()),
		"started": started,
	})
}

func (s *Server) handleBotGet(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"bot": s.view(*cfg, s.deps.Manager.Status())})
}

func (s *Server) handleBotUpdate(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	var req botRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON")
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		if str(req.Name) == "" {
			fail(c, http.StatusBadRequest, "name cannot be empty")
			return
		}
		updates["bot_name"] = str(req.Name)
	}
	if req.Username != nil {
		updates["bot_username"] = strings.TrimPrefix(str(req.Username), "@")
	}
	if req.Token != nil {
		if !bots.ValidToken(str(req.Token)) {
			fail(c, http.StatusBadRequest, "invalid bot token")
			return
		}
		updates["telegram_token"] = str(req.Token)
	}
	if req.PaymentSlug != nil {
		updates["pakasir_slug"] = str(req.PaymentSlug)
	}
	if req.PaymentAPIKey != nil {
		updates["pakasir_api_key"] = str(req.PaymentAPIKey)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		fail(c, http.StatusBadRequest, "nothing to update")
		return
	}

	ctx := c.Request.Context()
	if err := s.deps.Stores.Bots.Update(ctx, cfg.ID, updates); err != nil {
		internal(c, "update bot", err)
		return
	}

	// Running bots pick up the new record; deactivated ones go down and
	// reactivated ones come up right away.
	_, registered := s.deps.Manager.Lookup(cfg.ID)
	switch {
	case req.IsActive != nil && !*req.IsActive:
		if registered {
			s.deps.Manager.StopBot(ctx, cfg.ID)
		}
	case registered:
		s.deps.Manager.RestartBot(ctx, cfg.ID)
	case req.IsActive != nil && *req.IsActive:
		s.deps.Manager.StartBot(ctx, cfg.ID)
	}

	fresh, err := s.deps.Stores.Bots.Get(ctx, cfg.ID)
	if err != nil {
		internal(c, "get bot", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "bot updated", "bot": s.view(*fresh, s.deps.Manager.Status())})
}

func (s *Server) handleBotDelete(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	s.deps.Manager.StopBot(ctx, cfg.ID)
	if err := s.deps.Stores.Bots.Delete(ctx, cfg.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		internal(c, "delete bot", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "bot deleted"})
}

func (s *Server) running(id int64) bool {
	inst, ok := s.deps.Manager.Lookup(id)
	return ok && inst.State() == bots.StateRunning
}

func (s *Server) handleBotStart(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	if s.running(cfg.ID) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "already_running": true})
		return
	}
	if s.deps.Manager.Draining() {
		fail(c, http.StatusServiceUnavailable, bots.ErrDraining.Error())
		return
	}
	if !s.deps.Manager.StartBot(c.Request.Context(), cfg.ID) {
		fail(c, http.StatusBadGateway, "failed to start bot: "+s.lastError(cfg.ID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "already_running": false})
}

func (s *Server) handleBotStop(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	if !s.running(cfg.ID) {
		// A registered but idle instance is dropped so it does not linger.
		s.deps.Manager.StopBot(c.Request.Context(), cfg.ID)
		c.JSON(http.StatusOK, gin.H{"ok": true, "already_stopped": true})
		return
	}
	s.deps.Manager.StopBot(c.Request.Context(), cfg.ID)
	c.JSON(http.StatusOK, gin.H{"ok": true, "already_stopped": false})
}

func (s *Server) handleBotRestart(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	if s.deps.Manager.Draining() {
		fail(c, http.StatusServiceUnavailable, bots.ErrDraining.Error())
		return
	}
	if !s.deps.Manager.RestartBot(c.Request.Context(), cfg.ID) {
		fail(c, http.StatusBadGateway, "failed to restart bot: "+s.lastError(cfg.ID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) lastError(id int64) string {
	if inst, ok := s.deps.Manager.Lookup(id); ok {
		if err := inst.LastError(); err != nil {
			return err.Error()
		}
	}
	return "unknown error"
}
