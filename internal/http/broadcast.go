package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/nextlevelbuilder/botfleet/internal/format"
	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// previewWidth is how many display cells of a message the history shows.
const previewWidth = 100

func (s *Server) handleBroadcastList(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	history, err := s.deps.Stores.Broadcasts.ListByBot(c.Request.Context(), cfg.ID, 50)
	if err != nil {
		internal(c, "list broadcasts", err)
		return
	}
	out := make([]store.Broadcast, 0, len(history))
	for _, b := range history {
		b.Message = format.Truncate(b.Message, previewWidth)
		out = append(out, b)
	}
	c.JSON(http.StatusOK, gin.H{"broadcasts": out})
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBroadcastSend(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON")
		return
	}
	text := strings.TrimSpace(req.Message)
	if n := utf8.RuneCountInString(text); n == 0 || n > s.maxMsg {
		fail(c, http.StatusBadRequest, fmt.Sprintf("message must be between 1 and %d characters", s.maxMsg))
		return
	}

	ctx := c.Request.Context()
	ids, err := s.recipients(ctx, *cfg)
	if err != nil {
		internal(c, "list recipients", err)
		return
	}
	if len(ids) == 0 {
		fail(c, http.StatusBadRequest, "bot has no users yet")
		return
	}

	rec := &store.Broadcast{BotID: cfg.ID, Message: text, Status: store.BroadcastSending}
	if err := s.deps.Stores.Broadcasts.Create(ctx, rec); err != nil {
		internal(c, "create broadcast", err)
		return
	}

	sender, release, err := s.deps.Manager.SenderFor(ctx, *cfg)
	if err != nil {
		_ = s.deps.Stores.Broadcasts.SetResult(ctx, rec.ID, 0, store.BroadcastCompleted)
		fail(c, http.StatusBadGateway, "cannot reach telegram: "+err.Error())
		return
	}
	defer release()

	res, sendErr := s.deps.Pacer.Send(ctx, sender, ids, messaging.Message{Text: text})
	if err := s.deps.Stores.Broadcasts.SetResult(context.WithoutCancel(ctx), rec.ID, res.Sent, store.BroadcastCompleted); err != nil {
		internal(c, "save broadcast result", err)
		return
	}
	if sendErr != nil {
		internal(c, "broadcast", sendErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "broadcast sent",
		"broadcast": gin.H{
			"id":               rec.ID,
			"recipients_count": res.Sent,
			"total_users":      res.Total,
		},
	})
}

// recipients returns the audience of a bot. Points bots keep their own
// user table.
func (s *Server) recipients(ctx context.Context, cfg store.BotConfig) ([]int64, error) {
	if cfg.Type == store.BotTypePointsVerify {
		return s.deps.Stores.Points.ListTelegramIDs(ctx, cfg.ID)
	}
	return s.deps.Stores.BotUsers.ListTelegramIDs(ctx, cfg.ID)
}
