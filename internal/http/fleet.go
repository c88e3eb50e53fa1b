package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
)

const (
	statusInterval = 2 * time.Second
	wsWriteWait    = 10 * time.Second
)

// ownedStatus narrows a fleet snapshot to the caller's bots.
func (s *Server) ownedStatus(ctx context.Context, owner int64) (bots.Status, error) {
	cfgs, err := s.deps.Stores.Bots.ListByOwner(ctx, owner)
	if err != nil {
		return bots.Status{}, err
	}
	mine := make(map[int64]bool, len(cfgs))
	for _, cfg := range cfgs {
		mine[cfg.ID] = true
	}
	st := s.deps.Manager.Status()
	out := bots.Status{Running: st.Running, Bots: []bots.BotStatus{}}
	for _, b := range st.Bots {
		if mine[b.ID] {
			out.Bots = append(out.Bots, b)
		}
	}
	out.BotCount = len(out.Bots)
	return out, nil
}

func (s *Server) handleFleetStatus(c *gin.Context) {
	st, err := s.ownedStatus(c.Request.Context(), userID(c))
	if err != nil {
		internal(c, "fleet status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range s.cfg.AllowedOrigins {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// handleFleetWS streams the caller's fleet status: once on connect, every
// two seconds, and after each lifecycle change.
func (s *Server) handleFleetWS(c *gin.Context) {
	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	owner := userID(c)
	clientID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	s.deps.Manager.Subscribe(clientID, func(bots.Status) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer s.deps.Manager.Unsubscribe(clientID)

	// Reads only detect the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	slog.Debug("fleet stream opened", "client", clientID, "user_id", owner)
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		st, err := s.ownedStatus(ctx, owner)
		if err != nil {
			slog.Warn("fleet stream status failed", "client", clientID, "error", err)
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(st); err != nil {
			slog.Debug("fleet stream closed", "client", clientID, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-changed:
		}
	}
}

func (s *Server) handleFleetSync(c *gin.Context) {
	res, err := s.deps.Manager.Sync(c.Request.Context())
	if errors.Is(err, bots.ErrDraining) {
		fail(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		internal(c, "fleet sync", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleFleetShutdown(c *gin.Context) {
	if s.deps.Shutdown == nil {
		fail(c, http.StatusServiceUnavailable, "shutdown is not available")
		return
	}
	slog.Info("fleet shutdown requested", "user_id", userID(c))
	s.deps.Shutdown()
	c.JSON(http.StatusAccepted, gin.H{"message": "shutting down"})
}
