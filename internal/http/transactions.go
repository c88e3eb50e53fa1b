package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

func (s *Server) handleTransactions(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	orders, err := s.deps.Stores.Orders.ListByBot(ctx, cfg.ID, 100)
	if err != nil {
		internal(c, "list orders", err)
		return
	}
	stats, err := s.deps.Stores.Orders.Stats(ctx, cfg.ID)
	if err != nil {
		internal(c, "order stats", err)
		return
	}
	if orders == nil {
		orders = []store.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": orders, "stats": stats})
}

func (s *Server) handleVerificationsList(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	status := c.Query("status")
	switch status {
	case "", store.VerificationPending, store.VerificationApproved, store.VerificationRejected:
	default:
		fail(c, http.StatusBadRequest, "unknown status "+status)
		return
	}
	list, err := s.deps.Stores.Verifications.ListByBot(c.Request.Context(), cfg.ID, status)
	if err != nil {
		internal(c, "list verifications", err)
		return
	}
	if list == nil {
		list = []store.Verification{}
	}
	c.JSON(http.StatusOK, gin.H{"verifications": list})
}

func (s *Server) handleVerificationDecide(status string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		v, err := s.deps.Stores.Verifications.Get(ctx, id)
		if err == nil {
			_, err = s.deps.Stores.Bots.GetForOwner(ctx, v.BotID, userID(c))
		}
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "verification not found")
			return
		}
		if err != nil {
			internal(c, "get verification", err)
			return
		}
		if err := s.deps.Stores.Verifications.SetStatus(ctx, id, status); err != nil {
			internal(c, "set verification status", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "verification " + status, "id": id, "status": status})
	}
}
