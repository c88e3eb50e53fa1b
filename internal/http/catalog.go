package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

func (s *Server) handleProductsList(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	products, err := s.deps.Stores.Catalog.ListProducts(c.Request.Context(), cfg.ID, false)
	if err != nil {
		internal(c, "list products", err)
		return
	}
	if products == nil {
		products = []store.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

type productRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	CategoryID  *int64   `json:"category_id"`
	Unlimited   bool     `json:"unlimited"`
	Content     string   `json:"content"`
	StockItems  []string `json:"stock_items"`
}

func (s *Server) handleProductCreate(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.Name == "":
		fail(c, http.StatusBadRequest, "name is required")
		return
	case req.Price <= 0:
		fail(c, http.StatusBadRequest, "price must be greater than 0")
		return
	case req.Unlimited && strings.TrimSpace(req.Content) == "":
		fail(c, http.StatusBadRequest, "content is required for unlimited products")
		return
	}

	ctx := c.Request.Context()
	if req.CategoryID != nil {
		cat, err := s.deps.Stores.Catalog.GetCategory(ctx, *req.CategoryID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && cat.BotID != cfg.ID) {
			fail(c, http.StatusBadRequest, "category not found")
			return
		}
		if err != nil {
			internal(c, "get category", err)
			return
		}
	}

	p := &store.Product{
		BotID:       cfg.ID,
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		ContentType: "text",
		Unlimited:   req.Unlimited,
		Content:     req.Content,
		IsActive:    true,
	}
	if err := s.deps.Stores.Catalog.CreateProduct(ctx, p); err != nil {
		internal(c, "create product", err)
		return
	}
	added := 0
	if len(req.StockItems) > 0 && !req.Unlimited {
		n, err := s.deps.Stores.Catalog.AddStock(ctx, p.ID, req.StockItems)
		if err != nil {
			internal(c, "add stock", err)
			return
		}
		added = n
	}
	c.JSON(http.StatusCreated, gin.H{"message": "product created", "product": p, "added_count": added})
}

type stockRequest struct {
	StockItems []string `json:"stock_items"`
}

func (s *Server) handleStockAdd(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.StockItems) == 0 {
		fail(c, http.StatusBadRequest, "stock_items is required")
		return
	}

	ctx := c.Request.Context()
	p, err := s.deps.Stores.Catalog.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		internal(c, "get product", err)
		return
	}
	if _, err := s.deps.Stores.Bots.GetForOwner(ctx, p.BotID, userID(c)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "product not found")
			return
		}
		internal(c, "get bot", err)
		return
	}

	added, err := s.deps.Stores.Catalog.AddStock(ctx, p.ID, req.StockItems)
	if err != nil {
		internal(c, "add stock", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "stock added", "added_count": added})
}

func (s *Server) handleCategoriesList(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	cats, err := s.deps.Stores.Catalog.ListCategories(c.Request.Context(), cfg.ID, false)
	if err != nil {
		internal(c, "list categories", err)
		return
	}
	if cats == nil {
		cats = []store.Category{}
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SortOrder   int    `json:"sort_order"`
}

func (s *Server) handleCategoryCreate(c *gin.Context) {
	cfg, ok := s.ownedBot(c)
	if !ok {
		return
	}
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, "name is required")
		return
	}
	cat := &store.Category{
		BotID:       cfg.ID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		SortOrder:   req.SortOrder,
		IsActive:    true,
	}
	if err := s.deps.Stores.Catalog.CreateCategory(c.Request.Context(), cat); err != nil {
		internal(c, "create category", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "category created", "category": cat})
}
