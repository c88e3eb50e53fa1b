// Package http serves the administrative JSON API used by the dashboard.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/broadcast"
	"github.com/nextlevelbuilder/botfleet/internal/config"
	"github.com/nextlevelbuilder/botfleet/internal/metrics"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// Deps are the collaborators the API drives.
type Deps struct {
	Stores  *store.Stores
	Manager *bots.Manager
	Pacer   *broadcast.Pacer
	// Shutdown asks the supervisor to stop the fleet. Nil disables the endpoint.
	Shutdown func()
	Version  string
}

// Server is the admin API.
type Server struct {
	cfg     config.HTTPConfig
	maxMsg  int
	deps    Deps
	auth    *Auth
	limiter *RateLimiter
	now     func() time.Time
}

func NewServer(cfg config.HTTPConfig, maxMessage int, deps Deps) *Server {
	if maxMessage <= 0 {
		maxMessage = 4096
	}
	return &Server{
		cfg:     cfg,
		maxMsg:  maxMessage,
		deps:    deps,
		auth:    NewAuth(cfg.JWTSecret, cfg.TokenTTL()),
		limiter: NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		now:     time.Now,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Gin())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.Use(s.auth.Optional(), s.limiter.Middleware())

	authGroup := api.Group("/auth")
	authGroup.POST("/register", s.handleRegister)
	authGroup.POST("/login", s.handleLogin)
	authGroup.GET("/me", s.auth.Required(), s.handleMe)

	priv := api.Group("")
	priv.Use(s.auth.Required())

	priv.GET("/bots", s.handleBotsList)
	priv.POST("/bots", s.handleBotCreate)
	botID := priv.Group("/bots/:id")
	botID.GET("", s.handleBotGet)
	botID.PUT("", s.handleBotUpdate)
	botID.DELETE("", s.handleBotDelete)
	botID.POST("/start", s.handleBotStart)
	botID.POST("/stop", s.handleBotStop)
	botID.POST("/restart", s.handleBotRestart)
	botID.GET("/products", s.handleProductsList)
	botID.POST("/products", s.handleProductCreate)
	botID.GET("/categories", s.handleCategoriesList)
	botID.POST("/categories", s.handleCategoryCreate)
	botID.GET("/broadcast", s.handleBroadcastList)
	botID.POST("/broadcast", s.handleBroadcastSend)
	botID.GET("/transactions", s.handleTransactions)
	botID.GET("/verifications", s.handleVerificationsList)

	priv.POST("/products/:id/stock", s.handleStockAdd)
	priv.POST("/verifications/:id/approve", s.handleVerificationDecide(store.VerificationApproved))
	priv.POST("/verifications/:id/reject", s.handleVerificationDecide(store.VerificationRejected))

	fleet := priv.Group("/fleet")
	fleet.GET("/status", s.handleFleetStatus)
	fleet.GET("/ws", s.handleFleetWS)
	fleet.POST("/sync", s.Admin(), s.handleFleetSync)
	fleet.POST("/shutdown", s.Admin(), s.handleFleetShutdown)

	return r
}

// Run serves until ctx is cancelled, then drains for up to five seconds.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("admin api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin api shutdown: %w", err)
	}
	slog.Info("admin api stopped")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.deps.Version,
		"running": s.deps.Manager.Status().Running,
	})
}

// fail writes the uniform error body.
func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// internal logs err and hides it from the client.
func internal(c *gin.Context, op string, err error) {
	slog.Error("admin api error", "op", op, "path", c.FullPath(), "error", err)
	fail(c, http.StatusInternalServerError, "internal error")
}

// pathID parses the :id parameter.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
