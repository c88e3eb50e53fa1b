package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

const (
	ctxUserID      = "user_id"
	minPasswordLen = 6
)

// Claims are carried by admin access tokens.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Auth issues and verifies HS256 access tokens.
type Auth struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuth(secret string, ttl time.Duration) *Auth {
	return &Auth{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the dashboard user.
func (a *Auth) Issue(u *store.User) (string, error) {
	now := a.now()
	claims := Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses a token and returns the user id it was issued for.
func (a *Auth) Verify(token string) (int64, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return 0, err
	}
	if !parsed.Valid {
		return 0, errors.New("invalid token")
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad subject: %w", err)
	}
	return id, nil
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	// Browsers cannot set headers on websocket upgrades.
	if c.Request.URL.Path == "/api/fleet/ws" {
		return c.Query("token")
	}
	return ""
}

// Optional records the user id when a valid token is present, so the rate
// limiter can key on it.
func (a *Auth) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := bearer(c); tok != "" {
			if id, err := a.Verify(tok); err == nil {
				c.Set(ctxUserID, id)
			}
		}
		c.Next()
	}
}

// Required rejects requests without a valid token.
func (a *Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ctxUserID); ok {
			c.Next()
			return
		}
		tok := bearer(c)
		if tok == "" {
			fail(c, http.StatusUnauthorized, "missing token")
			return
		}
		id, err := a.Verify(tok)
		if err != nil {
			fail(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(ctxUserID, id)
		c.Next()
	}
}

// Admin lets through only users whose account e-mail is listed in
// http.admin_emails. It must run after Required.
func (s *Server) Admin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.deps.Stores.Users.GetByID(c.Request.Context(), userID(c))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			internal(c, "get user", err)
			return
		}
		if err != nil || !s.cfg.IsAdmin(u.Email) {
			slog.Warn("security.admin_denied", "user_id", userID(c), "path", c.FullPath())
			fail(c, http.StatusForbidden, "admin access required")
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) tokenResponse(c *gin.Context, status int, msg string, u *store.User) {
	tok, err := s.auth.Issue(u)
	if err != nil {
		internal(c, "issue token", err)
		return
	}
	c.JSON(status, gin.H{"message": msg, "user": u, "access_token": tok})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		fail(c, http.StatusBadRequest, "valid email is required")
		return
	}
	if len(req.Password) < minPasswordLen {
		fail(c, http.StatusBadRequest, fmt.Sprintf("password must be at least %d characters", minPasswordLen))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		internal(c, "hash password", err)
		return
	}
	u := &store.User{Email: email, PasswordHash: string(hash), Name: strings.TrimSpace(req.Name)}
	err = s.deps.Stores.Users.Create(c.Request.Context(), u)
	if errors.Is(err, store.ErrDuplicate) {
		fail(c, http.StatusBadRequest, "email already registered")
		return
	}
	if err != nil {
		internal(c, "create user", err)
		return
	}
	s.tokenResponse(c, http.StatusCreated, "registration successful", u)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON")
		return
	}
	u, err := s.deps.Stores.Users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		internal(c, "get user", err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		fail(c, http.StatusUnauthorized, "invalid email or password")
		return
	}
	s.tokenResponse(c, http.StatusOK, "login successful", u)
}

func (s *Server) handleMe(c *gin.Context) {
	u, err := s.deps.Stores.Users.GetByID(c.Request.Context(), userID(c))
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		internal(c, "get user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}
