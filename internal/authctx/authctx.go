// ABOUTME: Explicit session context carrying the bearer token and user identity
// ABOUTME: Loaded once at startup, attached to requests, and zeroed on teardown

package authctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/pitstop/internal/config"
)

// TokenEnv names the environment variable checked before the token file.
const TokenEnv = "PITSTOP_TOKEN"

// Context is the identity the engine acts as. UserID and AppName are fixed
// after construction; the token can be torn down.
type Context struct {
	AppName   string
	UserID    string
	ExpiresAt time.Time // zero when unknown

	mu    sync.RWMutex
	token string
}

// New builds a context for the given identity. When token looks like a JWT
// its claims are read without verification: sub replaces userID and exp
// sets ExpiresAt. Verification is the agent service's job.
func New(token, appName, userID string) *Context {
	c := &Context{
		AppName: appName,
		UserID:  userID,
		token:   strings.TrimSpace(token),
	}
	c.applyClaims()
	return c
}

// Load builds the context from config. The token comes from PITSTOP_TOKEN,
// then the configured token file. No token means anonymous requests.
func Load(cfg *config.Config, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "authctx")

	token := os.Getenv(TokenEnv)
	source := TokenEnv
	if token == "" && cfg.Auth.TokenFile != "" {
		data, err := os.ReadFile(cfg.Auth.TokenFile)
		switch {
		case err == nil:
			token = string(data)
			source = cfg.Auth.TokenFile
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("reading token file: %w", err)
		}
	}

	c := New(token, cfg.Agent.AppName, cfg.Agent.UserID)
	if c.Anonymous() {
		logger.Debug("no token configured, requests are anonymous")
	} else {
		logger.Debug("token loaded", "source", source, "user_id", c.UserID)
	}
	return c, nil
}

func (c *Context) applyClaims() {
	if strings.Count(c.token, ".") != 2 {
		return
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return
	}

	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		c.UserID = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
}

// Token returns the bearer token, or "" when anonymous or torn down.
func (c *Context) Token() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Anonymous reports whether there is no token to send.
func (c *Context) Anonymous() bool {
	return c.Token() == ""
}

// Expired reports whether the token carried an expiry that has passed.
func (c *Context) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Teardown drops the token. Later requests go out anonymous.
func (c *Context) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying c.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the Context attached to ctx, or nil.
func FromContext(ctx context.Context) *Context {
	c, _ := ctx.Value(contextKey{}).(*Context)
	return c
}
