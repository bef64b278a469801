// ABOUTME: Tests for the session context
// ABOUTME: Covers token sources, unverified claim reading, expiry, and teardown

package authctx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/pitstop/internal/config"
	"github.com/2389/pitstop/internal/logging"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func testConfig(tokenFile string) *config.Config {
	cfg := &config.Config{}
	cfg.Agent.AppName = "agent"
	cfg.Agent.UserID = "user"
	cfg.Auth.TokenFile = tokenFile
	return cfg
}

func TestNew_OpaqueToken(t *testing.T) {
	c := New("  opaque-token\n", "agent", "user")

	assert.Equal(t, "opaque-token", c.Token())
	assert.Equal(t, "user", c.UserID)
	assert.True(t, c.ExpiresAt.IsZero())
	assert.False(t, c.Expired(time.Now()))
	assert.False(t, c.Anonymous())
}

func TestNew_JWTClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{"sub": "tech-42", "exp": exp.Unix()})

	c := New(token, "agent", "user")

	assert.Equal(t, "tech-42", c.UserID)
	assert.True(t, exp.Equal(c.ExpiresAt))
	assert.False(t, c.Expired(time.Now()))
	assert.True(t, c.Expired(exp.Add(time.Second)))
}

func TestNew_JWTWithoutSubjectKeepsConfiguredUser(t *testing.T) {
	c := New(signedToken(t, jwt.MapClaims{"iat": time.Now().Unix()}), "agent", "user")
	assert.Equal(t, "user", c.UserID)
}

func TestLoad_EnvWins(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("from-file"), 0600))
	t.Setenv(TokenEnv, "from-env")

	c, err := Load(testConfig(tokenFile), logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Token())
}

func TestLoad_TokenFile(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("from-file\n"), 0600))
	t.Setenv(TokenEnv, "")

	c, err := Load(testConfig(tokenFile), logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, "from-file", c.Token())
	assert.Equal(t, "agent", c.AppName)
}

func TestLoad_MissingFileIsAnonymous(t *testing.T) {
	t.Setenv(TokenEnv, "")

	c, err := Load(testConfig(filepath.Join(t.TempDir(), "absent")), logging.Nop())
	require.NoError(t, err)
	assert.True(t, c.Anonymous())
}

func TestLoad_UnreadableTokenFile(t *testing.T) {
	t.Setenv(TokenEnv, "")

	// A directory cannot be read as a file.
	_, err := Load(testConfig(t.TempDir()), logging.Nop())
	assert.Error(t, err)
}

func TestTeardown(t *testing.T) {
	c := New("secret", "agent", "user")
	c.Teardown()
	assert.Empty(t, c.Token())
	assert.True(t, c.Anonymous())
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	c := New("secret", "agent", "user")
	ctx := WithContext(context.Background(), c)
	assert.Same(t, c, FromContext(ctx))

	var none *Context
	assert.Empty(t, none.Token())
}
