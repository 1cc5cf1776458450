package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestVerify_HS256(t *testing.T) {
	v, err := NewJWTValidatorHS256("k")
	require.NoError(t, err)
	exp := time.Now().Add(time.Hour).Unix()

	id, err := v.Verify(sign(t, "k", jwt.MapClaims{"user_id": "u1", "role": "clinic", "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.True(t, id.CanBroadcast())
	assert.False(t, id.CanAdminister())

	id, err = v.Verify(sign(t, "k", jwt.MapClaims{"sub": "u2", "admin": true, "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, "u2", id.UserID)
	assert.True(t, id.CanAdminister())
}

func TestVerify_Rejections(t *testing.T) {
	v, _ := NewJWTValidatorHS256("k")
	exp := time.Now().Add(time.Hour).Unix()

	cases := map[string]string{
		"empty":       "",
		"garbage":     "a.b.c",
		"wrong key":   sign(t, "other", jwt.MapClaims{"user_id": "u1", "exp": exp}),
		"expired":     sign(t, "k", jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(-time.Minute).Unix()}),
		"no exp":      sign(t, "k", jwt.MapClaims{"user_id": "u1"}),
		"no identity": sign(t, "k", jwt.MapClaims{"exp": exp}),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tok)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
		})
	}
}

func TestVerify_RS256RejectsHS256Token(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := newRSAValidator(&key.PublicKey)
	exp := time.Now().Add(time.Hour).Unix()

	good, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"user_id": "u1", "exp": exp}).SignedString(key)
	require.NoError(t, err)
	id, err := v.Verify(good)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)

	_, err = v.Verify(sign(t, "k", jwt.MapClaims{"user_id": "u1", "exp": exp}))
	assert.Error(t, err)
}

func TestParseBearerToken(t *testing.T) {
	tok, err := ParseBearerToken("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	tok, err = ParseBearerToken("bearer  xyz ")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		_, err := ParseBearerToken(h)
		assert.Error(t, err, h)
	}
}

func TestMiddleware_RequireAdmin(t *testing.T) {
	v, _ := NewJWTValidatorHS256("k")
	m := NewMiddleware(v, zap.NewNop())
	app := fiber.New()
	app.Get("/admin", m.Handler(), m.RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendString(IdentityFrom(c).UserID)
	})
	exp := time.Now().Add(time.Hour).Unix()

	call := func(tok string) int {
		req := httptest.NewRequest("GET", "/admin", nil)
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusUnauthorized, call(""))
	assert.Equal(t, fiber.StatusForbidden, call(sign(t, "k", jwt.MapClaims{"user_id": "u1", "exp": exp})))
	assert.Equal(t, fiber.StatusOK, call(sign(t, "k", jwt.MapClaims{"user_id": "u1", "role": "admin", "exp": exp})))
}
