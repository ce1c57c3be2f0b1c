package auth

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/hkdf"
)

const testSecret = "test-secret-key-for-sessions"

// encryptSession builds a session token the way the marketplace frontend
// does: claims JSON encrypted as a JWE with the HKDF-derived key.
func encryptSession(t *testing.T, secret string, claims map[string]any) string {
	t.Helper()

	salt := "authjs.session-token"
	info := fmt.Sprintf("Auth.js Generated Encryption Key (%s)", salt)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(salt), []byte(info))
	key := make([]byte, 32)
	_, err := io.ReadFull(kdf, key)
	require.NoError(t, err)

	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	encrypted, err := jwe.Encrypt(payload,
		jwe.WithKey(jwa.DIRECT(), key),
		jwe.WithContentEncryption(jwa.A256GCM()))
	require.NoError(t, err)
	return string(encrypted)
}

func requestWithToken(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "authjs.session-token", Value: token})
	return r
}

func TestFromCookie(t *testing.T) {
	v := NewValidator(testSecret)

	token := encryptSession(t, testSecret, map[string]any{
		"sub":   "user-1",
		"email": "buyer@example.com",
		"role":  "buyer",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	sess, err := v.FromCookie(requestWithToken(token))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, "buyer@example.com", sess.Email)
	assert.Equal(t, "buyer", sess.Role)
}

func TestFromCookie_MissingCookie(t *testing.T) {
	v := NewValidator(testSecret)

	_, err := v.FromCookie(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Error(t, err)
}

func TestFromCookie_ExpiredToken(t *testing.T) {
	v := NewValidator(testSecret)

	token := encryptSession(t, testSecret, map[string]any{
		"sub":   "user-1",
		"email": "buyer@example.com",
		"role":  "buyer",
		"exp":   time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.FromCookie(requestWithToken(token))
	require.Error(t, err)
}

func TestFromCookie_WrongSecret(t *testing.T) {
	v := NewValidator(testSecret)

	token := encryptSession(t, "some-other-secret", map[string]any{
		"sub":   "user-1",
		"email": "buyer@example.com",
		"role":  "buyer",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.FromCookie(requestWithToken(token))
	require.Error(t, err)
}

func TestFromCookie_MissingClaims(t *testing.T) {
	v := NewValidator(testSecret)

	for name, claims := range map[string]map[string]any{
		"no subject": {"email": "buyer@example.com", "role": "buyer"},
		"no role":    {"sub": "user-1", "email": "buyer@example.com"},
		"no email":   {"sub": "user-1", "role": "buyer"},
	} {
		t.Run(name, func(t *testing.T) {
			token := encryptSession(t, testSecret, claims)
			_, err := v.FromCookie(requestWithToken(token))
			require.Error(t, err)
		})
	}
}

func TestFromCookie_GarbageToken(t *testing.T) {
	v := NewValidator(testSecret)

	_, err := v.FromCookie(requestWithToken("not-a-jwe"))
	require.Error(t, err)
}
