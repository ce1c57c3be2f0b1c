package auth

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/babulele/AgroMarketHub-sub000/pkg/errors"
	"github.com/charmbracelet/log"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwe"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"golang.org/x/crypto/hkdf"
)

const sessionCookie = "authjs.session-token"

// Session is the authenticated identity extracted from the marketplace's
// session token.
type Session struct {
	UserID string
	Email  string
	Role   string
}

// Validator checks the session cookies issued by the surrounding
// marketplace (Auth.js JWE tokens) and hands back the caller's identity.
type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

func (v *Validator) encryptionKey() ([]byte, error) {
	if len(v.secret) == 0 {
		return nil, apperrors.New(apperrors.ErrInternalServer, "auth secret not configured")
	}

	salt := sessionCookie
	info := fmt.Sprintf("Auth.js Generated Encryption Key (%s)", salt)

	// HKDF with SHA-256, 32 bytes for AES-256
	kdf := hkdf.New(sha256.New, v.secret, []byte(salt), []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, apperrors.Wrap(err, "failed to derive session key")
	}
	return key, nil
}

func (v *Validator) jweToJwt(encryptedToken string) (string, error) {
	key, err := v.encryptionKey()
	if err != nil {
		return "", err
	}

	// Decrypt JWE using DIRECT key encryption and A256GCM content encryption
	decrypted, err := jwe.Decrypt([]byte(encryptedToken),
		jwe.WithKey(jwa.DIRECT(), key))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to decrypt session token")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(decrypted, &payload); err != nil {
		return "", apperrors.Wrap(err, "failed to unmarshal session payload")
	}

	token := jwt.New()
	for k, val := range payload {
		token.Set(k, val)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), v.secret))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to sign session JWT")
	}
	return string(signed), nil
}

// FromCookie validates the session cookie and returns the caller's session.
func (v *Validator) FromCookie(r *http.Request) (Session, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return Session{}, apperrors.New(http.StatusUnauthorized, "missing session token cookie")
	}

	jwtString, err := v.jweToJwt(cookie.Value)
	if err != nil {
		log.Error("Failed to convert JWE to JWT", "error", err)
		return Session{}, err
	}

	token, err := jwt.Parse([]byte(jwtString),
		jwt.WithKey(jwa.HS256(), v.secret),
		jwt.WithValidate(true))
	if err != nil {
		return Session{}, apperrors.Wrap(err, "failed to validate session token")
	}

	if exp, ok := token.Expiration(); ok && exp.Before(time.Now()) {
		return Session{}, apperrors.New(http.StatusUnauthorized, "session token expired")
	}

	sess := Session{}
	if sub, ok := token.Subject(); ok {
		sess.UserID = sub
	}
	if sess.UserID == "" {
		return Session{}, apperrors.New(http.StatusUnauthorized, "session token missing subject")
	}
	if err := token.Get("email", &sess.Email); err != nil {
		return Session{}, apperrors.New(http.StatusUnauthorized, "session token missing email claim")
	}
	if err := token.Get("role", &sess.Role); err != nil {
		return Session{}, apperrors.New(http.StatusUnauthorized, "session token missing role claim")
	}
	return sess, nil
}
