package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTypeSession = "session"

// Claims identify one browser session. Who is logged in lives in the session
// state, not in the token.
type Claims struct {
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	JTI       string `json:"jti"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret     []byte
	sessionTTL time.Duration
}

func NewManager(secret string, sessionTTL time.Duration) *Manager {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	return &Manager{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
	}
}

func (m *Manager) SessionTTL() time.Duration { return m.sessionTTL }

// NewSessionID returns a fresh random session id.
func NewSessionID() string { return uuid.NewString() }

func (m *Manager) GenerateSessionToken(sessionID string) (raw string, expiresAt time.Time, err error) {
	if sessionID == "" {
		return "", time.Time{}, errors.New("empty session id")
	}

	now := time.Now().UTC()
	expiresAt = now.Add(m.sessionTTL)

	claims := Claims{
		SessionID: sessionID,
		TokenType: tokenTypeSession,
		JTI:       uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   sessionID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	raw, err = token.SignedString(m.secret)
	return
}

func (m *Manager) ParseAndValidate(tokenStr string) (claims *Claims, err error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		_, ok := t.Method.(*jwt.SigningMethodHMAC)

		if !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})

	if err != nil {
		return
	}
	claims, ok := token.Claims.(*Claims)

	if !ok || !token.Valid {
		err = errors.New("invalid token")
		return
	}
	return
}

func (m *Manager) VerifySessionToken(tokenStr string) (*Claims, error) {
	claims, err := m.ParseAndValidate(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeSession {
		return nil, errors.New("invalid token type")
	}
	if claims.SessionID == "" {
		return nil, errors.New("missing sid")
	}
	return claims, nil
}

// FormToken is the anti-forgery token html forms of a session must echo back.
// It is a keyed hash of the session id, so it needs no storage.
func (m *Manager) FormToken(sessionID string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte("form:" + sessionID))
	return hex.EncodeToString(h.Sum(nil))
}

func (m *Manager) VerifyFormToken(sessionID, token string) bool {
	if sessionID == "" || token == "" {
		return false
	}
	return hmac.Equal([]byte(m.FormToken(sessionID)), []byte(token))
}
