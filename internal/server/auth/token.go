// Package auth validates connection tokens presented at connect time.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for malformed, expired or badly signed
	// tokens
	ErrInvalidToken = errors.New("invalid token")
	// ErrClientMismatch is returned when the token subject does not match
	// the connecting client
	ErrClientMismatch = errors.New("token subject does not match client")
)

// ConnClaims are the claims carried by a connection token. The subject is
// the client id the token authorizes; RoomID, when set, restricts the token
// to a single room.
type ConnClaims struct {
	RoomID string `json:"room_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks connection tokens. An empty secret disables verification
// entirely, which is the development default.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier with the given HMAC secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether token verification is in force
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify checks the token for the given client and room. With verification
// disabled it accepts anything, token or not.
func (v *Verifier) Verify(tokenString, clientID, roomID string) error {
	if !v.Enabled() {
		return nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &ConnClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*ConnClaims)
	if !ok || !token.Valid {
		return ErrInvalidToken
	}
	if claims.Subject != clientID {
		return ErrClientMismatch
	}
	if claims.RoomID != "" && claims.RoomID != roomID {
		return ErrClientMismatch
	}
	return nil
}

// IssueToken signs a connection token for a client. A zero ttl means the
// token never expires; any other ttl sets the expiry, so a negative one
// yields an already-expired token.
func (v *Verifier) IssueToken(clientID, roomID string, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", errors.New("token issuance requires a secret")
	}

	now := time.Now()
	claims := ConnClaims{
		RoomID: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  clientID,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   "roomsync",
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
