// Package relay issues and checks the connection tokens clients present to
// the socket service.
package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const DefaultTTL = time.Hour

var (
	ErrNoSecret     = errors.New("relay: secret is not configured")
	ErrNoSubject    = errors.New("relay: token has no subject")
	ErrEmptySubject = errors.New("relay: user id is required")
	ErrNoRoom       = errors.New("relay: token is not bound to a room")
)

// Claims binds a connection to one player (the subject) of one room.
type Claims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *Signer) Enabled() bool {
	return len(s.secret) > 0
}

// ConnectionToken signs {sub, room, iat, exp} with HS256.
func (s *Signer) ConnectionToken(userID, roomID string) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	if userID == "" {
		return "", time.Time{}, ErrEmptySubject
	}
	if roomID == "" {
		return "", time.Time{}, ErrNoRoom
	}

	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		Room: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// Verify checks signature and expiry and returns the token's claims.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrNoSecret
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrNoSubject
	}
	if claims.Room == "" {
		return nil, ErrNoRoom
	}
	return claims, nil
}
