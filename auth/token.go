package auth

import (
	"fmt"
	"time"

	"market-chat/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the messaging core needs from a verified credential:
// the subject identity and when it stops being valid. Expiry is only
// checked at authenticate time, never re-checked on a live session.
type Claims struct {
	UserID    string
	ExpiresAt time.Time
}

// IVerifier turns an opaque bearer credential into a verified identity.
type IVerifier interface {
	Verify(token string) (Claims, error)
}

// TokenVerifier validates HS256 JWTs. The secret is injected so no package
// level key exists; the account backend signs with the same secret.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewTokenVerifier(secret string) TokenVerifier {
	return TokenVerifier{secret: []byte(secret), now: time.Now}
}

func (v TokenVerifier) Verify(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, fmt.Errorf("%w: no token provided", errors.ErrAuthentication)
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", errors.ErrAuthentication, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return Claims{}, fmt.Errorf("%w: invalid token", errors.ErrAuthentication)
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: token has no subject", errors.ErrAuthentication)
	}

	result := Claims{UserID: claims.Subject}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}

// GenerateToken issues a signed credential for userID, used by the account
// backend and the seed tool.
func GenerateToken(secret, userID string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		Issuer:    "market-chat",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return signed, nil
}
