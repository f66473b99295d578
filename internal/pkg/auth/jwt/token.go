package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// SessionExpiration defines the lifetime of a session token.
	SessionExpiration = 30 * time.Minute

	// TokenIssuer identifies the issuer of the token.
	TokenIssuer = "StickyChat"
)

var (
	// ErrExpired is returned by ParseToken for a well-signed token whose session has ended.
	ErrExpired = errors.New("session token expired")

	// ErrInvalidToken is returned by ParseToken for any other rejected token.
	ErrInvalidToken = errors.New("invalid session token")
)

// GenerateToken signs a session token for payload that expires after duration.
func GenerateToken(payload *Payload, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	payload.StandardClaims = jwt.StandardClaims{
		ExpiresAt: now.Add(duration).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    TokenIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)

	return token.SignedString([]byte(secretKey))
}

// ParseToken verifies a session token signed with secretKey and returns its payload.
// Expired sessions yield ErrExpired; every other failure wraps ErrInvalidToken.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		var validation *jwt.ValidationError
		if errors.As(err, &validation) && validation.Errors == jwt.ValidationErrorExpired {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != TokenIssuer {
		return nil, fmt.Errorf("%w: issued by %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: no player id", ErrInvalidToken)
	}

	return claims, nil
}

// Expiry returns when the session carried by the payload ends.
func (p *Payload) Expiry() time.Time {
	return time.Unix(p.ExpiresAt, 0)
}
