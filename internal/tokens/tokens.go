package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const linkAudience = "webaffe-console-signin"

var ErrInvalidLinkToken = errors.New("invalid or expired sign-in link")

// LinkClaims are carried by a passwordless sign-in link.
type LinkClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssueLinkToken creates a signed one-time token for email. The returned id
// is the token's jti, used to reject reuse.
func IssueLinkToken(secret, email string, ttl time.Duration) (string, string, error) {
	if secret == "" {
		return "", "", errors.New("link secret not configured")
	}
	now := time.Now()
	id := uuid.NewString()
	claims := LinkClaims{
		Email: strings.TrimSpace(email),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   strings.ToLower(strings.TrimSpace(email)),
			Audience:  jwt.ClaimStrings{linkAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := jt.SignedString([]byte(secret))
	if err != nil {
		return "", "", err
	}
	return signed, id, nil
}

// ParseLinkToken validates signature, audience and expiry.
func ParseLinkToken(secret, raw string) (*LinkClaims, error) {
	var claims LinkClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience(linkAudience))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLinkToken, err)
	}
	if claims.Email == "" || claims.ID == "" {
		return nil, ErrInvalidLinkToken
	}
	return &claims, nil
}
