package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// InsecureVerifier reads ID-token claims without checking the signature,
// issuer or audience. Only for integration runs that set ALLOW_INSECURE_TOKEN.
type InsecureVerifier struct {
	parser *jwt.Parser
}

func NewInsecureVerifier() *InsecureVerifier {
	return &InsecureVerifier{parser: jwt.NewParser()}
}

func (v *InsecureVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := v.parser.ParseUnverified(raw, mc); err != nil {
		return nil, fmt.Errorf("decode id token: %w", err)
	}
	b, err := json.Marshal(mc)
	if err != nil {
		return nil, err
	}
	var c Claims
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", err)
	}
	if c.Subject == "" {
		return nil, errors.New("id token has no subject")
	}
	return &c, nil
}
