// Package auth issues and validates the bearer tokens the transport gateway
// presents on the update webhook.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 8760 * time.Hour

	// TokenIssuerName and TokenAudience pin the issuer/audience claims so a
	// token minted for another deployment of the same binary is rejected.
	TokenIssuerName = "challengeforge-backend"
	TokenAudience   = "challengeforge-gateway"
)

var (
	errMissingSigningSecret = errors.New("auth: signing secret must be provided")
	errMissingSubjectClaim  = errors.New("auth: subject claim must be provided")
)

// TokenIssuerConfig configures the gateway token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer mints and validates HS256 gateway tokens. Tokens are long-lived
// credentials identifying a transport deployment, not end users.
type TokenIssuer struct {
	signingSecret []byte
	tokenTTL      time.Duration
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with sane defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) *TokenIssuer {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: cfg.SigningSecret,
		tokenTTL:      ttl,
		clock:         clock,
	}
}

// IssueToken produces a signed gateway token for the named transport.
func (i *TokenIssuer) IssueToken(subject string) (string, error) {
	if len(i.signingSecret) == 0 {
		return "", errMissingSigningSecret
	}
	if subject == "" {
		return "", errMissingSubjectClaim
	}

	now := i.clock().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    TokenIssuerName,
		Audience:  []string{TokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.tokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.signingSecret)
}

// ValidateToken checks the gateway token and returns its subject.
func (i *TokenIssuer) ValidateToken(tokenString string) (string, error) {
	if len(i.signingSecret) == 0 {
		return "", errMissingSigningSecret
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("auth: unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(TokenAudience),
		jwt.WithIssuer(TokenIssuerName),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errMissingSubjectClaim
	}
	return claims.Subject, nil
}
