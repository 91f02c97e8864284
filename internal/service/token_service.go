package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"go-identity-gate/internal/model"
	"go-identity-gate/pkg/apierror"
)

// TokenClaims is the signed payload: registered claims plus the identity data.
type TokenClaims struct {
	Data model.ClaimData `json:"data"`
	jwt.RegisteredClaims
}

type TokenServiceConfig struct {
	Secret    string
	Algorithm string
	TTL       time.Duration
	Issuer    string
	Audience  string
	Leeway    time.Duration
}

// TokenService issues and verifies signed bearer tokens. It holds no mutable
// state after construction.
type TokenService struct {
	secret   []byte
	method   jwt.SigningMethod
	ttl      time.Duration
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

func NewTokenService(cfg TokenServiceConfig) (*TokenService, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	return &TokenService{
		secret:   []byte(cfg.Secret),
		method:   method,
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		now:      time.Now,
	}, nil
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs data with iat=now and exp=now+ttl.
func (s *TokenService) Issue(data model.ClaimData) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)

	claims := TokenClaims{
		Data: data,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   data.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature first, then time and identity claims.
func (s *TokenService) Verify(tokenString string) (*model.Claim, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims,
		func(token *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classifyTokenError(err)
	}

	if strings.TrimSpace(claims.Data.ID) == "" {
		return nil, tokenError(model.ErrTokenMalformed, "token carries no identity")
	}

	claim := &model.Claim{
		Issuer:   claims.Issuer,
		Audience: claims.Audience,
		Data:     claims.Data,
	}
	if claims.IssuedAt != nil {
		claim.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		claim.ExpiresAt = claims.ExpiresAt.Time
	}
	return claim, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return tokenError(model.ErrTokenMalformed, "token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return tokenError(model.ErrTokenBadSignature, "token signature is invalid")
	case errors.Is(err, jwt.ErrTokenExpired):
		return tokenError(model.ErrTokenExpired, "token has expired")
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return tokenError(model.ErrTokenNotYetValid, "token is not valid yet")
	default:
		// wrong issuer or audience, missing exp
		return tokenError(model.ErrTokenMalformed, "token claims are invalid")
	}
}

func tokenError(kind error, message string) error {
	return apierror.Wrap(kind, "UNAUTHORIZED", message, http.StatusUnauthorized)
}
