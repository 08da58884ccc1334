package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/pkg/config"
)

var (
	ErrSecretMissing = errors.New("jwt secret is required")
	ErrIssuerMissing = errors.New("jwt issuer is required")

	signingMethod = jwt.SigningMethodHS256
)

// clockSkew is tolerated on exp and iat between API instances.
const clockSkew = 5 * time.Second

// MintAccessToken signs an HS256 access token valid for cfg.ExpirationMinutes
// from now. The JTI doubles as the session key and is generated when empty.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if cfg.Secret == "" {
		return "", ErrSecretMissing
	}
	if cfg.Issuer == "" {
		return "", ErrIssuerMissing
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", fmt.Errorf("jwt expiration must be positive, got %d minutes", cfg.ExpirationMinutes)
	}
	if payload.UserID == uuid.Nil {
		return "", errors.New("access token needs a user id")
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Email:  payload.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	return parse(cfg, raw, jwt.WithExpirationRequired(), jwt.WithLeeway(clockSkew))
}

// ParseAccessTokenAllowExpired verifies signature and issuer only, so the
// refresh flow can recover the session id of a token that already expired.
func ParseAccessTokenAllowExpired(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	return parse(cfg, raw, jwt.WithoutClaimsValidation())
}

func parse(cfg config.JWTConfig, raw string, extra ...jwt.ParserOption) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretMissing
	}
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	}, extra...)

	claims := new(AccessTokenClaims)
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	// WithoutClaimsValidation skips the issuer check too.
	if claims.Issuer != cfg.Issuer {
		return nil, fmt.Errorf("unexpected token issuer %q", claims.Issuer)
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("access token carries no user id")
	}
	return claims, nil
}
