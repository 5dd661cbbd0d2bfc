package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fwblock/internal/support"
)

const (
	jwtSecretEnv    = "JWT_SECRET"
	issuer          = "fwblock"
	DefaultTokenTTL = 24 * time.Hour
)

var (
	ErrNoSecret     = errors.New("auth: " + jwtSecretEnv + " not set")
	ErrInvalidToken = errors.New("auth: invalid token")
)

func secret() ([]byte, error) {
	s := strings.TrimSpace(support.GetEnv(jwtSecretEnv, ""))
	if s == "" {
		return nil, ErrNoSecret
	}
	return []byte(s), nil
}

// GenerateJWT issues an HS256 token for subject that expires after ttl.
func GenerateJWT(subject string, ttl time.Duration) (string, error) {
	key, err := secret()
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": issuer,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateJWT verifies signature, issuer and expiry and returns the claims.
func ValidateJWT(tokenString string) (map[string]interface{}, error) {
	key, err := secret()
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
