package auth

import (
	"errors"
	"strconv"
	"time"

	"storefront/config"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Token audiences keep an access token from being replayed as a refresh
// token and the other way round, even if both secrets are set alike.
const (
	audienceAccess  = "storefront-api"
	audienceRefresh = "storefront-refresh"
)

// Claims identifies the buyer behind an access token.
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func registered(cfg *config.JWTConfig, userID uint, ttl time.Duration, audience string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Audience:  jwt.ClaimStrings{audience},
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func sign(claims jwt.Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parse(cfg *config.JWTConfig, tokenString string, claims jwt.Claims, secret, audience string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

func GenerateAccessToken(cfg *config.JWTConfig, userID uint, email, role string) (string, error) {
	return sign(Claims{
		UserID:           userID,
		Email:            email,
		Role:             role,
		RegisteredClaims: registered(cfg, userID, cfg.AccessExpiry, audienceAccess),
	}, cfg.AccessSecret)
}

func GenerateRefreshToken(cfg *config.JWTConfig, userID uint) (string, error) {
	return sign(registered(cfg, userID, cfg.RefreshExpiry, audienceRefresh), cfg.RefreshSecret)
}

func ParseAccessToken(cfg *config.JWTConfig, tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := parse(cfg, tokenString, claims, cfg.AccessSecret, audienceAccess); err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseRefreshToken returns the user id a refresh token was issued for.
func ParseRefreshToken(cfg *config.JWTConfig, tokenString string) (uint, error) {
	claims := &jwt.RegisteredClaims{}
	if err := parse(cfg, tokenString, claims, cfg.RefreshSecret, audienceRefresh); err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}
