package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/framecraft/engagement/cache"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the JWT payload issued by the account service. Subject carries
// the user id; the token id (jti) is the revocation handle.
type Claims struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for one studio member. The account service
// owns issuance in production; this is used by tooling and tests.
func GenerateToken(orgID, userID, secret, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		OrgID:  orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a JWT string and returns the claims. When issuer is
// non-empty the iss claim must match it.
func ParseToken(tokenStr, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" || claims.OrgID == "" {
		return nil, errors.New("token has no user or organization")
	}
	return claims, nil
}

// RevokedKey is the cache key marking a token id as revoked.
func RevokedKey(jti string) string { return "revoked:" + jti }

// RevokeToken marks the token revoked until it would have expired anyway.
func RevokeToken(ctx context.Context, c cache.Cache, claims *Claims) error {
	if claims.ID == "" {
		return errors.New("token has no id")
	}
	ttl := time.Hour
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	return c.Set(ctx, RevokedKey(claims.ID), "1", ttl)
}
