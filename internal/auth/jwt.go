package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 tokens locally with a shared secret, the way
// Supabase signs its access tokens.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) VerifyAccessToken(_ context.Context, accessToken string) (User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return User{}, fmt.Errorf("jwt parse: %w", err)
	}
	if !token.Valid {
		return User{}, errors.New("jwt invalid")
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return User{}, errors.New("jwt missing subject")
	}
	return User{ID: sub, Email: claims.Email}, nil
}

// Issue signs a token for userID. Used for local development and tests when
// no Supabase project is configured.
func (v *JWTVerifier) Issue(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (c Chain) VerifyAccessToken(ctx context.Context, accessToken string) (User, error) {
	var errs []error
	for _, v := range c {
		if v == nil {
			continue
		}
		user, err := v.VerifyAccessToken(ctx, accessToken)
		if err == nil {
			return user, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return User{}, errors.New("no token verifier configured")
	}
	return User{}, errors.Join(errs...)
}
