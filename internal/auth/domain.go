package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Claims carried by access tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// Token is the login response body.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

var (
	// ErrInvalidToken covers malformed, tampered and foreign tokens.
	ErrInvalidToken = httpx.NewError(httpx.ErrUnauthorized, "auth: invalid token")
	// ErrExpiredToken indicates an expired token.
	ErrExpiredToken = httpx.NewError(httpx.ErrUnauthorized, "auth: token has expired")
	// ErrMissingToken indicates no bearer credential was sent.
	ErrMissingToken = httpx.NewError(httpx.ErrUnauthorized, "auth: missing bearer token")
)
