// ABOUTME: JWT session token issuing and validation for authenticated users
// ABOUTME: Uses HS256 signing with the configured secret and a fixed lifetime

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Claims holds the identity carried by a validated session token.
type Claims struct {
	UserID   string
	Username string
}

// TokenIssuer issues and validates opaque session tokens.
type TokenIssuer interface {
	Issue(userID, username string) (string, error)
	Validate(tokenString string) (*Claims, error)
}

// JWTIssuer implements TokenIssuer using HS256 signed JWTs.
// Validation is stateless: tokens carry their own expiry and are
// never looked up in storage.
type JWTIssuer struct {
	secret   []byte
	lifetime time.Duration
}

// NewJWTIssuer creates an issuer with the given secret and token lifetime.
func NewJWTIssuer(secret []byte, lifetime time.Duration) *JWTIssuer {
	return &JWTIssuer{secret: secret, lifetime: lifetime}
}

// Issue creates a new signed token for the given user.
func (i *JWTIssuer) Issue(userID, username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      userID,
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(i.lifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate checks the token signature and expiry and extracts the user identity.
func (i *JWTIssuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := mapClaims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	username, ok := mapClaims["username"].(string)
	if !ok || username == "" {
		return nil, fmt.Errorf("%w: username", ErrMissingClaim)
	}

	return &Claims{UserID: sub, Username: username}, nil
}
