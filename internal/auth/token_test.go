// ABOUTME: Tests for JWT session token issuing and validation
// ABOUTME: Covers round trips, expiry, signature tampering, and claim checks

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-at-least-32-bytes-long!!")

func TestIssueAndValidate(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)

	token, err := issuer.Issue("user-1", "alice")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", claims.UserID, "user-1")
	}
	if claims.Username != "alice" {
		t.Errorf("Username = %q, want %q", claims.Username, "alice")
	}
}

func TestValidate_Expired(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, -time.Minute)

	token, err := issuer.Issue("user-1", "alice")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	_, err = issuer.Validate(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Validate error = %v, want ErrExpiredToken", err)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)
	other := NewJWTIssuer([]byte("a-completely-different-secret-value!"), time.Hour)

	token, err := other.Issue("user-1", "alice")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	_, err = issuer.Validate(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate error = %v, want ErrInvalidToken", err)
	}
}

func TestValidate_Garbage(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := issuer.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate(%q) error = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestValidate_WrongSigningMethod(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)

	// "none" algorithm tokens must be rejected outright
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":      "user-1",
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	if _, err := issuer.Validate(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate error = %v, want ErrInvalidToken", err)
	}
}

func TestValidate_MissingClaims(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)

	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"no sub", jwt.MapClaims{"username": "alice", "exp": time.Now().Add(time.Hour).Unix()}},
		{"no username", jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()}},
		{"empty sub", jwt.MapClaims{"sub": "", "username": "alice", "exp": time.Now().Add(time.Hour).Unix()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims)
			signed, err := token.SignedString(testSecret)
			if err != nil {
				t.Fatalf("signing failed: %v", err)
			}
			if _, err := issuer.Validate(signed); !errors.Is(err, ErrMissingClaim) {
				t.Errorf("Validate error = %v, want ErrMissingClaim", err)
			}
		})
	}
}
