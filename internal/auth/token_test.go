// ABOUTME: Unit tests for JWT token verification and generation
// ABOUTME: Tests valid tokens, invalid tokens, expired tokens and scopes

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-jwt-signing")

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	token, err := verifier.Generate("dashboard", []string{ScopeRead}, time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if claims.Subject != "dashboard" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "dashboard")
	}
	if !claims.HasScope(ScopeRead) {
		t.Error("expected read scope")
	}
	if claims.HasScope(ScopeWrite) {
		t.Error("read token must not grant write")
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-jwt-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				other := NewJWTVerifier([]byte("different-secret"))
				token, _ := other.Generate("dashboard", nil, time.Hour)
				return token
			}(),
		},
		{
			name: "wrong issuer",
			token: func() string {
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
					"iss": "someone-else",
					"sub": "dashboard",
					"exp": time.Now().Add(time.Hour).Unix(),
				}).SignedString(testSecret)
				return token
			}(),
		},
		{
			name: "no expiry",
			token: func() string {
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
					"iss": Issuer,
					"sub": "dashboard",
				}).SignedString(testSecret)
				return token
			}(),
		},
		{
			name: "wrong algorithm",
			token: func() string {
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
					"iss": Issuer,
					"sub": "dashboard",
					"exp": time.Now().Add(time.Hour).Unix(),
				}).SignedString(testSecret)
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	token, err := verifier.Generate("dashboard", nil, -time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = verifier.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTVerifier_MissingSubject(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	if _, err := verifier.Generate("", nil, time.Hour); !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Generate() error = %v, want ErrMissingClaim", err)
	}

	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": Issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)

	if _, err := verifier.Verify(token); !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Verify() error = %v, want ErrMissingClaim", err)
	}
}

func TestClaims_WriteImpliesRead(t *testing.T) {
	c := &Claims{Subject: "ops", Scopes: []string{ScopeWrite}}
	if !c.HasScope(ScopeRead) || !c.HasScope(ScopeWrite) {
		t.Errorf("write scope should grant read and write, got %v", c.Scopes)
	}
}
