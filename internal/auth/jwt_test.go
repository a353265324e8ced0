package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := NewToken("secret", "issuer", time.Minute, Claims{
		Email: "student@demo.local",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if claims.Email != "student@demo.local" {
		t.Fatalf("unexpected claims: %s", claims.Email)
	}
	if claims.Issuer != "issuer" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewToken("secret", "issuer", time.Minute, Claims{Email: "a@b.c"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("other-secret", token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := NewToken("secret", "issuer", -time.Minute, Claims{Email: "a@b.c"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", token); err == nil {
		t.Fatalf("expected expiry error")
	}
}
