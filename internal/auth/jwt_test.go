package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", "operator@example.com", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	subject, err := VerifyToken("secret", token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "operator@example.com" {
		t.Fatalf("subject = %q", subject)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret", "op", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := VerifyToken("other-secret", token); err == nil {
		t.Fatal("token signed with a different secret must be rejected")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	token, err := GenerateToken("secret", "op", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := VerifyToken("secret", token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestGenerateRequiresSecret(t *testing.T) {
	if _, err := GenerateToken("", "op", time.Hour); err == nil {
		t.Fatal("empty secret must be rejected")
	}
}
