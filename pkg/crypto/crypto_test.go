package crypto

import (
	"strings"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if len(token) == 0 {
		t.Fatal("expected token to be non-empty")
	}
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("expected URL-safe token, got %q", token)
	}

	other, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if token == other {
		t.Fatal("expected distinct tokens")
	}
}

func TestGenerateTokenRejectsNonPositiveLength(t *testing.T) {
	if _, err := GenerateToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("key") != HashToken("key") {
		t.Fatal("expected identical digests")
	}
	if HashToken("key") == HashToken("other") {
		t.Fatal("expected different digests")
	}
	if len(HashToken("key")) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(HashToken("key")))
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("secret", "secret") {
		t.Fatal("expected equal secrets to match")
	}
	if ConstantTimeEqual("secret", "secreT") {
		t.Fatal("expected different secrets not to match")
	}
	if ConstantTimeEqual("", "") {
		t.Fatal("expected empty secrets never to match")
	}
}
