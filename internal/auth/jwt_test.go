package auth

import (
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager("secret", "calldeck", time.Hour)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	token, err := m.Issue(now, "user-1", "Alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Name != "Alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager("secret", "calldeck", time.Minute)
	now := time.Unix(1700000000, 0).UTC()
	token, err := m.Issue(now, "user-1", "Alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(token, now.Add(time.Hour)); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewManager("secret-a", "calldeck", time.Hour)
	verifier, _ := NewManager("secret-b", "calldeck", time.Hour)
	now := time.Now()
	token, err := issuer.Issue(now, "user-1", "Alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(token, now); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	other, _ := NewManager("secret", "somewhere-else", time.Hour)
	m, _ := NewManager("secret", "calldeck", time.Hour)
	now := time.Now()
	token, err := other.Issue(now, "user-1", "Alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(token, now); err == nil {
		t.Fatal("expected issuer error")
	}
}

func TestManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager("", "calldeck", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
