package session

import (
	"strings"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	iss, err := NewIssuer("test-secret", 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, expiresAt, err := iss.Issue(42, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}
	id, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.AccountID != 42 || id.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	iss, _ := NewIssuer("test-secret", time.Hour)
	token, _, err := iss.Issue(7, "bob")
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}
	flipped := []byte(parts[1])
	if flipped[0] == 'A' {
		flipped[0] = 'B'
	} else {
		flipped[0] = 'A'
	}
	tampered := parts[0] + "." + string(flipped) + "." + parts[2]
	if _, err := iss.Verify(tampered); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, _ := NewIssuer("secret-a", time.Hour)
	b, _ := NewIssuer("secret-b", time.Hour)
	token, _, _ := a.Issue(1, "carol")
	if _, err := b.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	iss, _ := NewIssuer("test-secret", time.Hour, WithClock(func() time.Time { return clock }))
	token, _, err := iss.Issue(9, "dave")
	if err != nil {
		t.Fatal(err)
	}
	clock = base.Add(time.Hour + time.Second)
	if _, err := iss.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	iss, _ := NewIssuer("test-secret", time.Hour)
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := iss.Verify(tok); err != ErrInvalidToken {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}
