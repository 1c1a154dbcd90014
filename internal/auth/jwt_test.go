package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, err := m.GenerateToken("ops-dashboard")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	got, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if got.Name != "ops-dashboard" {
		t.Fatalf("Name = %q, want ops-dashboard", got.Name)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", time.Hour).GenerateToken("x")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := NewManager("secret-b", time.Hour).ValidateToken(token); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	m := &Manager{secret: []byte("test-secret"), tokenTTL: -time.Minute}
	token, err := m.GenerateToken("x")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := m.ValidateToken(token); err != ErrTokenExpired {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	if _, err := m.ValidateToken("not.a.token"); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
