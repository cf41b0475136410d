package auth

import (
	"errors"
	"testing"
	"time"
)

func TestDevModeTokenIsSubject(t *testing.T) {
	v := NewVerifier("dev", "", "")
	c, err := v.Verify("user-42")
	if err != nil || c.Subject != "user-42" {
		t.Fatalf("verify: %v %+v", err, c)
	}
	if _, err := v.Verify("   "); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("blank token: %v", err)
	}
	tok, err := v.Sign("user-42", "x@example.com", time.Hour)
	if err != nil || tok != "user-42" {
		t.Fatalf("sign: %v %q", err, tok)
	}
}

func TestHMACSignVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("hmac", "topsecret", "")
	tok, err := v.Sign("user-7", "u7@example.com", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	c, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.Subject != "user-7" || c.Email != "u7@example.com" {
		t.Fatalf("claims: %+v", c)
	}

	// wrong secret rejected
	other := NewVerifier("hmac", "different", "")
	if _, err := other.Verify(tok); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("wrong secret: %v", err)
	}
	// garbage rejected
	if _, err := v.Verify("not.a.jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("garbage: %v", err)
	}
}

func TestHMACExpiry(t *testing.T) {
	v := NewVerifier("hmac", "topsecret", "")
	tok, err := v.Sign("user-7", "", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Verify(tok); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expired token: %v", err)
	}
}
