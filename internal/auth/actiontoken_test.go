package auth

import (
	"errors"
	"testing"
	"time"
)

func TestActionCodecRoundTrip(t *testing.T) {
	codec := NewActionCodec("unit-test-secret", SaltEmailActions)

	token, err := codec.Issue(map[string]string{"email": "a@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	payload, err := codec.Decode(token, time.Hour)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload["email"] != "a@example.com" {
		t.Fatalf("payload not preserved: %v", payload)
	}
}

func TestActionCodecMaxAge(t *testing.T) {
	codec := NewActionCodec("unit-test-secret", SaltEmailActions)

	issued := time.Now()
	codec.now = func() time.Time { return issued }
	token, err := codec.Issue(map[string]string{"email": "a@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	codec.now = func() time.Time { return issued.Add(30 * time.Minute) }
	if _, err := codec.Decode(token, time.Hour); err != nil {
		t.Fatalf("token inside the window must decode: %v", err)
	}

	codec.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := codec.Decode(token, time.Hour); !errors.Is(err, ErrActionTokenExpired) {
		t.Fatalf("expected ErrActionTokenExpired, got %v", err)
	}
}

func TestActionCodecRejectsTampering(t *testing.T) {
	codec := NewActionCodec("unit-test-secret", SaltEmailActions)
	token, err := codec.Issue(map[string]string{"email": "a@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	tampered := "x" + token
	if _, err := codec.Decode(tampered, time.Hour); !errors.Is(err, ErrActionTokenInvalid) {
		t.Fatalf("expected ErrActionTokenInvalid, got %v", err)
	}
	if _, err := codec.Decode("one.two", time.Hour); !errors.Is(err, ErrActionTokenInvalid) {
		t.Fatalf("expected ErrActionTokenInvalid for a malformed token, got %v", err)
	}
}

func TestActionCodecDomainSeparation(t *testing.T) {
	jwtCodec := newTestCodec(t)
	actionCodec := NewActionCodec("unit-test-secret", SaltEmailActions)

	// A signed bearer token must never validate as an email action link,
	// even though both derive from the same server secret.
	bearer, err := jwtCodec.Issue(UserClaims{Email: "a@example.com", UserID: "u1"}, time.Hour, false)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := actionCodec.Decode(bearer, time.Hour); !errors.Is(err, ErrActionTokenInvalid) {
		t.Fatalf("bearer token must not decode as an action token, got %v", err)
	}

	// And the other way around.
	action, err := actionCodec.Issue(map[string]string{"email": "a@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := jwtCodec.Decode(action); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("action token must not decode as a bearer token, got %v", err)
	}
}

func TestActionCodecSaltSeparation(t *testing.T) {
	a := NewActionCodec("unit-test-secret", "salt-one")
	b := NewActionCodec("unit-test-secret", "salt-two")

	token, err := a.Issue(map[string]string{"email": "a@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Decode(token, time.Hour); !errors.Is(err, ErrActionTokenInvalid) {
		t.Fatalf("different salts must not cross-validate, got %v", err)
	}
}
