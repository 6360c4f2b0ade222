package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestJWTServiceGenerateValidate(t *testing.T) {
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	service := NewJWTService("secret", "shiftline", time.Hour).WithClock(fixedClock(now))

	token, expiresAt, err := service.Generate(Identity{UserID: "u1", CompanyID: "co1", Role: "ADMIN", Name: " 山田 "})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected expiry %v, got %v", now.Add(time.Hour), expiresAt)
	}

	identity, err := service.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	want := Identity{UserID: "u1", CompanyID: "co1", Role: "ADMIN", Name: "山田", ExpiresAt: now.Add(time.Hour)}
	if identity != want {
		t.Fatalf("expected %+v, got %+v", want, identity)
	}
}

func TestJWTServiceRejects(t *testing.T) {
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	service := NewJWTService("secret", "shiftline", time.Hour).WithClock(fixedClock(now))
	token, _, err := service.Generate(Identity{UserID: "u1", CompanyID: "co1"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	t.Run("expired", func(t *testing.T) {
		later := NewJWTService("secret", "shiftline", time.Hour).WithClock(fixedClock(now.Add(2 * time.Hour)))
		if _, err := later.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService("other", "shiftline", time.Hour).WithClock(fixedClock(now))
		if _, err := other.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService("secret", "elsewhere", time.Hour).WithClock(fixedClock(now))
		if _, err := other.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := service.Validate("not-a-token"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := Claims{CompanyID: "co1", RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "shiftline",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := service.Validate(unsigned); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("missing company", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "shiftline",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := service.Validate(signed); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestJWTServiceDisabled(t *testing.T) {
	service := NewJWTService("", "", 0)
	if _, _, err := service.Generate(Identity{UserID: "u1", CompanyID: "co1"}); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("expected ErrAuthDisabled, got %v", err)
	}
	if _, err := service.Validate("x"); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("expected ErrAuthDisabled, got %v", err)
	}
}

func TestJWTServiceGenerateRequiresSubject(t *testing.T) {
	service := NewJWTService("secret", "", time.Hour)
	if _, _, err := service.Generate(Identity{CompanyID: "co1"}); err == nil {
		t.Fatal("expected error for missing user id")
	}
	if _, _, err := service.Generate(Identity{UserID: "u1"}); err == nil {
		t.Fatal("expected error for missing company id")
	}
}
