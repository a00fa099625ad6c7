package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nurpe/skillspot-settlement/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	parser := NewParser("test-secret")
	principal := model.Principal{UserID: uuid.New(), UserType: model.UserTypeBoth}

	token, expiresAt, err := parser.Issue(principal, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	if time.Until(expiresAt) < 59*time.Minute {
		t.Errorf("unexpected expiry %v", expiresAt)
	}

	got, err := parser.Parse(token)
	if err != nil {
		t.Fatalf("Failed to parse token: %v", err)
	}
	if got != principal {
		t.Errorf("expected %+v, got %+v", principal, got)
	}
}

func TestParseRejects(t *testing.T) {
	parser := NewParser("test-secret")

	sign := func(secret string, claims Claims) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		s, err := token.SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	valid := jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	badSubject := valid
	badSubject.Subject = "user-1"

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"wrong secret", sign("other", Claims{UserType: "CLIENT", RegisteredClaims: valid})},
		{"expired", sign("test-secret", Claims{UserType: "CLIENT", RegisteredClaims: expired})},
		{"subject not uuid", sign("test-secret", Claims{UserType: "CLIENT", RegisteredClaims: badSubject})},
		{"unknown user type", sign("test-secret", Claims{UserType: "ADMIN", RegisteredClaims: valid})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parser.Parse(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
