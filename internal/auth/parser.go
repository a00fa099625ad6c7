package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nurpe/skillspot-settlement/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the access token payload issued by the identity service.
type Claims struct {
	UserType string `json:"user_type"`
	jwt.RegisteredClaims
}

type Parser struct {
	secret []byte
}

func NewParser(secret string) *Parser {
	return &Parser{secret: []byte(secret)}
}

func (p *Parser) Parse(tokenString string) (model.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return model.Principal{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}
	userType, ok := model.ParseUserType(claims.UserType)
	if !ok {
		return model.Principal{}, fmt.Errorf("%w: unknown user_type %q", ErrInvalidToken, claims.UserType)
	}

	return model.Principal{UserID: userID, UserType: userType}, nil
}

// Issue signs an access token for the principal. Used by the operator CLI and tests.
func (p *Parser) Issue(principal model.Principal, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserType: string(principal.UserType),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
