package httpapi

import (
	"errors"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
)

// AuthManager verifies bearer tokens issued by the identity provider.
// This service never signs tokens.
type AuthManager struct {
	secret []byte
	issuer string
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// NewAuthManager verifies HS256 tokens signed with secret. A non-empty issuer
// is enforced on every token.
func NewAuthManager(secret string, issuer string) *AuthManager {
	return &AuthManager{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.issuer))
	}

	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	switch claims.Role {
	case domain.RoleCashier, domain.RoleAdmin:
	default:
		return domain.Actor{}, errors.New("invalid token role")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}
