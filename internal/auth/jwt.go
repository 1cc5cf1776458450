package auth

import (
	"crypto/rsa"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
)

const (
	RoleAdmin  = "admin"
	RoleClinic = "clinic"
)

// Identity is what the rest of the service knows about a caller.
type Identity struct {
	UserID string
	Role   string
	Admin  bool
}

// CanAdminister reports whether the identity may run privileged operations.
func (i *Identity) CanAdminister() bool {
	return i != nil && (i.Admin || i.Role == RoleAdmin)
}

// CanBroadcast reports whether the identity may send fan-out alerts.
func (i *Identity) CanBroadcast() bool {
	return i.CanAdminister() || (i != nil && i.Role == RoleClinic)
}

type Verifier interface {
	Verify(token string) (*Identity, error)
}

type JWTValidator struct {
	method string
	key    any
}

func NewJWTValidatorHS256(secret string) (*JWTValidator, error) {
	if secret == "" {
		return nil, errors.New("hs256 secret empty")
	}
	return &JWTValidator{method: jwt.SigningMethodHS256.Alg(), key: []byte(secret)}, nil
}

func NewJWTValidatorRS256(publicKeyPath string) (*JWTValidator, error) {
	b, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, err
	}
	return newRSAValidator(pub), nil
}

func newRSAValidator(pub *rsa.PublicKey) *JWTValidator {
	return &JWTValidator{method: jwt.SigningMethodRS256.Alg(), key: pub}
}

// NewJWTValidator picks the algorithm from configuration.
func NewJWTValidator(alg, secret, publicKeyPath string) (*JWTValidator, error) {
	if strings.EqualFold(alg, "RS256") {
		return NewJWTValidatorRS256(publicKeyPath)
	}
	return NewJWTValidatorHS256(secret)
}

func (v *JWTValidator) Verify(tokenStr string) (*Identity, error) {
	if tokenStr == "" {
		return nil, apperr.Unauthenticated("missing credential", nil)
	}
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{v.method}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return nil, apperr.Unauthenticated("invalid or expired token", err)
	}

	// prefer "user_id" then "sub"
	var uid string
	if s, ok := claims["user_id"].(string); ok && s != "" {
		uid = s
	} else if s, ok := claims["sub"].(string); ok && s != "" {
		uid = s
	} else {
		return nil, apperr.Unauthenticated("missing user id in token", nil)
	}

	id := &Identity{UserID: uid}
	id.Role, _ = claims["role"].(string)
	id.Admin, _ = claims["admin"].(bool)
	return id, nil
}

// ParseBearerToken extracts the token from an Authorization header value.
func ParseBearerToken(header string) (string, error) {
	if header == "" {
		return "", apperr.Unauthenticated("missing authorization", nil)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperr.Unauthenticated("invalid authorization header", nil)
	}
	return strings.TrimSpace(parts[1]), nil
}
