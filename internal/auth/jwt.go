package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrUnknownRole  = errors.New("unknown role")
)

const (
	RoleCashier   = "cashier"
	RoleInventory = "inventory"
	RoleAdmin     = "admin"
)

// Claims carried by a till or back-office token.
type Claims struct {
	CashierID string `json:"cashier_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// KnownRole reports whether role is one the API authorizes on.
func KnownRole(role string) bool {
	switch role {
	case RoleCashier, RoleInventory, RoleAdmin:
		return true
	}
	return false
}

// HasRole reports whether the token carries one of roles.
func (c *Claims) HasRole(roles ...string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// JWTService validates HS256 bearer tokens. Tokens are normally issued by
// the clinic's identity service; GenerateToken exists for operators and tests.
type JWTService struct {
	secretKey   []byte
	tokenExpiry time.Duration
}

// NewJWTService creates a new JWT service
func NewJWTService(secretKey string, expiry time.Duration) *JWTService {
	return &JWTService{
		secretKey:   []byte(secretKey),
		tokenExpiry: expiry,
	}
}

// GenerateToken signs a token for a cashier or terminal.
func (s *JWTService) GenerateToken(cashierID, role string) (string, time.Time, error) {
	if !KnownRole(role) {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	now := time.Now()
	expiresAt := now.Add(s.tokenExpiry)

	claims := Claims{
		CashierID: cashierID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   cashierID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ValidateToken accepts only HS256 tokens that name a cashier and a known
// role.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.CashierID == "" || !KnownRole(claims.Role) {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *JWTService) TokenExpiry() time.Duration {
	return s.tokenExpiry
}
