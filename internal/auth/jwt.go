package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kiwari-pos/floorops/internal/enum"
)

// Token lifetimes. Station tablets stay signed in for a shift; a table
// token lasts for a sitting.
const (
	StaffTokenTTL    = 12 * time.Hour
	CustomerTokenTTL = 4 * time.Hour
)

type Claims struct {
	Role        string `json:"role"`
	TableNumber int    `json:"table_number,omitempty"`
	jwt.RegisteredClaims
}

// IsStaff reports whether the token belongs to kitchen, bar or admin staff.
func (c *Claims) IsStaff() bool {
	return c.Role == enum.RoleKitchen || c.Role == enum.RoleBar || c.Role == enum.RoleAdmin
}

// Station maps a station role to its station name.
func (c *Claims) Station() (string, bool) {
	switch c.Role {
	case enum.RoleKitchen:
		return enum.StationKitchen, true
	case enum.RoleBar:
		return enum.StationBar, true
	}
	return "", false
}

func GenerateToken(secret, role string, tableNumber int, ttl time.Duration) (string, error) {
	now := time.Now()
	subject := role
	if tableNumber > 0 {
		subject = fmt.Sprintf("table-%d", tableNumber)
	}
	claims := Claims{
		Role:        role,
		TableNumber: tableNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
