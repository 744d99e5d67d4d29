package auth

import (
	"errors"

	"github.com/kiwari-pos/floorops/internal/enum"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidPIN = errors.New("invalid pin")

// PINs holds the bcrypt hash of each staff role's PIN. Empty hashes disable the role.
type PINs struct {
	Kitchen string
	Bar     string
	Admin   string
}

// HashPIN returns a bcrypt hash suitable for the *_PIN_HASH settings.
func HashPIN(pin string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Role returns the staff role whose PIN matches. Admin is checked first so a
// shared PIN resolves to the wider role.
func (p PINs) Role(pin string) (string, error) {
	if pin == "" {
		return "", ErrInvalidPIN
	}
	for _, c := range []struct{ role, hash string }{
		{enum.RoleAdmin, p.Admin},
		{enum.RoleKitchen, p.Kitchen},
		{enum.RoleBar, p.Bar},
	} {
		if c.hash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(c.hash), []byte(pin)) == nil {
			return c.role, nil
		}
	}
	return "", ErrInvalidPIN
}
