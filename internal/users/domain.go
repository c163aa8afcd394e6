package users

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/secure/precis"
)

// User represents an account in the identity store.
type User struct {
	ID           uint32
	Username     string
	PasswordHash []byte
	Attributes   map[string]string
}

// HashPassword derives the stored bcrypt hash for a password.
func HashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// ValidateUsername enforces well-formedness without case-folding;
// usernames stay case-sensitive.
func ValidateUsername(name string) error {
	if _, err := precis.UsernameCasePreserved.String(name); err != nil {
		return fmt.Errorf("users: invalid username %q: %v", name, err)
	}
	return nil
}
