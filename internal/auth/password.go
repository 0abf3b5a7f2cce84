package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes and verifies passwords with a fixed bcrypt cost.
type Bcrypt struct {
	Cost int
}

// NewBcrypt returns a Bcrypt using bcrypt.DefaultCost.
func NewBcrypt() Bcrypt {
	return Bcrypt{Cost: bcrypt.DefaultCost}
}

// Hash returns the bcrypt hash of password.
func (b Bcrypt) Hash(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. The comparison is constant time.
func (b Bcrypt) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword hashes password with the default cost.
func HashPassword(password string) (string, error) {
	return NewBcrypt().Hash(password)
}
