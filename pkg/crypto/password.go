package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted plaintext.
const MinPasswordLength = 6

// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
var ErrWeakPassword = errors.New("crypto: password too short")

// HashPassword hashes plaintext using bcrypt.
func HashPassword(plain string) ([]byte, error) {
	if len(plain) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// ComparePassword compares plaintext to hashed secret.
func ComparePassword(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}
