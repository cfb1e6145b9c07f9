// Package password hashes and verifies account credentials with bcrypt.
package password

import "golang.org/x/crypto/bcrypt"

// DefaultCost is the bcrypt work factor used for stored credentials.
const DefaultCost = 12

// Hasher hashes plaintext passwords and checks them against stored hashes.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

type Bcrypt struct {
	Cost int
}

func NewHasher() Hasher {
	return Bcrypt{Cost: DefaultCost}
}

func (b Bcrypt) Hash(plaintext string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. Malformed hashes never match.
func (b Bcrypt) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Hash hashes with the default cost.
func Hash(plaintext string) (string, error) {
	return Bcrypt{Cost: DefaultCost}.Hash(plaintext)
}

func Verify(plaintext, hash string) bool {
	return Bcrypt{}.Verify(plaintext, hash)
}
