package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	courseKeyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	courseKeyLength   = 8
	passwordAlphabet  = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	passwordLength    = 12
)

// KeyGenerator produces random tokens such as course join keys.
type KeyGenerator interface {
	Generate() (string, error)
}

// RandomKeyGenerator draws characters uniformly from an alphabet using crypto/rand.
type RandomKeyGenerator struct {
	alphabet string
	length   int
}

// NewCourseKeyGenerator returns the generator for course join keys.
func NewCourseKeyGenerator() *RandomKeyGenerator {
	return &RandomKeyGenerator{alphabet: courseKeyAlphabet, length: courseKeyLength}
}

// NewPasswordGenerator returns the generator for recovered passwords.
func NewPasswordGenerator() *RandomKeyGenerator {
	return &RandomKeyGenerator{alphabet: passwordAlphabet, length: passwordLength}
}

// Generate returns a new random token.
func (g *RandomKeyGenerator) Generate() (string, error) {
	size := big.NewInt(int64(len(g.alphabet)))
	out := make([]byte, g.length)
	for i := range out {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate key: %w", err)
		}
		out[i] = g.alphabet[n.Int64()]
	}
	return string(out), nil
}
