package utils

import (
	"crypto/rand"
	"math/big"
)

const (
	JoinCodeLength   = 16
	JoinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewJoinCode returns a random team invite code. 62^16 possible values make
// collisions rare enough to be resolved by the database unique index alone.
func NewJoinCode() (string, error) {
	return randomString(JoinCodeAlphabet, JoinCodeLength)
}

func randomString(alphabet string, length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)

	for i := range out {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[num.Int64()]
	}

	return string(out), nil
}

// IsJoinCode reports whether s has the shape of a code produced by NewJoinCode.
func IsJoinCode(s string) bool {
	if len(s) != JoinCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
