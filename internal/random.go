package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

const tokenIDSize = 16 // 128 bits, the entropy floor for store keys

// NewTokenID returns an opaque, cryptographically random token identifier,
// base64url without padding.
func NewTokenID() (string, error) {
	var raw [tokenIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidTokenID reports whether s decodes to exactly 128 bits.
func ValidTokenID(s string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil && len(raw) == tokenIDSize
}

// NewOTP returns a fixed-length decimal one-time code. Each digit is drawn
// independently from a uniform distribution over '0'..'9' using crypto/rand.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// HashCode hashes a one-time code for storage. The plaintext code never hits
// Redis; validation compares hashes in constant time.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}
