package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the lower-case hex sha256 digest of an already normalized value.
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func HashEmail(raw string) (string, error) {
	n, err := NormalizeEmail(raw)
	if err != nil {
		return "", err
	}
	return Hash(n), nil
}

func HashPhone(raw, countryHint string) (string, error) {
	n, err := NormalizePhone(raw, countryHint)
	if err != nil {
		return "", err
	}
	return Hash(n), nil
}
