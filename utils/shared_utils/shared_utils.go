package shared_utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const charset = "0123456789abcdefghjkmnpqrstuvwxyz"

// GenerateTinyID returns a random string over an unambiguous lowercase charset.
func GenerateTinyID(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	if length > 1000 {
		return "", fmt.Errorf("length too large")
	}
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = charset[num.Int64()]
	}
	return string(result), nil
}

// NewRequestRef returns the host-visible booking reference, e.g. BK-4K7M2QXA.
func NewRequestRef() (string, error) {
	id, err := GenerateTinyID(8)
	if err != nil {
		return "", err
	}
	return "BK-" + strings.ToUpper(id), nil
}
