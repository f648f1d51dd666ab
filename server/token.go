package server

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	tokenLength = 32
	tokenChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewToken returns a random alphanumeric secret
func NewToken() (string, error) {
	limit := big.NewInt(int64(len(tokenChars)))
	token := make([]byte, tokenLength)
	for i := range token {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		token[i] = tokenChars[n.Int64()]
	}
	return string(token), nil
}
