package session

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/victornm/livequiz/internal/domain"
)

// codeAlphabet leaves out characters that are easy to mix up when read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateCode() (string, error) {
	b := make([]byte, domain.SessionCodeLength)
	n := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		r, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("generate session code: %w", err)
		}
		b[i] = codeAlphabet[r.Int64()]
	}

	return string(b), nil
}
