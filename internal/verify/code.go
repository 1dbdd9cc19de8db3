package verify

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

// CodeLength is the fixed length of one-time verification codes.
const CodeLength = 6

// codeSpan covers [100000, 999999]; the offset keeps the first digit non-zero
// so codes are always exactly six characters.
var codeSpan = big.NewInt(900000)

// GenerateCode returns a uniformly distributed 6-digit one-time code.
// Codes are authentication secrets, so the randomness source is crypto/rand.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("verify: generate code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

// IsCodeShaped reports whether text looks like a submitted one-time code:
// exactly six ASCII digits.
func IsCodeShaped(text string) bool {
	if len(text) != CodeLength {
		return false
	}
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return false
		}
	}
	return true
}
