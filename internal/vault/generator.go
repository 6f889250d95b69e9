package vault

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

// MinGeneratedLength is the shortest secret Generate produces.
const MinGeneratedLength = 12

const (
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()-_=+[]{};:,.<>/?~"

	generatorAlphabet = lowerChars + upperChars + digitChars + symbolChars
)

// Generate returns a random secret of length characters drawn uniformly
// from mixed-case letters, digits and symbols using crypto/rand.
func Generate(length int) ([]byte, error) {
	if length < MinGeneratedLength {
		return nil, fmt.Errorf("%w: length must be at least %d", common.ErrInvalidInput, MinGeneratedLength)
	}

	max := big.NewInt(int64(len(generatorAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			common.WipeByteArray(out)
			return nil, fmt.Errorf("failed to read random: %w", err)
		}
		out[i] = generatorAlphabet[n.Int64()]
	}
	return out, nil
}
