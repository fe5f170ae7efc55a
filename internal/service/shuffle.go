package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// shuffle permutes s in place with Fisher-Yates, drawing indices from crypto/rand.
func shuffle[T any](s []T) error {
	for i := len(s) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("draw random index: %w", err)
		}
		j := int(n.Int64())
		s[i], s[j] = s[j], s[i]
	}
	return nil
}
