package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"innkeeper/internal/domain"
)

// CodeGenerator issues booking codes: prefix plus fixed-width random digits.
type CodeGenerator struct {
	prefix   string
	digits   int
	attempts int
	rand     io.Reader
}

func NewCodeGenerator(prefix string, digits, attempts int) *CodeGenerator {
	if digits <= 0 {
		digits = 4
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &CodeGenerator{prefix: prefix, digits: digits, attempts: attempts, rand: rand.Reader}
}

func (g *CodeGenerator) candidate() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(g.digits)), nil)
	n, err := rand.Int(g.rand, limit)
	if err != nil {
		return "", fmt.Errorf("generate booking code: %w", err)
	}
	return fmt.Sprintf("%s%0*d", g.prefix, g.digits, n.Int64()), nil
}

// Next returns a code for which taken reports false. It gives up with
// ErrTransactionFailure after the configured number of attempts.
func (g *CodeGenerator) Next(ctx context.Context, taken func(ctx context.Context, code string) (bool, error)) (string, error) {
	for i := 0; i < g.attempts; i++ {
		code, err := g.candidate()
		if err != nil {
			return "", err
		}
		exists, err := taken(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free booking code after %d attempts: %w", g.attempts, domain.ErrTransactionFailure)
}
