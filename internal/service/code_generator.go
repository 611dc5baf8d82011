package service

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/huddlehq/huddle/internal/domain"
)

// CodeChecker answers whether a meeting code is already taken.
type CodeChecker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

const (
	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeSegments  = 3
	segmentLength = 3
	codeAttempts  = 10
)

// CodeGenerator produces unique human-typable meeting codes in the form
// XXX-XXX-XXX. The existence check is an optimization; the unique
// constraint on meetings.code is the authoritative guard.
type CodeGenerator struct {
	checker CodeChecker
}

func NewCodeGenerator(checker CodeChecker) *CodeGenerator {
	return &CodeGenerator{checker: checker}
}

func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}

		exists, err := g.checker.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", domain.ErrCodeExhausted
}

func randomCode() (string, error) {
	buf := make([]byte, codeSegments*segmentLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	out := make([]byte, 0, len(buf)+codeSegments-1)
	for i, b := range buf {
		if i > 0 && i%segmentLength == 0 {
			out = append(out, '-')
		}
		out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
	}
	return string(out), nil
}
