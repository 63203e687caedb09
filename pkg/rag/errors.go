package rag

import (
	"errors"
	"fmt"
)

var (
	ErrExtraction           = errors.New("document extraction failed")
	ErrNoContent            = fmt.Errorf("%w: no extractable text", ErrExtraction)
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	ErrVectorStore          = errors.New("vector store unavailable")
	ErrGeneration           = errors.New("generation failed")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
)

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) || errors.Is(err, ErrVectorStore)
}
