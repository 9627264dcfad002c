// Package vectorindex defines the provider-neutral approximate-nearest-neighbor
// surface the linker depends on. Implementations live in subpackages (qdrant,
// pinecone); the application resolves one at bootstrap based on configuration
// and the linker degrades gracefully when none is configured.
package vectorindex

import (
	"context"
	"fmt"
)

// Vector is one embedded entry as stored in the index. Namespace scopes
// vectors to their owner so queries never cross user boundaries.
type Vector struct {
	ID        string
	Namespace string
	Values    []float32
	Metadata  map[string]any
}

// Match is a scored result from Query. Score is cosine similarity
// normalized to [0,1], higher is more similar.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

type Index interface {
	Upsert(ctx context.Context, vectors []Vector) error
	Query(ctx context.Context, namespace string, values []float32, topK int) ([]Match, error)
	Delete(ctx context.Context, namespace string, ids []string) error
}

type OperationErrorCode string

const (
	OpErrInvalidInput  OperationErrorCode = "INVALID_INPUT"
	OpErrRequestFailed OperationErrorCode = "REQUEST_FAILED"
	OpErrBadStatus     OperationErrorCode = "BAD_STATUS"
	OpErrDecodeFailed  OperationErrorCode = "DECODE_FAILED"
	OpErrNotReady      OperationErrorCode = "NOT_READY"
)

type OperationError struct {
	Code OperationErrorCode
	Op   string
	Err  error
}

func (e *OperationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Op, e.Code)
}

func (e *OperationError) Unwrap() error { return e.Err }

func OpErr(code OperationErrorCode, op string, err error) *OperationError {
	return &OperationError{Code: code, Op: op, Err: err}
}
