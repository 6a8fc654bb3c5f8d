package vcs

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("content unavailable")
	ErrBackendIO   = errors.New("backend i/o failure")
	ErrInvariant   = errors.New("invariant violation")
)

type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotFound
	KindUnavailable
	KindBackendIO
	KindInvariant
	KindCanceled
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindBackendIO:
		return "backend_io"
	case KindInvariant:
		return "invariant"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func (k ErrorKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrBackendIO):
		return KindBackendIO
	case errors.Is(err, ErrInvariant):
		return KindInvariant
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// FieldError marks one part of a response that could not be produced
// while the rest of it was.
type FieldError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func NewFieldError(err error) *FieldError {
	if err == nil {
		return nil
	}
	return &FieldError{Kind: KindOf(err), Message: err.Error()}
}

func (e *FieldError) Error() string { return e.Kind.String() + ": " + e.Message }
