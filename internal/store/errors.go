package store

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by every backend. Callers test with errors.Is.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyExists    = errors.New("already exists")
	ErrConflict         = errors.New("version conflict")
	ErrTransient        = errors.New("transient store error")
	ErrPermissionDenied = errors.New("permission denied")
)

// Kind is the caller facing error classification.
type Kind int

const (
	KindFatal Kind = iota
	KindInvalidArgument
	KindNotFound
	KindInvalidState
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindNotFound:
		return "NotFound"
	case KindInvalidState:
		return "InvalidState"
	case KindTransient:
		return "Transient"
	default:
		return "Fatal"
	}
}

// Classify maps any error onto the error taxonomy. A nil error classifies as Fatal
// and should not be passed in.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrAlreadyExists):
		return KindInvalidArgument
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrTransient), errors.Is(err, ErrConflict), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindFatal
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == KindTransient
}

func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
