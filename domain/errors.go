package domain

import (
	"errors"
	"fmt"
)

// ErrKind classifies every error the board surfaces to its consumers.
type ErrKind string

const (
	KindFetch        ErrKind = "fetch"
	KindMutation     ErrKind = "mutation"
	KindNotFound     ErrKind = "not_found"
	KindSubscription ErrKind = "subscription"
)

// Error wraps a failure with its taxonomy kind and the operation that
// produced it. No Error is ever fatal to the process.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func NewError(kind ErrKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the taxonomy kind of err, if it carries one.
func KindOf(err error) (ErrKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}
