package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUnfiltered is returned by Update and Delete when called without filters.
var ErrUnfiltered = errors.New("storage: refusing unfiltered mutation")

// ErrorKind classifies remote failures.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindAuth       ErrorKind = "auth"
	KindConstraint ErrorKind = "constraint"
	KindQuery      ErrorKind = "query"
	KindCanceled   ErrorKind = "canceled"
)

// Error is the only error type a Store returns.
type Error struct {
	Kind    ErrorKind
	Op      string // select | insert | update | delete | count | ddl | connect
	Table   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("storage %s (%s): %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("storage %s %s (%s): %s", e.Op, e.Table, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Classifier maps a driver error to an ErrorKind. Backends supply one.
type Classifier func(err error) ErrorKind

// Wrap converts err into a *Error. It returns nil for a nil err and passes an
// existing *Error through unchanged. Context errors are always KindCanceled;
// otherwise classify decides, then net.Error means KindNetwork, else KindQuery.
func Wrap(op, table string, err error, classify Classifier) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	var kind ErrorKind
	var ne net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindCanceled
	case classify != nil:
		kind = classify(err)
	}
	if kind == "" && errors.As(err, &ne) {
		kind = KindNetwork
	}
	if kind == "" {
		kind = KindQuery
	}
	return &Error{Kind: kind, Op: op, Table: table, Message: err.Error(), Err: err}
}

// KindOf returns the ErrorKind of err, or "" when err is not a *Error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
