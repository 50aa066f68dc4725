// Package yamlerr defines the single error sum type shared by every layer
// of yamldb, from the executor up through the wire protocol servers.
package yamlerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies an Error into the taxonomy from which both the
// PostgreSQL SQLSTATE and the MySQL error code are derived.
type Kind int

const (
	KindParse Kind = iota
	KindNotFound
	KindType
	KindArithmetic
	KindNotImplemented
	KindAuth
	KindProtocol
	KindResource
	KindIO
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindNotFound:
		return "not_found"
	case KindType:
		return "type"
	case KindArithmetic:
		return "arithmetic"
	case KindNotImplemented:
		return "not_implemented"
	case KindAuth:
		return "auth"
	case KindProtocol:
		return "protocol"
	case KindResource:
		return "resource"
	case KindIO:
		return "io"
	default:
		return "internal"
	}
}

// Error is the one error type produced by the SQL engine and the
// connection layer. Protocol handlers map Kind to their own wire
// representation (SQLSTATE for Postgres, error code for MySQL). stack
// carries a cockroachdb/errors-captured stack trace taken at the point
// the Error was constructed, independent of Wrapped (the original error
// this one reports alongside its Message) — so a deeply nested
// yamlerr.Wrap chain still has one stack frame per layer without losing
// the taxonomy's flat Kind/Message shape.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
	stack   error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// StackTrace renders the cockroachdb/errors stack frames captured when e
// was constructed, for debug-level diagnostic logging.
func (e *Error) StackTrace() string {
	return fmt.Sprintf("%+v", e.stack)
}

func New(kind Kind, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Message: msg, stack: errors.NewWithDepth(1, msg)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Message: msg, Wrapped: err, stack: errors.WrapWithDepth(1, err, msg)}
}

// NotImplemented is a convenience constructor matching the frequency with
// which the executor needs to reject an unsupported SQL construct.
func NotImplemented(format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: KindNotImplemented, Message: msg, stack: errors.NewWithDepth(1, msg)}
}
