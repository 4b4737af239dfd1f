// Package rbherrors classifies the error taxonomy described in spec.md §7:
// transient source errors, permission errors, validation errors, resource
// errors, target-store protocol errors, and end-of-stream. It is grounded
// on the teacher's fs/fserrors package, which wraps syscall.Errno and walks
// a chain of causes to decide whether an error is worth retrying.
package rbherrors

import (
	"errors"
	"fmt"
	"sync"
)

// Kind classifies an error the way spec.md §7's taxonomy does.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindTransient
	KindPermission
	KindValidation
	KindResource
	KindProtocol
	KindEndOfStream
	KindNotSupported
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermission:
		return "permission"
	case KindValidation:
		return "validation"
	case KindResource:
		return "resource"
	case KindProtocol:
		return "protocol"
	case KindEndOfStream:
		return "end-of-stream"
	case KindNotSupported:
		return "not-supported"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside a wrapped cause and an optional path, the
// machine-readable-kind-plus-free-form-message shape spec.md §7 calls for.
type Error struct {
	Kind Kind
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Op != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Err.Error()
	}
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As reach through to
// the underlying syscall.Errno.
func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Transient wraps err as a per-entry-skippable transient error (ESTALE,
// ENOENT on enrichment, ...).
func Transient(op, path string, err error) *Error { return New(KindTransient, op, path, err) }

// Permission wraps err as a per-entry-skippable permission error.
func Permission(op, path string, err error) *Error { return New(KindPermission, op, path, err) }

// Validation wraps err as a fatal filter/parse-time error.
func Validation(op string, err error) *Error { return New(KindValidation, op, "", err) }

// Resource wraps err as a fatal resource error (ENOMEM and the like).
func Resource(op string, err error) *Error { return New(KindResource, op, "", err) }

// Protocol wraps err as a target-store wire error, tagged distinctly so
// callers may retry transactional subsets.
func Protocol(op string, err error) *Error { return New(KindProtocol, op, "", err) }

// NotSupported wraps a capability an operation or field does not support.
func NotSupported(op string) *Error {
	return New(KindNotSupported, op, "", errors.New("operation not supported"))
}

// EndOfStream is the expected terminator every iterator returns once
// exhausted; it is not itself a failure.
var EndOfStream = &Error{Kind: KindEndOfStream, Err: errors.New("end of stream")}

// Is reports whether err (or any error it wraps) carries kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Skippable reports whether err is of a kind spec.md's skip_error flag is
// allowed to downgrade to a stderr warning (transient or permission).
func Skippable(err error) bool {
	return Is(err, KindTransient) || Is(err, KindPermission)
}

// lastError is a single most-recent-message slot mirroring the C source's thread-local
// rbh_backend_error buffer, exposed for CLI drivers that want a one-line
// diagnostic after an iterator fails without a typed error in hand.
type lastError struct {
	mu  sync.Mutex
	msg string
}

var globalLast lastError

// SetLast records msg as the most recent backend-level error.
func SetLast(msg string) {
	globalLast.mu.Lock()
	defer globalLast.mu.Unlock()
	globalLast.msg = msg
}

// Last returns the most recently recorded backend-level error message.
func Last() string {
	globalLast.mu.Lock()
	defer globalLast.mu.Unlock()
	return globalLast.msg
}
