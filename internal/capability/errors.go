// Package capability implements the per-process CSpace: fixed-size CNode
// slot tables addressed by guarded-prefix lookup, and the capability
// derivation tree (CDT) threaded through those slots (spec.md §3, §4.3).
package capability

import "fmt"

// Kind enumerates the error semantics a capability operation can fail with
// (spec.md §7). There is deliberately no richer type hierarchy: every
// hosted-domain package that can fail reports one of these.
type Kind uint8

const (
	KindInvalidArgument Kind = iota
	KindInvalidCapability
	KindInsufficientRights
	KindRangeError
	KindAlignmentError
	KindNotEmpty
	KindNotFound
	KindDeleteFirst
	KindIPCCancelled
	KindRevokeInProgress
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid-argument"
	case KindInvalidCapability:
		return "invalid-capability"
	case KindInsufficientRights:
		return "insufficient-rights"
	case KindRangeError:
		return "range-error"
	case KindAlignmentError:
		return "alignment-error"
	case KindNotEmpty:
		return "not-empty"
	case KindNotFound:
		return "not-found"
	case KindDeleteFirst:
		return "delete-first"
	case KindIPCCancelled:
		return "ipc-cancelled"
	case KindRevokeInProgress:
		return "revoke-in-progress"
	default:
		return "unknown-error"
	}
}

// Error is the error type every capability/retype/IPC operation returns.
// Callers that need additional context wrap it with github.com/pkg/errors
// rather than inventing a parallel error type (SPEC_FULL.md §7).
type Error struct {
	Kind Kind
	Op   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func newErr(op string, kind Kind) error {
	return &Error{Kind: kind, Op: op}
}

// Is reports whether err carries the given Kind, for use with errors.Is
// after pkg/errors wrapping.
func Is(err error, kind Kind) bool {
	var ce *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			ce = e
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return ce != nil && ce.Kind == kind
}
