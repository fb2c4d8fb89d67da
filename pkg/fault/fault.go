// Package fault defines the error taxonomy shared by the SmartKey components.
//
// Every failure surfaced by the store, the engagement protocol, delegated
// authentication or the registry is a [*Error] carrying a [Kind], a stable
// machine-readable code and a descriptive reason. Packages declare sentinel
// values with [New] and compare with errors.Is, which matches on the code so a
// sentinel with a more specific reason (see [Error.WithReason]) still matches.
package fault

import "errors"

// Kind classifies a failure.
type Kind uint8

const (
	// KindUnknown is reported for errors that did not originate here.
	KindUnknown Kind = iota

	// KindAuthorization: the caller identity does not satisfy the operation's
	// caller constraint (manufacturer-only, owner-only, device-only, user-only).
	KindAuthorization

	// KindState: the operation is not valid in the credential's current state.
	KindState

	// KindData: missing or duplicate keys, immutable field changes, malformed input.
	KindData

	// KindCrypto: hash mismatch, signature mismatch, no pending session.
	KindCrypto
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "AUTHORIZATION"
	case KindState:
		return "STATE"
	case KindData:
		return "DATA"
	case KindCrypto:
		return "CRYPTO"
	default:
		return "UNKNOWN"
	}
}

// Error is a classified failure.
type Error struct {
	Kind   Kind
	Code   string
	Reason string
}

// New creates a classified error.
func New(kind Kind, code, reason string) *Error {
	return &Error{Kind: kind, Code: code, Reason: reason}
}

// Error returns the reason string.
func (e *Error) Error() string {
	return e.Reason
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithReason returns a copy of e with a different reason.
func (e *Error) WithReason(reason string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Reason: reason}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
