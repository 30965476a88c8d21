package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a failed ledger interaction.
type Kind uint8

const (
	KindRejected Kind = iota + 1
	KindIdentityNotFound
	KindConnection
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindRejected:
		return "LedgerRejected"
	case KindIdentityNotFound:
		return "IdentityNotFound"
	case KindConnection:
		return "ConnectionError"
	case KindTimeout:
		return "LedgerTimeout"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Error is the classified form of every failure the session layer reports.
type Error struct {
	Kind Kind
	Tx   string // transaction name; empty for acquisition failures
	Msg  string // human-readable detail, safe to show to clients
	Err  error
}

func (e *Error) Error() string {
	var s string
	if e.Tx != "" {
		s = e.Kind.String() + " " + e.Tx + ": " + e.Msg
	} else {
		s = e.Kind.String() + ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, tx, msg string, err error) *Error {
	return &Error{Kind: kind, Tx: tx, Msg: msg, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return 0, false
}

func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func timeoutError(tx string, submit bool, err error) *Error {
	msg := "query timed out"
	if submit {
		msg = "no response before deadline; transaction outcome unknown"
	}
	return newError(KindTimeout, tx, msg, err)
}
