package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies credential failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindStateMismatch
	KindAuthorizationDenied
	KindMalformedCallback
	KindTokenExchangeRejected
	KindRefreshFailed
	KindReauthorizationRequired
	KindNetworkTimeout
	KindIOError
	KindNotFound
	KindUserCancelled
	KindInvalidToken
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindStateMismatch:           "state mismatch",
	KindAuthorizationDenied:     "authorization denied",
	KindMalformedCallback:       "malformed callback",
	KindTokenExchangeRejected:   "token exchange rejected",
	KindRefreshFailed:           "refresh failed",
	KindReauthorizationRequired: "reauthorization required",
	KindNetworkTimeout:          "network timeout",
	KindIOError:                 "token storage failure",
	KindNotFound:                "no stored token",
	KindUserCancelled:           "cancelled by user",
	KindInvalidToken:            "invalid token",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrStateMismatch           = &Error{Kind: KindStateMismatch}
	ErrAuthorizationDenied     = &Error{Kind: KindAuthorizationDenied}
	ErrMalformedCallback       = &Error{Kind: KindMalformedCallback}
	ErrTokenExchangeRejected   = &Error{Kind: KindTokenExchangeRejected}
	ErrRefreshFailed           = &Error{Kind: KindRefreshFailed}
	ErrReauthorizationRequired = &Error{Kind: KindReauthorizationRequired}
	ErrNetworkTimeout          = &Error{Kind: KindNetworkTimeout}
	ErrIOError                 = &Error{Kind: KindIOError}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrUserCancelled           = &Error{Kind: KindUserCancelled}
	ErrInvalidToken            = &Error{Kind: KindInvalidToken}
)

// Error is the single error type returned by the credential layer.
type Error struct {
	Kind Kind
	// Status is the HTTP status of a rejected exchange or refresh, if any.
	Status int
	// Detail carries server supplied text such as error_description.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
