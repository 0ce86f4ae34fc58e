package provider

import (
	"errors"
	"fmt"
)

// Kind classifies a provider failure and drives the coordinator's
// retry-vs-skip decision.
type Kind int

const (
	// KindTransient covers rate limiting, network timeouts and 5xx
	// responses: retrying the same provider may succeed.
	KindTransient Kind = iota
	// KindPermanent covers unknown instruments and empty ranges: move on
	// to the next provider, do not retry.
	KindPermanent
)

func (k Kind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "permanent"
}

// Error is a classified failure from one provider call. Raw source errors
// never leave this package unclassified.
type Error struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable provider failure.
func Transient(name string, err error) error {
	return &Error{Provider: name, Kind: KindTransient, Err: err}
}

// Permanent wraps err as a non-retryable provider failure.
func Permanent(name string, err error) error {
	return &Error{Provider: name, Kind: KindPermanent, Err: err}
}

// IsTransient reports whether err is a classified transient failure.
// Unclassified errors are treated as transient so that a plain network
// error still gets the retry budget.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindTransient
	}
	return true
}
