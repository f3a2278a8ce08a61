package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide whether to abort,
// report, or compensate without string-matching messages.
type Kind string

const (
	KindConfiguration      Kind = "configuration"
	KindFormat             Kind = "format"
	KindValidation         Kind = "validation"
	KindGuardrail          Kind = "guardrail_rejection"
	KindExternalService    Kind = "external_service"
	KindPromotionIntegrity Kind = "promotion_integrity"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error with a formatted message.
func E(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error without losing the chain.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the classification of err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
