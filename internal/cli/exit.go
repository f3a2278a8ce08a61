package cli

import (
	"errors"

	"github.com/cratelabs/discolake/internal/domain"
)

// Exit codes. Operator-correctable failures (bad input, bad environment,
// failed gates) exit 2 so wrapper scripts can tell them from transient or
// integrity failures.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCodeFor maps an error to the process exit code. Domain errors map
// by kind; everything else is an unexpected failure.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if kind, ok := domain.KindOf(err); ok {
		switch kind {
		case domain.KindConfiguration, domain.KindFormat, domain.KindValidation, domain.KindGuardrail:
			return ExitUsage
		}
	}
	return ExitFailure
}
