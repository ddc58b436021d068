// pkg/core/errors.go
package core

import "errors"

// ErrInvariantViolation is returned when an operation would break the
// single-owner guarantee or references an unknown vehicle or agent id.
// It is fatal: callers must abort the tick rather than continue with a
// possibly corrupted ownership table.
var ErrInvariantViolation = errors.New("ownership invariant violation")

// ErrProviderUnavailable is returned when no provider accepts a
// role/action-space combination at spawn or handoff. This signals a
// misconfigured provider set and is fatal.
var ErrProviderUnavailable = errors.New("no provider accepts actor")

// ErrControllerFailure is returned when a social agent's controller
// resolves with an error. The tick is aborted.
var ErrControllerFailure = errors.New("controller failure")
