package service

import (
	"errors"
	"fmt"
)

// Taxonomy roots. Handlers classify every service error by the root it wraps.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// Domain errors.
var (
	ErrInvalidStep           = fmt.Errorf("%w: step must be 1, 2 or 3", ErrValidation)
	ErrInvalidViolationType  = fmt.Errorf("%w: unknown violation type", ErrValidation)
	ErrQuestionNotInSession  = fmt.Errorf("%w: question is not part of this session", ErrValidation)
	ErrOptionOutOfRange      = fmt.Errorf("%w: selected option is out of range", ErrValidation)
	ErrInvalidChunkIndex     = fmt.Errorf("%w: chunk index must not be negative", ErrValidation)
	ErrChunkTooLarge         = fmt.Errorf("%w: chunk exceeds the size limit", ErrValidation)
	ErrUserNotFound          = fmt.Errorf("%w: user not found", ErrUnauthorized)
	ErrLockedFromStep1       = fmt.Errorf("%w: locked from retaking step 1", ErrForbidden)
	ErrNotEligible           = fmt.Errorf("%w: previous step not passed", ErrForbidden)
	ErrSessionNotActive      = fmt.Errorf("%w: session is not active", ErrForbidden)
	ErrSessionTimeElapsed    = fmt.Errorf("%w: session time has elapsed", ErrForbidden)
	ErrSessionNotFound       = fmt.Errorf("%w: session not found", ErrNotFound)
	ErrQuestionNotFound      = fmt.Errorf("%w: question not found", ErrNotFound)
	ErrQuestionCountMismatch = fmt.Errorf("%w: active question count does not match competencies", ErrConflict)
)
