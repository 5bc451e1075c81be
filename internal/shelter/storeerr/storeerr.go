// Package storeerr translates store sentinels into coded domain errors.
package storeerr

import (
	"context"
	"errors"

	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/platform/sentinel"
)

// Wrap passes coded errors through and maps store facts onto codes. what
// names the entity for NotFound messages; msg describes the failed action.
func Wrap(err error, what, msg string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg+": concurrent change, retry")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// IsNotFound reports whether err is a store NotFound fact.
func IsNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound)
}
