// Package service implements the core operations on top of the repository
// interfaces: credential handling, the category tree and owner-scoped entries.
//
// Every failure leaving this package carries an apperror kind. Errors from the
// repositories that are not already typed are reported as apperror.ErrInternal.
package service

import (
	"errors"
	"fmt"

	"github.com/sakif/knowledge-library/internal/apperror"
)

// wrap prefixes err with op, classifying untyped errors as internal.
func wrap(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperror.Internal(op, err)
}
