package http

import (
	"context"
	"errors"

	"ndilive/internal/core/domain"
	apperrors "ndilive/pkg/errors"
)

// toAppError maps engine errors onto API errors.
func toAppError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}
	switch {
	case errors.Is(err, domain.ErrSourceNotFound):
		return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "source not found")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "operation timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "request cancelled")
	case errors.Is(err, domain.ErrReceiverUnavailable),
		errors.Is(err, domain.ErrDiscoveryUnavailable),
		errors.Is(err, domain.ErrTransportUnavailable),
		errors.Is(err, domain.ErrPlayerClosed):
		return apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, err.Error())
	default:
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "internal server error")
	}
}
