package service

import (
	"errors"

	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/internal/repository"
)

// mapRepoError converts repository failures into domain errors. Domain
// errors pass through untouched.
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	switch {
	case errors.As(err, &de):
		return de
	case errors.Is(err, repository.ErrMessageNotFound):
		return domain.NewNotFoundError("message not found")
	default:
		return domain.NewStoreUnavailableError(err)
	}
}

func requireID(field, value string) error {
	if domain.IsBlankName(value) {
		return domain.NewValidationError(field, field+" is required")
	}
	return nil
}
