// Package service holds the business rules of roamio. Services return
// *models.AppError values that handlers map to HTTP statuses.
package service

import (
	"context"
	"errors"

	"roamio/internal/models"

	"gorm.io/gorm"
)

// AdminChecker reports whether a user holds the administrator flag.
type AdminChecker func(ctx context.Context, userID uint) (bool, error)

// translateRepoError passes AppErrors through, turns a missing row into NOT_FOUND
// and anything else into INTERNAL_ERROR.
func translateRepoError(err error, resource string, id any) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewInternalError(err)
}

func checkAdmin(ctx context.Context, isAdmin AdminChecker, userID uint) (bool, error) {
	if isAdmin == nil || userID == 0 {
		return false, nil
	}
	admin, err := isAdmin(ctx, userID)
	if err != nil {
		return false, translateRepoError(err, "User", userID)
	}
	return admin, nil
}
