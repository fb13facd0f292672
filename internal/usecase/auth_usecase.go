package usecase

import (
	"context"
	"errors"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/apperror"
)

type authUsecase struct {
	userRepo domain.UserRepository
}

func NewAuthUsecase(userRepo domain.UserRepository) domain.AuthUsecase {
	return &authUsecase{userRepo: userRepo}
}

// GetCurrentUser loads the local user behind a provider session token
func (u *authUsecase) GetCurrentUser(ctx context.Context, externalID string) (*domain.User, error) {
	user, err := u.userRepo.GetByExternalID(ctx, externalID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.Unauthorized("User not provisioned")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if !user.IsActive {
		return nil, apperror.Forbidden("User is deactivated")
	}
	return user, nil
}
