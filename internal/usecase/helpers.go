package usecase

import (
	"errors"

	"fintherapy-backend/internal/domain"
)

// notFound turns domain.ErrNotFound into (nil, nil) for find-then-create flows
func notFound[T any](v *T, err error) (*T, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return v, err
}
