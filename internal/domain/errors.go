package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("resource not found")

// SyncErrorKind classifies failures of the identity synchronization core
type SyncErrorKind string

const (
	KindNoValidEmail             SyncErrorKind = "NO_VALID_EMAIL"
	KindUserNotFound             SyncErrorKind = "USER_NOT_FOUND"
	KindUserOperationFailed      SyncErrorKind = "USER_OPERATION_FAILED"
	KindRoleValidationFailed     SyncErrorKind = "ROLE_VALIDATION_FAILED"
	KindTherapistPromotionFailed SyncErrorKind = "THERAPIST_PROMOTION_FAILED"
	KindOrphanedRemoteAccount    SyncErrorKind = "ORPHANED_REMOTE_ACCOUNT"
)

type SyncError struct {
	Kind    SyncErrorKind
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is matches any SyncError of the same kind, so errors.Is(err, &SyncError{Kind: k}) works
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether a redelivery of the same event may succeed
func (e *SyncError) Retryable() bool {
	return e.Kind == KindUserNotFound
}

func NewSyncError(kind SyncErrorKind, message string, err error) *SyncError {
	return &SyncError{Kind: kind, Message: message, Err: err}
}

func ErrNoValidEmail(externalID string) *SyncError {
	return NewSyncError(KindNoValidEmail, fmt.Sprintf("user %s has no usable email address", externalID), nil)
}

func ErrUserNotFound(externalID string) *SyncError {
	return NewSyncError(KindUserNotFound, fmt.Sprintf("user %s not found", externalID), nil)
}

func ErrUserOperationFailed(message string, err error) *SyncError {
	return NewSyncError(KindUserOperationFailed, message, err)
}

func ErrTherapistPromotionFailed(message string, err error) *SyncError {
	return NewSyncError(KindTherapistPromotionFailed, message, err)
}

// KindOf returns the kind of the outermost SyncError in err's chain
func KindOf(err error) (SyncErrorKind, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

func IsKind(err error, kind SyncErrorKind) bool {
	return errors.Is(err, &SyncError{Kind: kind})
}

func IsRetryable(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}

type finalError struct {
	err error
}

func (e *finalError) Error() string { return e.err.Error() }
func (e *finalError) Unwrap() error { return e.err }

// Final marks err as settled: the remote side effects were already undone,
// so a redelivery of the same event must not be processed again.
func Final(err error) error {
	if err == nil {
		return nil
	}
	return &finalError{err: err}
}

func IsFinal(err error) bool {
	var f *finalError
	return errors.As(err, &f)
}
