package service

import (
	"errors"
	"fmt"
	"strings"

	"family-safety-score/internal/store"
	"family-safety-score/internal/util"
)

// ErrInvalidInput is a validation error, so retry loops give up on it at once.
var ErrInvalidInput error = &store.ValidationError{Reason: "invalid input"}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrRateLimited  = errors.New("too many requests")
	ErrBusy         = errors.New("user is busy, try again")
)

const maxUserIDLength = 128

// validateUserID rejects ids that could not have been issued by the platform.
func validateUserID(userID string) error {
	switch {
	case strings.TrimSpace(userID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	case len(userID) > maxUserIDLength:
		return fmt.Errorf("%w: user id is too long", ErrInvalidInput)
	case util.ContainsSuspicious(userID), util.SanitizeInput(userID) != userID:
		return fmt.Errorf("%w: user id contains invalid characters", ErrInvalidInput)
	}
	return nil
}
