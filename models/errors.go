package models

import "errors"

var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrUserNotFound is returned when a user id or name does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrInvalidCredentials is returned when a username and password do not match.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrQuizNotFound indicates the quiz does not exist or is not active.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAlreadyCheckedIn is returned for a second check-in on the same calendar day.
	ErrAlreadyCheckedIn = errors.New("already checked in today")
	// ErrInvalidReferralCode is returned when no user owns the code.
	ErrInvalidReferralCode = errors.New("invalid referral code")
	// ErrAlreadyReferred is returned when the user has already received a referral bonus.
	ErrAlreadyReferred = errors.New("referral already applied")
	// ErrSelfReferral is returned when a user applies their own code.
	ErrSelfReferral = errors.New("cannot apply your own referral code")
	// ErrDuplicate is returned by stores on a unique-key conflict.
	ErrDuplicate = errors.New("duplicate record")
	// ErrStorage wraps unexpected persistence failures.
	ErrStorage = errors.New("storage operation failed")
)
