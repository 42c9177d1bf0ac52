package domain

import "errors"

var (
	// ErrRiddleNotFound is returned when a riddle does not exist (or was deleted mid-flight).
	ErrRiddleNotFound = errors.New("riddle not found")
	// ErrParticipantNotFound is returned when the submitting participant is unknown.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrDuplicateAttempt indicates the (participant, riddle) pair already has an attempt.
	ErrDuplicateAttempt = errors.New("attempt already recorded")
	// ErrEngineUnavailable wraps infrastructure failures; callers may retry.
	ErrEngineUnavailable = errors.New("riddle engine unavailable")
	// ErrConflict marks a retryable storage conflict (serialization failure, deadlock).
	ErrConflict = errors.New("storage conflict")
	// ErrCodeTaken is returned when a participant code is already reserved by someone else.
	ErrCodeTaken = errors.New("participant code already taken")
	// ErrInvalidSubmission is returned when a submission fails validation.
	ErrInvalidSubmission = errors.New("invalid submission")
)
