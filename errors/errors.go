// Package errors holds the sentinel errors shared by every layer of the bot.
// Concrete errors wrap one of the class errors so callers can match either
// the precise cause or the broad category with errors.Is.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error classes
var (
	ErrValidation    = fmt.Errorf("validation error")
	ErrAuthorization = fmt.Errorf("authorization error")
	ErrNotFound      = fmt.Errorf("not found")
	ErrConflict      = fmt.Errorf("conflict")
	ErrTransport     = fmt.Errorf("transport error")
	ErrPersistence   = fmt.Errorf("persistence error")
)

var (
	ErrInvalidBudget    = fmt.Errorf("%w: budget is not one of the allowed values", ErrValidation)
	ErrInvalidDate      = fmt.Errorf("%w: invalid gift date", ErrValidation)
	ErrEmptyField       = fmt.Errorf("%w: required field is empty", ErrValidation)
	ErrFieldTooLong     = fmt.Errorf("%w: field is too long", ErrValidation)
	ErrUnknownField     = fmt.Errorf("%w: unknown profile field", ErrValidation)
	ErrInvalidJoinCode  = fmt.Errorf("%w: invalid join code", ErrValidation)
	ErrEmptyContent     = fmt.Errorf("%w: notification content is empty", ErrValidation)
	ErrInvalidRecipient = fmt.Errorf("%w: invalid recipient", ErrValidation)

	ErrNotAuthorized = fmt.Errorf("%w: only the organizer can do this", ErrAuthorization)

	ErrRoomNotFound        = fmt.Errorf("%w: room", ErrNotFound)
	ErrJoinCodeNotFound    = fmt.Errorf("%w: join code", ErrNotFound)
	ErrParticipantNotFound = fmt.Errorf("%w: participant", ErrNotFound)
	ErrNoActiveRoom        = fmt.Errorf("%w: no active room", ErrNotFound)

	ErrRoomInactive             = fmt.Errorf("%w: room is inactive", ErrConflict)
	ErrAlreadyJoined            = fmt.Errorf("%w: already joined", ErrConflict)
	ErrExchangeDatePassed       = fmt.Errorf("%w: exchange date already passed", ErrConflict)
	ErrAssignmentAlreadyDone    = fmt.Errorf("%w: assignment already done", ErrConflict)
	ErrAssignmentNotDone        = fmt.Errorf("%w: assignment not done yet", ErrConflict)
	ErrInsufficientParticipants = fmt.Errorf("%w: at least 2 participants are required", ErrConflict)
	ErrAdminCannotLeave         = fmt.Errorf("%w: the organizer cannot leave, delete the room instead", ErrConflict)
	ErrInvalidAssignment        = fmt.Errorf("%w: assignment is not a derangement", ErrConflict)
	ErrIDSpaceExhausted         = fmt.Errorf("%w: could not generate a unique identifier", ErrConflict)

	ErrDeliveryFailed = fmt.Errorf("%w: delivery failed", ErrTransport)
	ErrRateLimited    = fmt.Errorf("%w: rate limited", ErrTransport)

	ErrSnapshotFailed  = fmt.Errorf("%w: snapshot failed", ErrPersistence)
	ErrSnapshotCorrupt = fmt.Errorf("%w: snapshot is corrupt", ErrPersistence)

	ErrWorkerPanic = fmt.Errorf("worker panic")
)

var classes = []error{
	ErrValidation,
	ErrAuthorization,
	ErrNotFound,
	ErrConflict,
	ErrTransport,
	ErrPersistence,
}

// Class returns the class error err belongs to, or nil for unclassified errors.
func Class(err error) error {
	for _, c := range classes {
		if stderrors.Is(err, c) {
			return c
		}
	}
	return nil
}

// IsUserFacing reports whether err should be reported back to the user
// instead of being treated as an internal failure.
func IsUserFacing(err error) bool {
	switch Class(err) {
	case ErrValidation, ErrAuthorization, ErrNotFound, ErrConflict:
		return true
	default:
		return false
	}
}
