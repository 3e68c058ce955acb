package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Transport-independent error kinds. Routes translate these into HTTP
// statuses or socket error events.
var (
	// ErrNotFound covers both "no such conversation/inquiry" and "caller is
	// not a participant" so lookups never reveal existence to outsiders.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the entity exists and is visible, but the caller's
	// role does not permit the action (e.g. inquirer changing a status).
	ErrForbidden = errors.New("forbidden")

	// ErrEmptyContent rejects empty or whitespace-only message bodies.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrContentTooLong rejects bodies over MaxMessageLength. Both transports
	// reject rather than truncate, so no client ever renders a silently
	// shortened copy of what it sent.
	ErrContentTooLong = errors.New("message content too long")

	// ErrInvalidStatus rejects unknown status values and transitions out of
	// the terminal CLOSED state.
	ErrInvalidStatus = errors.New("invalid inquiry status")
)

const maxTxAttempts = 3

// withRetry runs fn in a transaction and retries on serialization conflicts,
// which postgres reports when concurrent sends hit the same conversation.
func withRetry(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = db.Transaction(fn)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "40001") ||
		strings.Contains(msg, "40P01") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "could not serialize")
}
