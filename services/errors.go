package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yeremiapane/floor-ops/models"
	"gorm.io/gorm"
)

var (
	ErrTableNotFound     = errors.New("table not found")
	ErrTableNotReady     = errors.New("table not ready")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionConflict   = errors.New("session conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("role not allowed")
	ErrStaleWrite        = errors.New("stale write")
	ErrValidation        = errors.New("validation error")
)

// FloorError is the error every engine operation returns. Kind is one of the
// sentinels above; the statuses are the true state at the time of rejection
// so a dashboard can re-render it.
type FloorError struct {
	Kind          error
	Message       string
	TableStatus   models.TableStatus
	SessionStatus models.SessionStatus
}

func (e *FloorError) Error() string {
	return e.Message
}

func (e *FloorError) Unwrap() error {
	return e.Kind
}

// Is lets a role refusal match ErrInvalidTransition as well as ErrForbidden.
func (e *FloorError) Is(target error) bool {
	return e.Kind == ErrForbidden && target == ErrInvalidTransition
}

func newError(kind error, format string, args ...interface{}) *FloorError {
	return &FloorError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *FloorError) withState(table models.TableStatus, session models.SessionStatus) *FloorError {
	e.TableStatus = table
	e.SessionStatus = session
	return e
}

// classify maps storage errors onto the engine taxonomy. Lock contention and
// serialization failures are retryable, so they become ErrStaleWrite.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var fe *FloorError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicate(err) {
		return newError(ErrSessionConflict, "table already has an active session")
	}
	if isContention(err) {
		return &FloorError{Kind: ErrStaleWrite, Message: "concurrent update: " + err.Error()}
	}
	return err
}

func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

func isContention(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"database is locked",
		"database table is locked",
		"deadlock",
		"lock wait timeout",
		"could not serialize",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
