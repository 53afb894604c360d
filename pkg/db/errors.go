package db

import (
	"strings"

	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// IsUniqueViolation reports whether err is a unique constraint failure from
// postgres or sqlite. When constraintName is set the constraint must match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if fault := pkgerrors.DBFaultOf(err); fault != nil {
		return fault.SQLState == sqlStateUniqueViolation && (constraintName == "" || fault.Constraint == constraintName)
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsRetryableTx reports whether postgres aborted the transaction in a way
// that a clean rerun can succeed.
func IsRetryableTx(err error) bool {
	fault := pkgerrors.DBFaultOf(err)
	if fault == nil {
		return false
	}
	return fault.SQLState == sqlStateSerializationFailure || fault.SQLState == sqlStateDeadlockDetected
}
