package scheduler

import (
	"errors"
	"fmt"

	"github.com/thisnaeem/metagen/internal/keypool"
)

// Class is the failure class of a generation or validation error. The class
// decides recovery: transient and quota errors are retried, authentication
// errors invalidate the key and fail the job over to another one, permanent
// errors fail the job terminally.
type Class int

// Failure classes.
const (
	ClassTransient Class = iota
	ClassQuota
	ClassAuth
	ClassPermanent
)

// String returns a short human-readable name for the class.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassQuota:
		return "quota"
	case ClassAuth:
		return "auth"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifiedError carries a failure class alongside the underlying error.
type ClassifiedError struct {
	Class Class
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable connectivity/timeout failure.
func Transient(err error) *ClassifiedError {
	return &ClassifiedError{Class: ClassTransient, Err: err}
}

// Quota wraps err as a provider-side rate limit rejection.
func Quota(err error) *ClassifiedError {
	return &ClassifiedError{Class: ClassQuota, Err: err}
}

// Auth wraps err as a credential rejection (revoked or invalid secret).
func Auth(err error) *ClassifiedError {
	return &ClassifiedError{Class: ClassAuth, Err: err}
}

// Permanent wraps err as a rejection of the input itself; the job is not
// worth retrying.
func Permanent(err error) *ClassifiedError {
	return &ClassifiedError{Class: ClassPermanent, Err: err}
}

// classOf extracts the failure class from an error. Unclassified errors are
// treated as transient: retrying is safe and the retry budget bounds the cost
// of guessing wrong.
func classOf(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassTransient
}

// poolOutcome maps a failure class to the pool's attempt outcome.
func poolOutcome(c Class) keypool.Outcome {
	switch c {
	case ClassQuota:
		return keypool.OutcomeQuota
	case ClassAuth:
		return keypool.OutcomeAuth
	case ClassPermanent:
		return keypool.OutcomePermanent
	default:
		return keypool.OutcomeTransient
	}
}
