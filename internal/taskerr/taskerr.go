// Package taskerr defines the failure taxonomy shared by every background
// task: a failure is either retryable (transient, worth a bounded
// re-attempt) or fatal (permanent, escalated to technical-failure).
// Anything else is a programming defect and propagates unclassified.
package taskerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Classification is the closed set of operational failure kinds.
type Classification int

const (
	// Unclassified errors are bugs, not operational conditions. They are
	// never retried and never converted to technical-failure.
	Unclassified Classification = iota
	// ClassRetryable failures are rescheduled onto the retry queue up to a
	// maximum attempt count.
	ClassRetryable
	// ClassFatal failures stop processing immediately and mark the target
	// notification technical-failure where one is known.
	ClassFatal
)

func (c Classification) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassFatal:
		return "fatal"
	}
	return "unclassified"
}

// ClassifiedError carries an operational failure and its classification.
type ClassifiedError struct {
	Class   Classification
	Message string
	Cause   error
}

func (e *ClassifiedError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, fmt.Sprintf("%s error", e.Class))
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ClassifiedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Retryable wraps err as a transient operational failure.
func Retryable(message string, cause error) error {
	return &ClassifiedError{Class: ClassRetryable, Message: message, Cause: cause}
}

// Fatal wraps err as a permanent operational failure.
func Fatal(message string, cause error) error {
	return &ClassifiedError{Class: ClassFatal, Message: message, Cause: cause}
}

// ClassificationOf resolves the classification of err. Context deadlines and
// network timeouts count as retryable even when raised below a client that
// forgot to classify them.
func ClassificationOf(err error) Classification {
	if err == nil {
		return Unclassified
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}
	if errors.Is(err, context.Canceled) {
		return Unclassified
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassRetryable
	}

	return Unclassified
}

// TechnicalFailureError is the terminal fault raised when a task exhausts
// its retries or fails fatally. It names the task and notification for
// operational alerting.
type TechnicalFailureError struct {
	TaskName       string
	NotificationID string
	Cause          error
}

func (e *TechnicalFailureError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"the task %s failed for notification %s, notification has been updated to technical-failure",
		e.TaskName, e.NotificationID,
	)
}

func (e *TechnicalFailureError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
