package taskerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassificationOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{name: "nil", err: nil, want: Unclassified},
		{name: "retryable", err: Retryable("upstream 503", nil), want: ClassRetryable},
		{name: "fatal", err: Fatal("unknown status code", nil), want: ClassFatal},
		{name: "wrapped retryable", err: fmt.Errorf("task: %w", Retryable("timeout", nil)), want: ClassRetryable},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: ClassRetryable},
		{name: "canceled", err: context.Canceled, want: Unclassified},
		{name: "plain error is a defect", err: errors.New("nil pointer"), want: Unclassified},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ClassificationOf(tt.err); got != tt.want {
				t.Fatalf("ClassificationOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := Retryable("provider unreachable", cause)

	if !errors.Is(err, cause) {
		t.Fatal("classified error should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "provider unreachable") {
		t.Fatalf("Error() = %q, want message included", err.Error())
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("Error() = %q, want cause included", err.Error())
	}
}

func TestTechnicalFailureErrorMessage(t *testing.T) {
	t.Parallel()

	cause := Fatal("unmapped status", nil)
	err := &TechnicalFailureError{
		TaskName:       "process-delivery-status",
		NotificationID: "n1",
		Cause:          cause,
	}

	if !strings.Contains(err.Error(), "process-delivery-status") {
		t.Fatalf("Error() = %q, want task name included", err.Error())
	}
	if !strings.Contains(err.Error(), "n1") {
		t.Fatalf("Error() = %q, want notification id included", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("fault should unwrap to its cause")
	}
}
