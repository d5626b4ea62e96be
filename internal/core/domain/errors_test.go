package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrAlreadyExists", ErrAlreadyExists, "already exists"},
		{"ErrInUse", ErrInUse, "in use"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrInvalidDocument", ErrInvalidDocument, "invalid document"},
		{"ErrLockNotAcquired", ErrLockNotAcquired, "lock not acquired"},
		{"ErrNotConfigured", ErrNotConfigured, "not configured"},
		{"ErrValueSkipped", ErrValueSkipped, "value skipped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, tt.err.Error())
			}
		})
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	allErrors := []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrInUse,
		ErrInvalidInput,
		ErrInvalidDocument,
		ErrLockNotAcquired,
		ErrNotConfigured,
		ErrValueSkipped,
	}

	for i, err1 := range allErrors {
		for j, err2 := range allErrors {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("errors should be distinct: %v and %v", err1, err2)
			}
		}
	}
}

func TestErrorsIsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("%w: no index found for /pkg/rt/station/lat", ErrNotFound)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped error should match ErrNotFound")
	}
	if errors.Is(wrapped, ErrInvalidInput) {
		t.Error("wrapped ErrNotFound should not match ErrInvalidInput")
	}
}
