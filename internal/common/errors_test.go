package common

import (
	"errors"
	"testing"
)

func TestAppError(t *testing.T) {
	err := NewAppError("CONFIG_ERROR", "ollama.url is required", ErrInvalidInput)
	if got := err.Error(); got != "CONFIG_ERROR: ollama.url is required: invalid input" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("cause not reachable through Unwrap")
	}

	bare := NewAppError("X", "no cause", nil)
	if got := bare.Error(); got != "X: no cause" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "context") != nil {
		t.Error("WrapError(nil) should be nil")
	}
	base := errors.New("boom")
	wrapped := WrapError(base, "reading config")
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error lost its cause")
	}
	if wrapped.Error() != "reading config: boom" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
}
