package calmerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_TypedError(t *testing.T) {
	err := New(KindValidation, "domain %q is not recognized", "chaos")
	if KindOf(err) != KindValidation {
		t.Fatalf("KindOf=%v, want %v", KindOf(err), KindValidation)
	}
}

func TestKindOf_WrappedTypedError(t *testing.T) {
	inner := New(KindActiveGHAPExists, "entry ghap_123 is already active")
	wrapped := fmt.Errorf("start_ghap: %w", inner)
	if KindOf(wrapped) != KindActiveGHAPExists {
		t.Fatalf("KindOf(wrapped)=%v, want %v", KindOf(wrapped), KindActiveGHAPExists)
	}
}

func TestKindOf_PlainNotFoundString(t *testing.T) {
	err := errors.New("collection ghap_surprise: Not Found")
	if KindOf(err) != KindNotFound {
		t.Fatalf("KindOf(plain not found)=%v, want %v", KindOf(err), KindNotFound)
	}
}

func TestKindOf_PlainOtherString(t *testing.T) {
	err := errors.New("disk is full")
	if KindOf(err) != KindInternal {
		t.Fatalf("KindOf(plain other)=%v, want %v", KindOf(err), KindInternal)
	}
}

func TestErrorMessageExcludesCause(t *testing.T) {
	cause := errors.New("disk io error")
	err := Wrap(KindInternal, cause, "failed to write metadata")
	if err.Message() != "failed to write metadata" {
		t.Fatalf("Message()=%q, want %q", err.Message(), "failed to write metadata")
	}
	if err.Error() != "failed to write metadata: disk io error" {
		t.Fatalf("Error()=%q, unexpected format", err.Error())
	}
	if !errors.Is(err, err) {
		t.Fatalf("errors.Is self-check failed")
	}
	if errors.Unwrap(err) != cause {
		t.Fatalf("Unwrap did not return original cause")
	}
}
