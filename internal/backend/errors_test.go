package backend

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassificationHelpers(t *testing.T) {
	base := errors.New("boom")

	if !IsTransient(Transient(base)) {
		t.Error("IsTransient(Transient(err)) = false")
	}
	if !IsPermanent(Permanent(base)) {
		t.Error("IsPermanent(Permanent(err)) = false")
	}
	if IsTransient(Permanent(base)) {
		t.Error("IsTransient(Permanent(err)) = true")
	}
	if IsPermanent(Transient(base)) {
		t.Error("IsPermanent(Transient(err)) = true")
	}
	if IsTransient(base) || IsPermanent(base) {
		t.Error("unclassified error reported as classified")
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	inner := Permanent(errors.New("rejected"))
	wrapped := fmt.Errorf("delivering batch: %w", inner)

	if !IsPermanent(wrapped) {
		t.Error("IsPermanent lost through fmt.Errorf wrapping")
	}
}

func TestClassificationUnwrap(t *testing.T) {
	base := errors.New("underlying")
	if !errors.Is(Transient(fmt.Errorf("ctx: %w", base)), base) {
		t.Error("errors.Is cannot reach the wrapped error through TransientError")
	}
}

func TestClassifyNilIsNil(t *testing.T) {
	if Transient(nil) != nil {
		t.Error("Transient(nil) != nil")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
}
