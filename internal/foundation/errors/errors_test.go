package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "docpublisher.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		file, exists := err.Context().GetString("file")
		if !exists || file != "docpublisher.yaml" {
			t.Errorf("expected context file=docpublisher.yaml, got %v", file)
		}
	})

	t.Run("Step context", func(t *testing.T) {
		err := StepError(CategoryTest, "test step failed").
			WithContext(ContextStep, "test").
			WithContext(ContextExitCode, 3).
			Build()

		if step, ok := err.Step(); !ok || step != "test" {
			t.Errorf("expected step test, got %q", step)
		}
		if code, ok := err.ExitCode(); !ok || code != 3 {
			t.Errorf("expected exit code 3, got %d", code)
		}
		if err.Severity() != SeverityFatal || err.Transient() {
			t.Error("expected a fatal, permanent step error")
		}
		if _, ok := ConfigError("x").Build().ExitCode(); ok {
			t.Error("expected no exit code without context")
		}
	})

	t.Run("Classified error found through wrapping", func(t *testing.T) {
		inner := StepError(CategoryLint, "lint failed").Build()
		wrapped := fmt.Errorf("step lint: %w", inner)

		if GetCategory(wrapped) != CategoryLint {
			t.Errorf("expected lint category through wrap, got %s", GetCategory(wrapped))
		}
		if !HasCategory(wrapped, CategoryLint) {
			t.Error("expected HasCategory to see through the wrap")
		}
		if GetCategory(errors.New("plain")) != CategoryInternal {
			t.Error("expected unclassified errors to be internal")
		}
		if !errors.Is(wrapped, StepError(CategoryLint, "lint failed").Build()) {
			t.Error("expected errors.Is to match sentinel with same category and message")
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	originalErr := errors.New("connection reset")
	err := WrapError(originalErr, CategoryNetwork, "probe failed").
		Warning().
		Transient().
		WithContext("host", "example.com").
		Build()

	if !err.Transient() {
		t.Error("expected transient error")
	}
	if !errors.Is(err, originalErr) {
		t.Error("expected error to wrap original error")
	}
	if got := err.Error(); got != "[network:warning] probe failed: connection reset" {
		t.Errorf("unexpected message %q", got)
	}

	withMore := err.WithContext("port", 443)
	if _, ok := err.Context().Get("port"); ok {
		t.Error("WithContext must not mutate the original error")
	}
	if v, _ := withMore.Context().Get("port"); v != 443 {
		t.Errorf("expected port=443 on copy, got %v", v)
	}
}
