// Package errors provides foundational, type-safe error primitives used across docpublisher.
//
// This package contains classified error types and helpers for robust error handling,
// including a fluent builder API for constructing ClassifiedError values with context.
//
// Key features:
//   - ErrorCategory: Broad error classification (config, git, install, lint, publish, etc.)
//   - ErrorSeverity: Impact level (fatal, error, warning, info)
//   - Step, exit code and hint context rendered by the CLI adapter
//   - ClassifiedError: Structured error with category, severity, and context
//   - ErrorBuilder: Fluent API for creating classified errors
//   - CLI adapter mapping categories to process exit codes
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryBuild, "site generator failed").
//		WithContext("exit_code", 2).
//		WithCause(runErr).
//		Build()
package errors
