package errors

// ErrorBuilder assembles a ClassifiedError.
type ErrorBuilder struct {
	category  ErrorCategory
	severity  ErrorSeverity
	transient bool
	message   string
	cause     error
	context   ErrorContext
}

// NewError starts a builder with severity error.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		message:  message,
		context:  make(ErrorContext),
	}
}

// WrapError starts a builder around an existing error.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	b := NewError(category, message)
	b.cause = err
	return b
}

// WithCategory overrides the category, used when a cause is reclassified.
func (b *ErrorBuilder) WithCategory(category ErrorCategory) *ErrorBuilder {
	b.category = category
	return b
}

func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.cause = err
	return b
}

func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.context = b.context.Set(key, value)
	return b
}

// WithHint attaches a user-facing suggestion shown next to the message.
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	return b.WithContext(ContextHint, hint)
}

func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	return b.WithSeverity(SeverityFatal)
}

func (b *ErrorBuilder) Warning() *ErrorBuilder {
	return b.WithSeverity(SeverityWarning)
}

// Transient marks the failure as worth retrying later.
func (b *ErrorBuilder) Transient() *ErrorBuilder {
	b.transient = true
	return b
}

func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category:  b.category,
		severity:  b.severity,
		transient: b.transient,
		message:   b.message,
		cause:     b.cause,
		context:   b.context,
	}
}

// ConfigError is a fatal configuration problem the user must fix.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

// ValidationError is a fatal problem with flags or trigger input.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}

func GitError(message string) *ErrorBuilder {
	return NewError(CategoryGit, message)
}

// StepError is a fatal pipeline step failure in the given category.
func StepError(category ErrorCategory, message string) *ErrorBuilder {
	return NewError(category, message).Fatal()
}

func FileSystemError(message string) *ErrorBuilder {
	return NewError(CategoryFileSystem, message)
}

func TimeoutError(message string) *ErrorBuilder {
	return NewError(CategoryTimeout, message).Fatal()
}

func EventStoreError(message string) *ErrorBuilder {
	return NewError(CategoryEventStore, message)
}
