package errors

// ErrorBuilder provides a fluent API for creating ClassifiedError instances.
type ErrorBuilder struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

// NewError creates a new ErrorBuilder with the specified category and message.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		context:  make(ErrorContext),
	}
}

// WrapError creates a new ErrorBuilder that wraps an existing error.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	b := NewError(category, message)
	b.cause = err
	return b
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

// WithRetry sets the retry strategy.
func (b *ErrorBuilder) WithRetry(strategy RetryStrategy) *ErrorBuilder {
	b.retry = strategy
	return b
}

// WithCause sets the wrapped error.
func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.cause = err
	return b
}

// WithContext adds a context key-value pair.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.context = b.context.Set(key, value)
	return b
}

// Fatal sets the severity to fatal.
func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	return b.WithSeverity(SeverityFatal)
}

// Warning sets the severity to warning.
func (b *ErrorBuilder) Warning() *ErrorBuilder {
	return b.WithSeverity(SeverityWarning)
}

// Info sets the severity to info.
func (b *ErrorBuilder) Info() *ErrorBuilder {
	return b.WithSeverity(SeverityInfo)
}

// Retryable sets the retry strategy to backoff.
func (b *ErrorBuilder) Retryable() *ErrorBuilder {
	return b.WithRetry(RetryBackoff)
}

// UserAction sets the retry strategy to require user action.
func (b *ErrorBuilder) UserAction() *ErrorBuilder {
	return b.WithRetry(RetryUserAction)
}

// Build creates the final ClassifiedError.
func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		severity: b.severity,
		retry:    b.retry,
		message:  b.message,
		cause:    b.cause,
		context:  b.context,
	}
}

// Convenience constructors for the AR session taxonomy.

// ConfigError creates a configuration error.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

// ValidationError creates a validation error.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Warning()
}

// DeviceNotSupported reports a device without the base world-tracking capability.
// It is fatal to AR but never to the application: the controller falls back.
func DeviceNotSupported(message string) *ErrorBuilder {
	return NewError(CategoryDevice, message).Fatal().UserAction()
}

// UnsupportedFeature reports a requested sub-feature the device cannot provide.
func UnsupportedFeature(feature string) *ErrorBuilder {
	return NewError(CategoryCapability, "configuration feature unsupported").
		Info().
		WithContext("feature", feature)
}

// TrackingLost reports a transient loss of tracking.
func TrackingLost(message string) *ErrorBuilder {
	return NewError(CategoryTracking, message).Warning().WithRetry(RetryImmediate)
}

// InsufficientFeatures reports a scene with too few visual features to track.
func InsufficientFeatures() *ErrorBuilder {
	return NewError(CategoryTracking, "insufficient visual features").Warning().UserAction()
}

// SessionFailed reports a fatal failure of the current engine run.
func SessionFailed(message string) *ErrorBuilder {
	return NewError(CategorySession, message).Retryable()
}

// RetryExhausted reports that the restart budget is spent.
func RetryExhausted(attempts int) *ErrorBuilder {
	return NewError(CategoryRetry, "restart attempts exhausted").
		Fatal().
		UserAction().
		WithContext("attempts", attempts)
}

// InvalidTransition reports a state change outside the legal edge set.
func InvalidTransition(from, to string) *ErrorBuilder {
	return NewError(CategoryTransition, "invalid state transition").
		WithContext("from", from).
		WithContext("to", to)
}

// PerformanceError creates a performance monitoring error.
func PerformanceError(message string) *ErrorBuilder {
	return NewError(CategoryPerformance, message).Warning()
}

// AnalyticsError creates a fire-and-forget sink error.
func AnalyticsError(message string) *ErrorBuilder {
	return NewError(CategoryAnalytics, message).Warning().Retryable()
}

// RuntimeError creates a runtime error.
func RuntimeError(message string) *ErrorBuilder {
	return NewError(CategoryRuntime, message).Fatal()
}

// InternalError creates an internal error.
func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}
