// Package errors provides the classified error primitives shared by the AR session core.
//
// Every failure the controller, resolver or monitor reasons about is a ClassifiedError:
// a category (device, capability, tracking, session, retry, ...), a severity, a retry
// strategy and structured context. Callers branch on those properties rather than on
// message text.
//
// Example usage:
//
//	err := errors.NewError(errors.CategorySession, "tracking engine failed").
//		WithRetry(errors.RetryBackoff).
//		WithContext("run_id", runID).
//		WithCause(engineErr).
//		Build()
package errors
