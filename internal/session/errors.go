package session

import (
	"context"
	"errors"
	"log/slog"

	foundationerrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
	"git.home.luguber.info/inful/arsession/internal/logfields"
)

// ErrOperationSuperseded resolves a pending Start, Resume or Reset that was
// overtaken by Pause or Reset.
var ErrOperationSuperseded = errors.New("session operation superseded")

// ErrorSink receives every error the controller records. It is an
// observability hook; it cannot influence recovery.
type ErrorSink interface {
	Report(ctx context.Context, err error)
}

// LogErrorSink reports errors through slog at the level matching their severity.
type LogErrorSink struct{}

// Report implements ErrorSink.
func (LogErrorSink) Report(ctx context.Context, err error) {
	level := slog.LevelError
	attrs := []slog.Attr{logfields.Error(err)}
	if ce, ok := foundationerrors.AsClassified(err); ok {
		level = foundationerrors.SlogLevel(ce.Severity())
		attrs = append(attrs, slog.String("category", string(ce.Category())))
	}
	slog.LogAttrs(ctx, level, "Session error reported", attrs...)
}

// isTransientTracking reports whether err is a soft tracking problem that a
// Normal tracking update clears.
func isTransientTracking(err error) bool {
	return err != nil && foundationerrors.HasCategory(err, foundationerrors.CategoryTracking)
}
