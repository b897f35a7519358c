package judge

import "go.uber.org/zap"

// Log is the package-level zap logger used by judge and worker, following
// the zap-based logging idiom of the reference judge engine this package
// is adapted from — deliberately distinct from the slog-based
// internal/logger used by the lower-level sandbox packages (see
// DESIGN.md).
var Log *zap.Logger = zap.NewNop()

// SetLogger installs l as the package logger. Callers that embed the judge
// call this once during startup with a configured zap logger; until then,
// logging is a no-op.
func SetLogger(l *zap.Logger) {
	if l != nil {
		Log = l
	}
}
