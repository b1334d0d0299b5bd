package logging

import "go.uber.org/zap"

// Logger is the package-wide logger used across the SDK. It defaults to
// a no-op logger so library consumers opt in to output.
var Logger = zap.NewNop()

// SetLogger replaces the package logger. Passing nil is ignored.
func SetLogger(l *zap.Logger) {
	if l != nil {
		Logger = l
	}
}
