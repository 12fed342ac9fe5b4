package kvstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// slogLogger adapts slog to badger.Logger.
// Badger's Info output is demoted to Debug; it is chatty on open and close.
type slogLogger struct {
	log *slog.Logger
}

var _ badger.Logger = slogLogger{}

func newLogger(l *slog.Logger) badger.Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{log: l.With("component", "badger")}
}

func (l slogLogger) emit(level slog.Level, format string, args ...any) {
	if !l.log.Enabled(context.Background(), level) {
		return
	}
	l.log.Log(context.Background(), level, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l slogLogger) Errorf(format string, args ...any)   { l.emit(slog.LevelError, format, args...) }
func (l slogLogger) Warningf(format string, args ...any) { l.emit(slog.LevelWarn, format, args...) }
func (l slogLogger) Infof(format string, args ...any)    { l.emit(slog.LevelDebug, format, args...) }
func (l slogLogger) Debugf(format string, args ...any)   { l.emit(slog.LevelDebug, format, args...) }
