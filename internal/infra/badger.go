package infra

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// NewBadgerDB opens (and creates) an embedded Badger database in dir. An
// empty dir opens an in-memory database.
func NewBadgerDB(dir string, logger *slog.Logger) (*badger.DB, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	if logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// badgerLogger forwards Badger's printf-style logs to slog. Info and debug
// chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(badgerMsg(format, args))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(badgerMsg(format, args))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(badgerMsg(format, args))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(badgerMsg(format, args))
}

func badgerMsg(format string, args []any) string {
	return "badger: " + strings.TrimSpace(fmt.Sprintf(format, args...))
}
