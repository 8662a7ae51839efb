package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Run is the logging context of one dockhand invocation: a timestamped,
// append-only, human-readable log file plus an ID that tags every line.
type Run struct {
	Logger *zap.Logger
	Path   string
	ID     string

	file *os.File
}

// Setup opens the per-run log file under dir and installs the run logger as
// the zap global. The file receives every level; stderr only sees errors, so
// normal console output stays with the Print helpers.
func Setup(dir, command string) (*Run, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("dockhand-%s-%s.log", command, time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(file), zap.DebugLevel),
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), zap.ErrorLevel),
	)

	id := uuid.NewString()
	logger := zap.New(core).With(zap.String("run_id", id))
	zap.ReplaceGlobals(logger)

	return &Run{
		Logger: logger,
		Path:   path,
		ID:     id,
		file:   file,
	}, nil
}

// Close flushes buffered entries and closes the log file.
func (r *Run) Close() {
	_ = r.Logger.Sync()
	_ = r.file.Close()
}
