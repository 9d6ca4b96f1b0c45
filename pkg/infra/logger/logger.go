package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const logDir = "logs"

type Config struct {
	Level string `mapstructure:"level"`
	// File is a name under logs/. Empty logs to stdout only.
	File       string `mapstructure:"file"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// New builds the process logger. The returned close func flushes the async
// writers and must run before exit.
func New(cfg Config) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})

	level := cfg.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	logger.SetLevel(parseLevel(level))

	if cfg.File == "" {
		logger.SetOutput(os.Stdout)
		return logger, func() {}, nil
	}

	path := filepath.Clean(filepath.Join(logDir, cfg.File))
	if !strings.HasPrefix(path, logDir+string(filepath.Separator)) {
		return nil, nil, fmt.Errorf("invalid log file %q: must stay under %s/", cfg.File, logDir)
	}
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 32 * 1024
	}
	fileWriter, err := NewAsyncFileWriter(path, bufferSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	console := NewAsyncConsoleHook(os.Stdout, 1000)

	logger.SetOutput(fileWriter)
	logger.AddHook(console)
	return logger, func() {
		console.Close()
		fileWriter.Close()
	}, nil
}

// Discard is a logger for tests and tools that want no output.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func parseLevel(value string) logrus.Level {
	level, err := logrus.ParseLevel(strings.TrimSpace(value))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
