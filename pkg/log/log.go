// Copyright 2026 The Routeguard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the structured logging facilities used by all
// routeguard processes. It is a thin layer over zap that exposes a
// key-value context API.
package log

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the process-wide logger.
type Config struct {
	// Level of the logger: debug, info, error. Defaults to info.
	Level string `toml:"level,omitempty"`
	// Format of the log output: human or json. Defaults to human when
	// stderr is a terminal, json otherwise.
	Format string `toml:"format,omitempty"`
}

// InitDefaults fills in unset fields.
func (c *Config) InitDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			c.Format = "human"
		} else {
			c.Format = "json"
		}
	}
}

var logger = newZap(Config{Level: "info", Format: "json"})

// Setup initializes the process-wide logger. It must be called before any
// goroutine that logs is started.
func Setup(cfg Config) error {
	cfg.InitDefaults()
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}
	if cfg.Format != "human" && cfg.Format != "json" {
		return fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
	logger = newZapLevel(cfg, lvl)
	return nil
}

func parseLevel(lvl string) (zapcore.Level, error) {
	switch strings.ToLower(lvl) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unsupported log level: %s", lvl)
	}
}

func newZap(cfg Config) *zap.SugaredLogger {
	return newZapLevel(cfg, zapcore.InfoLevel)
}

func newZapLevel(cfg Config, lvl zapcore.Level) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.Format == "human" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	return zap.New(core, zap.AddCallerSkip(1)).Sugar()
}

// Logger describes the logger interface.
type Logger interface {
	New(ctx ...interface{}) Logger
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
}

type zapLogger struct {
	l *zap.SugaredLogger
}

func (z zapLogger) New(ctx ...interface{}) Logger {
	return zapLogger{l: z.l.With(ctx...)}
}

func (z zapLogger) Debug(msg string, ctx ...interface{}) { z.l.Debugw(msg, ctx...) }
func (z zapLogger) Info(msg string, ctx ...interface{})  { z.l.Infow(msg, ctx...) }
func (z zapLogger) Error(msg string, ctx ...interface{}) { z.l.Errorw(msg, ctx...) }

// Root returns the root logger.
func Root() Logger {
	return zapLogger{l: logger}
}

// New creates a logger with the given context on top of the root logger.
func New(ctx ...interface{}) Logger {
	return Root().New(ctx...)
}

// Debug logs at debug level.
func Debug(msg string, ctx ...interface{}) {
	logger.Debugw(msg, ctx...)
}

// Info logs at info level.
func Info(msg string, ctx ...interface{}) {
	logger.Infow(msg, ctx...)
}

// Error logs at error level.
func Error(msg string, ctx ...interface{}) {
	logger.Errorw(msg, ctx...)
}

// Flush writes all buffered log entries.
func Flush() {
	_ = logger.Sync()
}

// HandlePanic catches a panic, logs it together with a stack trace and
// terminates the process. Every goroutine must defer this.
func HandlePanic() {
	if msg := recover(); msg != nil {
		logger.Errorw("Panic", "msg", msg, "stack", string(debug.Stack()))
		_ = logger.Sync()
		os.Exit(255)
	}
}
