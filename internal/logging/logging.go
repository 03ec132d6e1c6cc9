// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap logger shared by every calliope package.
//
// Logs go to a JSON file when one is configured and to stderr in console
// form when verbose output is requested. With neither, the logger is a no-op
// so an interactive session never interleaves log lines with chat output.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeranaias/calliope-tui/internal/config"
)

// Options selects the logger outputs.
type Options struct {
	// Level is debug, info, warn or error.
	Level string
	// File receives JSON records. Empty disables the file.
	File string
	// Verbose adds a console core on stderr at debug level.
	Verbose bool
}

// FromConfig derives Options from the logging section.
func FromConfig(cfg *config.Config, verbose bool) Options {
	return Options{
		Level:   cfg.Logging.Level,
		File:    cfg.LogFile(),
		Verbose: verbose,
	}
}

// ParseLevel maps a level name to a zap level. Unknown names are info.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// New builds a logger. The returned cleanup flushes and closes the file.
func New(opts Options) (*zap.Logger, func(), error) {
	var cores []zapcore.Core
	var closers []func()

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		// SECURITY: Logs carry chat ids and request ids; owner only.
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closers = append(closers, func() { _ = f.Close() })

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(f),
			zap.NewAtomicLevelAt(ParseLevel(opts.Level)),
		))
	}

	if opts.Verbose {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			zap.NewAtomicLevelAt(zapcore.DebugLevel),
		))
	}

	if len(cores) == 0 {
		return zap.NewNop(), func() {}, nil
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	cleanup := func() {
		_ = logger.Sync()
		for _, c := range closers {
			c()
		}
	}
	return logger, cleanup, nil
}
