// Copyright (c) 2020 The Gnet Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging is the logging layer of ioloop, a zap SugaredLogger behind
// the small Logger interface.
//
// Every ioloop.Loop logs through one Logger, picked when the loop is created:
//
//  1. the Logger given with ioloop.WithLogger, used as is;
//  2. otherwise a rotated file at the ioloop.WithLogPath path, see CreateLoggerAsLocalFile;
//  3. otherwise, for a level other than Info set with ioloop.WithLogLevel, a
//     stderr logger from CreateLoggerWithLevel;
//  4. otherwise the process-wide default returned by GetDefaultLogger.
//
// The default logger writes to stdout at the level named by IOLOOP_LOGGING_LEVEL,
// a zap level number from -1 (debug) to 5 (fatal), and goes to the rotated file
// IOLOOP_LOGGING_FILE instead when that variable is set. SetDefaultLoggerAndFlusher
// replaces it once per process. Loops that created their own logger flush it on Close.
package logging

import (
	"errors"
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is used for logging formatted messages.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// Flusher writes out any buffered entries of a logger.
type Flusher = func() error

// Level is the alias of zapcore.Level.
type Level = zapcore.Level

// Levels in increasing severity.
const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

const (
	envLevel = "IOLOOP_LOGGING_LEVEL"
	envFile  = "IOLOOP_LOGGING_FILE"
)

var (
	defaultMu      sync.RWMutex
	defaultLogger  Logger
	defaultFlusher Flusher
	setupOnce      sync.Once
)

func init() {
	lvl := InfoLevel
	if v := os.Getenv(envLevel); v != "" {
		n, err := strconv.ParseInt(v, 10, 8)
		if err != nil {
			panic("invalid " + envLevel + ", " + err.Error())
		}
		lvl = Level(n)
	}

	if path := os.Getenv(envFile); path != "" {
		var err error
		if defaultLogger, defaultFlusher, err = CreateLoggerAsLocalFile(path, lvl); err != nil {
			panic("invalid " + envFile + ", " + err.Error())
		}
		return
	}
	defaultLogger, defaultFlusher = newConsoleLogger(os.Stdout, lvl, zap.Development())
}

// prefixEncoder tags every entry with "[ioloop]" so loop output stands out
// when the embedding program logs to the same stream.
type prefixEncoder struct {
	zapcore.Encoder
	pool buffer.Pool
}

func (e *prefixEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line, err := e.Encoder.EncodeEntry(entry, fields)
	if err != nil {
		return nil, err
	}
	defer line.Free()

	buf := e.pool.Get()
	buf.AppendString("[ioloop] ")
	_, _ = buf.Write(line.Bytes())
	return buf, nil
}

func newEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return &prefixEncoder{Encoder: zapcore.NewConsoleEncoder(cfg), pool: buffer.NewPool()}
}

func build(core zapcore.Core, extra ...zap.Option) (Logger, Flusher) {
	opts := append([]zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	}, extra...)
	zl := zap.New(core, opts...)
	return zl.Sugar(), zl.Sync
}

func newConsoleLogger(w *os.File, lvl Level, extra ...zap.Option) (Logger, Flusher) {
	core := zapcore.NewCore(newEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.Lock(w), lvl)
	return build(core, extra...)
}

// CreateLoggerWithLevel builds a console logger writing to stderr that only
// emits entries at or above lvl, it backs ioloop.WithLogLevel.
func CreateLoggerWithLevel(lvl Level) (Logger, Flusher) {
	return newConsoleLogger(os.Stderr, lvl)
}

// CreateLoggerAsLocalFile builds a logger appending to path, rotated at
// 100 MB with two backups kept for 15 days.
func CreateLoggerAsLocalFile(path string, lvl Level) (Logger, Flusher, error) {
	if path == "" {
		return nil, nil, errors.New("invalid local logger path")
	}
	// lumberjack.Logger serializes its own writes.
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 2,
		MaxAge:     15,
	})
	core := zapcore.NewCore(newEncoder(zap.NewProductionEncoderConfig()), sink, lvl)
	logger, flush := build(core)
	return logger, flush, nil
}

// ParseLevel converts a level name such as "debug" or "warn" into a Level.
func ParseLevel(text string) (Level, error) {
	var lvl Level
	err := lvl.UnmarshalText([]byte(text))
	return lvl, err
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return zap.NewNop().Sugar()
}

// GetDefaultLogger returns the process-wide default logger.
func GetDefaultLogger() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefaultLoggerAndFlusher replaces the default logger used by loops
// created afterwards. Only the first call has an effect.
func SetDefaultLoggerAndFlusher(logger Logger, flusher Flusher) {
	setupOnce.Do(func() {
		defaultMu.Lock()
		defaultLogger, defaultFlusher = logger, flusher
		defaultMu.Unlock()
	})
}

// Cleanup flushes the default logger, it is meant to run before the process exits.
func Cleanup() {
	defaultMu.RLock()
	flush := defaultFlusher
	defaultMu.RUnlock()
	if flush != nil {
		_ = flush()
	}
}
