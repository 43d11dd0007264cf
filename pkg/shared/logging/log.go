/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
// Package logging builds the zap loggers of multistream and carries them in contexts. Logs go to stderr, stdout
// belongs to the concatenated output.
package logging

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// EnvDebug switches to the development encoder and the debug level
	EnvDebug = "MULTISTREAM_DEBUG"
	// EnvLogLevel overrides the level, one of debug, info, warn or error
	EnvLogLevel = "MULTISTREAM_LOG_LEVEL"
)

var (
	defaultOnce   sync.Once
	defaultLogger *zap.SugaredLogger
)

// NewLogger returns a logger configured from the environment.
func NewLogger() *zap.SugaredLogger {
	logger, err := newConfig().Build()
	if err != nil {
		panic(err)
	}
	return logger.Named("multistream").Sugar()
}

func newConfig() zap.Config {
	config := zap.NewProductionConfig()
	if os.Getenv(EnvDebug) == "true" {
		config = zap.NewDevelopmentConfig()
	}
	config.OutputPaths = []string{"stderr"}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		// unknown levels keep the default one
		if level, err := zap.ParseAtomicLevel(lvl); err == nil {
			config.Level = level
		}
	}
	return config
}

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger of ctx, or a process wide one built on first use.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	defaultOnce.Do(func() {
		defaultLogger = NewLogger()
	})
	return defaultLogger
}
