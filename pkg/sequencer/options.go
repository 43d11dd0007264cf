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

package sequencer

import (
	"fmt"

	"go.uber.org/zap"
)

// options for sequencing the sources
type options struct {
	// objectMode forwards discrete records instead of byte chunks
	objectMode bool
	// highWaterMark is the number of records (object mode) or bytes buffered by the output and the adapted sources
	highWaterMark int
	// errorHandler decides whether a source error is recovered by skipping the source
	errorHandler func(error) bool
	// name identifies the sequencer in logs and metrics
	name string
	// logger is used to pass the logger variable
	logger *zap.SugaredLogger
}

type Option func(*options) error

func defaultOptions() *options {
	return &options{}
}

// WithObjectMode forwards discrete records, and counts the high-water mark in records.
func WithObjectMode(objectMode bool) Option {
	return func(o *options) error {
		o.objectMode = objectMode
		return nil
	}
}

// WithHighWaterMark sets the buffering threshold of the output and of the adapted sources.
func WithHighWaterMark(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return fmt.Errorf("high water mark must not be negative, got %d", n)
		}
		o.highWaterMark = n
		return nil
	}
}

// WithErrorHandler sets the predicate that decides, for every source error, whether the failed source is
// skipped (true) or the whole chain is destroyed (false). Without it every source error is fatal.
func WithErrorHandler(f func(error) bool) Option {
	return func(o *options) error {
		o.errorHandler = f
		return nil
	}
}

// WithName sets the name used in logs and metrics.
func WithName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return fmt.Errorf("name must not be empty")
		}
		o.name = name
		return nil
	}
}

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}
