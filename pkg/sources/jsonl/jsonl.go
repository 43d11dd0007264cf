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

// Package jsonl decodes a stream of JSON values, such as newline delimited JSON, into records.
package jsonl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/multistream/pkg/metrics"
	"github.com/numaproj/multistream/pkg/shared/logging"
	"github.com/numaproj/multistream/pkg/sources"
)

// Source decodes records of type T from a reader.
type Source[T any] struct {
	r         io.Reader
	logger    *zap.SugaredLogger
	cancelled *atomic.Bool
	closeOnce sync.Once
}

var (
	_ sources.Pusher[any] = (*Source[any])(nil)
	_ sources.Canceler    = (*Source[any])(nil)
)

// New returns a producer decoding r. The reader is closed once decoding stops if it is an io.Closer.
func New[T any](ctx context.Context, r io.Reader) *Source[T] {
	return &Source[T]{r: r, logger: logging.FromContext(ctx), cancelled: atomic.NewBool(false)}
}

// Descriptor returns a push descriptor decoding r.
func Descriptor[T any](ctx context.Context, r io.Reader) sources.Descriptor[T] {
	return sources.Push[T](New[T](ctx, r))
}

// Start implements sources.Pusher.
func (s *Source[T]) Start(emitter sources.Emitter[T]) {
	go s.run(emitter)
}

func (s *Source[T]) run(emitter sources.Emitter[T]) {
	defer s.close()
	labels := map[string]string{metrics.LabelSourceType: "jsonl"}
	dec := json.NewDecoder(s.r)
	for i := 0; ; i++ {
		var record T
		if err := dec.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				emitter.End()
				return
			}
			if s.cancelled.Load() {
				return
			}
			metrics.SourceErrorCount.With(labels).Inc()
			s.logger.Errorw("Failed to decode record", "index", i, zap.Error(err))
			emitter.Fail(fmt.Errorf("failed to decode record %d, %w", i, err))
			return
		}
		metrics.SourceReadCount.With(labels).Inc()
		if !emitter.Push(record) {
			return
		}
	}
}

// Cancel implements sources.Canceler.
func (s *Source[T]) Cancel() error {
	s.cancelled.Store(true)
	s.close()
	return nil
}

func (s *Source[T]) close() {
	s.closeOnce.Do(func() {
		if c, ok := s.r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.logger.Warnw("Failed to close the reader", zap.Error(err))
			}
		}
	})
}
