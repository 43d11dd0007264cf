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

// Package reader adapts any io.Reader into a push-style producer of byte chunks.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/multistream/pkg/metrics"
	"github.com/numaproj/multistream/pkg/shared/logging"
	"github.com/numaproj/multistream/pkg/sources"
)

const defaultChunkSize = 16 * 1024

type Source struct {
	r          io.Reader
	closer     io.Closer
	chunkSize  int
	sourceType string
	logger     *zap.SugaredLogger
	cancelled  *atomic.Bool
	closeOnce  sync.Once
	closeErr   error
}

var (
	_ sources.Pusher[[]byte] = (*Source)(nil)
	_ sources.Canceler       = (*Source)(nil)
)

type Option func(*Source) error

// WithChunkSize sets the maximum size of the chunks read from the reader.
func WithChunkSize(n int) Option {
	return func(s *Source) error {
		if n <= 0 {
			return fmt.Errorf("chunk size must be positive, got %d", n)
		}
		s.chunkSize = n
		return nil
	}
}

// WithCloser sets the closer released once the reader is exhausted, has failed or is cancelled.
// By default the reader itself is closed when it implements io.Closer.
func WithCloser(c io.Closer) Option {
	return func(s *Source) error {
		s.closer = c
		return nil
	}
}

// WithSourceType sets the label the source reports its metrics with.
func WithSourceType(t string) Option {
	return func(s *Source) error {
		s.sourceType = t
		return nil
	}
}

// New returns a producer streaming r as byte chunks.
func New(ctx context.Context, r io.Reader, opts ...Option) (*Source, error) {
	s := &Source{
		r:          r,
		chunkSize:  defaultChunkSize,
		sourceType: "reader",
		logger:     logging.FromContext(ctx),
		cancelled:  atomic.NewBool(false),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Descriptor returns a push descriptor over r. Invalid options yield a source failing with the error.
func Descriptor(ctx context.Context, r io.Reader, opts ...Option) sources.Descriptor[[]byte] {
	s, err := New(ctx, r, opts...)
	if err != nil {
		return sources.Failed[[]byte](err)
	}
	return sources.Push[[]byte](s)
}

// Start implements sources.Pusher.
func (s *Source) Start(emitter sources.Emitter[[]byte]) {
	go s.run(emitter)
}

func (s *Source) run(emitter sources.Emitter[[]byte]) {
	defer func() { _ = s.close() }()
	labels := map[string]string{metrics.LabelSourceType: s.sourceType}
	for {
		buf := make([]byte, s.chunkSize)
		n, err := s.r.Read(buf)
		if n > 0 {
			metrics.SourceReadCount.With(labels).Inc()
			metrics.SourceReadBytesCount.With(labels).Add(float64(n))
			if !emitter.Push(buf[:n]) {
				return
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			emitter.End()
			return
		default:
			if s.cancelled.Load() {
				return
			}
			metrics.SourceErrorCount.With(labels).Inc()
			s.logger.Errorw("Failed to read", "sourceType", s.sourceType, zap.Error(err))
			emitter.Fail(err)
			return
		}
	}
}

// Cancel implements sources.Canceler. It closes the underlying reader, which unblocks a pending read.
func (s *Source) Cancel() error {
	s.cancelled.Store(true)
	return s.close()
}

func (s *Source) close() error {
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}
