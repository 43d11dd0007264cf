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

// Package channel adapts Go channels into push-style producers.
package channel

import (
	"sync"

	"github.com/numaproj/multistream/pkg/metrics"
	"github.com/numaproj/multistream/pkg/sources"
)

// Source forwards the values received from a channel until it is closed.
type Source[T any] struct {
	values <-chan T
	errs   <-chan error
	done   chan struct{}
	once   sync.Once
}

var (
	_ sources.Pusher[any] = (*Source[any])(nil)
	_ sources.Canceler    = (*Source[any])(nil)
)

// New returns a producer over values. The source ends when values is closed. A value received from errs fails
// the source; a closed errs is ignored.
func New[T any](values <-chan T, errs <-chan error) *Source[T] {
	return &Source[T]{values: values, errs: errs, done: make(chan struct{})}
}

// Descriptor returns a push descriptor over values.
func Descriptor[T any](values <-chan T, errs <-chan error) sources.Descriptor[T] {
	return sources.Push[T](New(values, errs))
}

// Start implements sources.Pusher.
func (s *Source[T]) Start(emitter sources.Emitter[T]) {
	go s.run(emitter)
}

func (s *Source[T]) run(emitter sources.Emitter[T]) {
	labels := map[string]string{metrics.LabelSourceType: "channel"}
	errs := s.errs
	for {
		select {
		case <-s.done:
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			metrics.SourceErrorCount.With(labels).Inc()
			emitter.Fail(err)
			return
		case v, ok := <-s.values:
			if !ok {
				emitter.End()
				return
			}
			metrics.SourceReadCount.With(labels).Inc()
			if !emitter.Push(v) {
				return
			}
		}
	}
}

// Cancel implements sources.Canceler. The channels are left open, they belong to the sender.
func (s *Source[T]) Cancel() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
