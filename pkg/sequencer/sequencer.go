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

/*
Package sequencer concatenates an ordered sequence of sources into a single readable output.

Sources are drained strictly one after the other, and a source is only pulled from while the output has demand.
A Sequencer is a state machine that reacts to a closed set of events: source notifications, consumer demand,
factory results and destroy requests. Events are queued in a mailbox and handled one at a time by whichever
goroutine posted while no other was handling, so the state of a chain is never touched concurrently and handlers
never block.
*/
package sequencer

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/multistream/pkg/metrics"
	"github.com/numaproj/multistream/pkg/shared/logging"
	"github.com/numaproj/multistream/pkg/sources"
)

const defaultName = "default"

type eventKind int

const (
	eventStart eventKind = iota
	eventDemand
	eventSource
	eventFactory
	eventDestroy
)

type event[T any] struct {
	kind eventKind
	// entry and source are set for eventSource
	entry  *entry[T]
	source sources.Event
	// request and desc are set for eventFactory
	request uint64
	desc    sources.Descriptor[T]
	err     error
}

// Sequencer exposes a sequence of sources as one source. It satisfies sources.Source and sources.Canceler,
// so a chain can be part of another chain.
type Sequencer[T any] struct {
	id      string
	name    string
	opts    *options
	log     *zap.SugaredLogger
	adapter sources.Adapter[T]
	out     *sink[T]

	// the fields below are owned by the goroutine handling the mailbox
	kind       queueKind
	pending    []*entry[T]
	factory    Factory[T]
	request    uint64
	produced   int
	current    *entry[T]
	drained    bool
	forwarding bool

	destroyed *atomic.Bool
	done      chan struct{}
	stopWatch func() bool

	mailLock *sync.Mutex
	mail     []event[T]
	running  bool
}

var (
	_ sources.Source[any] = (*Sequencer[any])(nil)
	_ sources.Canceler    = (*Sequencer[any])(nil)
)

// New creates a chain over the queue and starts advancing to its first source. The logger is taken from ctx
// unless one is passed with WithLogger; once ctx is done the chain is destroyed with its cause.
func New[T any](ctx context.Context, q Queue[T], opts ...Option) (*Sequencer[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.highWaterMark == 0 {
		o.highWaterMark = sources.DefaultHighWaterMark(o.objectMode)
	}
	if o.logger == nil {
		o.logger = logging.FromContext(ctx)
	}
	if o.name == "" {
		o.name = defaultName
	}

	s := &Sequencer[T]{
		id:        uuid.New().String(),
		name:      o.name,
		opts:      o,
		adapter:   sources.Adapter[T]{ObjectMode: o.objectMode, HighWaterMark: o.highWaterMark},
		out:       newSink[T](o.objectMode, o.highWaterMark),
		kind:      q.kind,
		factory:   q.factory,
		destroyed: atomic.NewBool(false),
		done:      make(chan struct{}),
		mailLock:  new(sync.Mutex),
		// events posted while the chain is being set up wait for the first run below
		running: true,
	}
	s.log = o.logger.With("sequencer", s.name, "id", s.id)

	if s.kind == listQueue {
		for i, d := range q.descriptors {
			d = s.adapter.Normalize(d)
			if d.IsZero() {
				s.log.Warnw("Ignoring empty source descriptor", "index", i)
				continue
			}
			e := &entry[T]{index: i, desc: d}
			// open sources are watched for errors before they become current
			if src := d.Source(); src != nil {
				e.src = src
				s.watch(e)
			}
			s.pending = append(s.pending, e)
		}
	}
	if ctx.Done() != nil {
		s.stopWatch = context.AfterFunc(ctx, func() {
			s.Destroy(context.Cause(ctx))
		})
	}
	s.log.Debugw("Starting multistream", "objectMode", o.objectMode, "highWaterMark", o.highWaterMark, "queued", len(s.pending))
	s.post(event[T]{kind: eventStart})
	s.run()
	return s, nil
}

// NewObject creates a chain in object mode, buffering up to 16 records.
func NewObject[T any](ctx context.Context, q Queue[T], opts ...Option) (*Sequencer[T], error) {
	return New[T](ctx, q, append([]Option{WithObjectMode(true), WithHighWaterMark(sources.DefaultObjectHighWaterMark)}, opts...)...)
}

// NewBytes creates a chain of byte chunks, buffering up to 16 KiB.
func NewBytes(ctx context.Context, q Queue[[]byte], opts ...Option) (*Sequencer[[]byte], error) {
	return New[[]byte](ctx, q, append([]Option{WithObjectMode(false)}, opts...)...)
}

// Name returns the name of the chain.
func (s *Sequencer[T]) Name() string {
	return s.name
}

// Read implements sources.Source. It never blocks, see Next for a blocking read.
func (s *Sequencer[T]) Read() (T, bool) {
	unit, ok, demand := s.out.read()
	if demand {
		s.post(event[T]{kind: eventDemand})
	}
	return unit, ok
}

// Next blocks until a unit is available. It returns io.EOF once every source was drained, the error the chain
// failed with, ErrDestroyed if the chain was destroyed before its end, or the error of ctx.
func (s *Sequencer[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		if unit, ok := s.Read(); ok {
			return unit, nil
		}
		wait, err := s.out.status()
		if err != nil {
			return zero, err
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

// Ended implements sources.Source.
func (s *Sequencer[T]) Ended() bool {
	return s.out.isEnded()
}

// Subscribe implements sources.Source.
func (s *Sequencer[T]) Subscribe(fn func(sources.Event)) func() {
	return s.out.subscribe(fn)
}

// Destroy stops the chain: the current source and every queued open source are cancelled, err (if any) is
// reported, then the output is closed. Destroying twice has no effect.
func (s *Sequencer[T]) Destroy(err error) {
	s.post(event[T]{kind: eventDestroy, err: err})
}

// Cancel implements sources.Canceler.
func (s *Sequencer[T]) Cancel() error {
	s.Destroy(nil)
	return nil
}

// Destroyed returns true once the chain reached its terminal state.
func (s *Sequencer[T]) Destroyed() bool {
	return s.destroyed.Load()
}

// Done returns a channel that is closed once the chain is destroyed, including after a clean end.
func (s *Sequencer[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the error the chain failed with, if any.
func (s *Sequencer[T]) Err() error {
	return s.out.failure()
}

func (s *Sequencer[T]) post(ev event[T]) {
	s.mailLock.Lock()
	s.mail = append(s.mail, ev)
	if s.running {
		s.mailLock.Unlock()
		return
	}
	s.running = true
	s.mailLock.Unlock()
	s.run()
}

// run handles the queued events until the mailbox is empty. Only one goroutine runs at a time.
func (s *Sequencer[T]) run() {
	for {
		s.mailLock.Lock()
		if len(s.mail) == 0 {
			s.running = false
			s.mailLock.Unlock()
			return
		}
		ev := s.mail[0]
		s.mail[0] = event[T]{}
		s.mail = s.mail[1:]
		s.mailLock.Unlock()
		s.handle(ev)
	}
}

func (s *Sequencer[T]) handle(ev event[T]) {
	if s.destroyed.Load() {
		if ev.kind == eventFactory {
			s.discard(ev)
		}
		return
	}
	switch ev.kind {
	case eventStart:
		s.next()
	case eventDemand:
		s.drained = true
		s.forward()
	case eventSource:
		s.onSourceEvent(ev.entry, ev.source)
	case eventFactory:
		s.onFactoryResult(ev)
	case eventDestroy:
		s.destroy(ev.err)
	}
}

// watch subscribes to the notifications of the entry's source, with its error handling armed.
func (s *Sequencer[T]) watch(e *entry[T]) {
	e.watchErrors = true
	e.unsubscribe = e.src.Subscribe(func(ev sources.Event) {
		s.post(event[T]{kind: eventSource, entry: e, source: ev})
	})
}

// release stops every notification of the entry's source.
func (s *Sequencer[T]) release(e *entry[T]) {
	e.active = false
	e.watchErrors = false
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// next clears the current source and advances to the next one.
func (s *Sequencer[T]) next() {
	s.current = nil
	if s.kind == factoryQueue {
		s.request++
		request := s.request
		var once sync.Once
		s.factory(func(d sources.Descriptor[T], err error) {
			once.Do(func() {
				s.post(event[T]{kind: eventFactory, request: request, desc: d, err: err})
			})
		})
		return
	}
	for len(s.pending) > 0 {
		e := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		if e.abandoned {
			continue
		}
		if e.src == nil {
			src := s.adapter.Resolve(e.desc)
			if src == nil {
				s.log.Debugw("Lazy source produced nothing, skipping", "index", e.index)
				continue
			}
			e.src = src
			e.desc = sources.Descriptor[T]{}
			s.watch(e)
		}
		s.activate(e)
		return
	}
	s.activate(nil)
}

func (s *Sequencer[T]) onFactoryResult(ev event[T]) {
	if ev.request != s.request || s.current != nil {
		s.log.Warnw("Ignoring an unexpected factory result", "request", ev.request)
		s.discard(ev)
		return
	}
	if ev.err != nil {
		s.destroy(fmt.Errorf("failed to get the next source, %w", ev.err))
		return
	}
	src := s.adapter.Resolve(ev.desc)
	if src == nil {
		s.activate(nil)
		return
	}
	e := &entry[T]{index: s.produced, src: src}
	s.produced++
	s.watch(e)
	s.activate(e)
}

// discard cancels a source delivered by the factory that will never be read.
func (s *Sequencer[T]) discard(ev event[T]) {
	if c, ok := ev.desc.Source().(sources.Canceler); ok {
		if err := c.Cancel(); err != nil {
			s.log.Warnw("Failed to cancel a discarded source", zap.Error(err))
		}
	}
}

// activate makes e the current source and drains what it has buffered. A nil entry ends the chain.
func (s *Sequencer[T]) activate(e *entry[T]) {
	if e == nil {
		s.log.Debug("No more sources, ending")
		s.out.end()
		s.destroy(nil)
		return
	}
	s.current = e
	e.active = true
	sourcesActivated.With(map[string]string{metrics.LabelSequencer: s.name}).Inc()
	s.log.Debugw("Activated source", "index", e.index)
	s.forward()
}

// forward moves units from the current source to the output while the output has demand.
func (s *Sequencer[T]) forward() {
	if s.forwarding || !s.drained || s.current == nil {
		return
	}
	s.forwarding = true
	var count, size int
	for s.drained {
		unit, ok := s.current.src.Read()
		if !ok {
			break
		}
		count++
		if !s.opts.objectMode {
			size += sources.UnitSize(false, unit)
		}
		s.drained = s.out.push(unit)
	}
	s.forwarding = false
	if count > 0 {
		labels := map[string]string{metrics.LabelSequencer: s.name}
		unitsForwarded.With(labels).Add(float64(count))
		if size > 0 {
			bytesForwarded.With(labels).Add(float64(size))
		}
	}
}

func (s *Sequencer[T]) onSourceEvent(e *entry[T], ev sources.Event) {
	switch ev.Type {
	case sources.EventError:
		if !e.watchErrors {
			return
		}
		e.watchErrors = false
		s.onError(e, ev.Err)
	case sources.EventReadable:
		if e == s.current {
			s.forward()
		}
	case sources.EventEnd:
		if e != s.current || !e.active {
			return
		}
		s.log.Debugw("Source ended", "index", e.index)
		s.release(e)
		s.next()
	case sources.EventClose:
		if e != s.current || !e.active {
			return
		}
		if !e.src.Ended() {
			s.destroy(fmt.Errorf("source %d: %w", e.index, ErrPrematureClose))
		}
	}
}

// onError either skips the failed source, when the error handler recovers the error, or destroys the chain.
func (s *Sequencer[T]) onError(e *entry[T], err error) {
	labels := map[string]string{metrics.LabelSequencer: s.name}
	sourceErrors.With(labels).Inc()
	if s.opts.errorHandler == nil || !s.opts.errorHandler(err) {
		s.destroy(err)
		return
	}
	sourcesSkipped.With(labels).Inc()
	s.log.Warnw("Skipping failed source", "index", e.index, zap.Error(err))
	wasCurrent := e == s.current
	s.release(e)
	e.abandoned = true
	if cerr := cancel(e.src); cerr != nil {
		s.log.Warnw("Failed to cancel the skipped source", "index", e.index, zap.Error(cerr))
	}
	if wasCurrent {
		s.next()
	}
}

// destroy is the terminal transition of the chain.
func (s *Sequencer[T]) destroy(err error) {
	if !s.destroyed.CompareAndSwap(false, true) {
		return
	}
	var errs error
	if e := s.current; e != nil {
		s.release(e)
		errs = multierr.Append(errs, cancel(e.src))
		s.current = nil
	}
	if s.kind == listQueue {
		for _, e := range s.pending {
			// lazy producers that never ran have nothing to cancel
			if e.abandoned || e.src == nil {
				continue
			}
			s.release(e)
			errs = multierr.Append(errs, cancel(e.src))
		}
		s.pending = nil
	}
	if errs != nil {
		s.log.Warnw("Failed to cancel sources", zap.Error(errs))
	}

	reason := "end"
	switch {
	case err != nil:
		reason = "error"
		s.log.Errorw("Destroying multistream", zap.Error(err))
		s.out.fail(err)
	case !s.out.isEnded():
		reason = "cancel"
		s.log.Info("Destroying multistream before its end")
	default:
		s.log.Debug("Multistream ended")
	}
	destroyedCount.With(map[string]string{metrics.LabelSequencer: s.name, metrics.LabelReason: reason}).Inc()
	s.out.close()
	if s.stopWatch != nil {
		s.stopWatch()
	}
	close(s.done)
}

func cancel[T any](src sources.Source[T]) error {
	if c, ok := src.(sources.Canceler); ok {
		return c.Cancel()
	}
	return nil
}
