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

package sources

import (
	"sync"
)

const (
	// DefaultObjectHighWaterMark is the number of records buffered in object mode.
	DefaultObjectHighWaterMark = 16
	// DefaultByteHighWaterMark is the number of bytes buffered in byte mode.
	DefaultByteHighWaterMark = 16 * 1024
)

// UnitSize returns how much a unit counts against a high-water mark. In object mode every unit counts as one,
// otherwise byte chunks and strings count their length.
func UnitSize[T any](objectMode bool, unit T) int {
	if objectMode {
		return 1
	}
	switch v := any(unit).(type) {
	case []byte:
		return len(v)
	case string:
		return len(v)
	default:
		return 1
	}
}

// DefaultHighWaterMark returns the high-water mark used when none is configured.
func DefaultHighWaterMark(objectMode bool) int {
	if objectMode {
		return DefaultObjectHighWaterMark
	}
	return DefaultByteHighWaterMark
}

type bufferOptions struct {
	objectMode    bool
	highWaterMark int
}

// BufferOption configures a Buffer.
type BufferOption func(*bufferOptions)

// WithObjectMode counts every unit as one against the high-water mark.
func WithObjectMode(objectMode bool) BufferOption {
	return func(o *bufferOptions) {
		o.objectMode = objectMode
	}
}

// WithHighWaterMark sets the high-water mark. Non-positive values keep the default of the mode.
func WithHighWaterMark(n int) BufferOption {
	return func(o *bufferOptions) {
		o.highWaterMark = n
	}
}

// Buffer turns push-style deliveries into a pull-style Source. Producers write through the Emitter methods,
// the single reader drains it with Read.
type Buffer[T any] struct {
	lock          *sync.Mutex
	cond          *sync.Cond
	units         []T
	size          int
	objectMode    bool
	highWaterMark int
	ended         bool
	endEmitted    bool
	err           error
	cancelled     bool
	upstream      Canceler
	subscribers   map[uint64]func(Event)
	nextID        uint64
}

var (
	_ Source[any]  = (*Buffer[any])(nil)
	_ Emitter[any] = (*Buffer[any])(nil)
	_ Canceler     = (*Buffer[any])(nil)
)

// NewBuffer returns an empty Buffer.
func NewBuffer[T any](opts ...BufferOption) *Buffer[T] {
	o := &bufferOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.highWaterMark <= 0 {
		o.highWaterMark = DefaultHighWaterMark(o.objectMode)
	}
	lock := new(sync.Mutex)
	return &Buffer[T]{
		lock:          lock,
		cond:          sync.NewCond(lock),
		objectMode:    o.objectMode,
		highWaterMark: o.highWaterMark,
		subscribers:   make(map[uint64]func(Event)),
	}
}

// Wrap adapts a push-style producer: it starts p against a new Buffer and returns the Buffer. If p implements
// Canceler, cancelling the Buffer cancels p.
func Wrap[T any](p Pusher[T], opts ...BufferOption) *Buffer[T] {
	b := NewBuffer[T](opts...)
	if c, ok := p.(Canceler); ok {
		b.upstream = c
	}
	p.Start(b)
	return b
}

// Failed describes a source that fails with err as soon as it is observed.
func Failed[T any](err error) Descriptor[T] {
	b := NewBuffer[T]()
	b.Fail(err)
	return Ready[T](b)
}

// Push appends one unit, blocking while the buffer is at its high-water mark.
func (b *Buffer[T]) Push(unit T) bool {
	b.lock.Lock()
	for b.accepting() && b.size >= b.highWaterMark {
		b.cond.Wait()
	}
	if !b.accepting() {
		b.lock.Unlock()
		return false
	}
	b.units = append(b.units, unit)
	b.size += UnitSize(b.objectMode, unit)
	subs := b.snapshot()
	b.lock.Unlock()
	notify(subs, Event{Type: EventReadable})
	return true
}

// accepting must be called with the lock held.
func (b *Buffer[T]) accepting() bool {
	return !b.cancelled && !b.ended && b.err == nil
}

// End marks end-of-data. EventEnd follows once the reader has drained the buffer.
func (b *Buffer[T]) End() {
	b.lock.Lock()
	if !b.accepting() {
		b.lock.Unlock()
		return
	}
	b.ended = true
	b.cond.Broadcast()
	subs := b.snapshot()
	b.lock.Unlock()
	notify(subs, Event{Type: EventReadable})
}

// Fail records err and notifies the subscribers. Only the first error is kept; it is also delivered to
// every later subscriber.
func (b *Buffer[T]) Fail(err error) {
	b.lock.Lock()
	if err == nil || b.err != nil || b.cancelled {
		b.lock.Unlock()
		return
	}
	b.err = err
	b.cond.Broadcast()
	subs := b.snapshot()
	b.lock.Unlock()
	notify(subs, Event{Type: EventError, Err: err})
}

// Read implements Source.
func (b *Buffer[T]) Read() (T, bool) {
	var zero T
	b.lock.Lock()
	if len(b.units) == 0 {
		subs := b.endIfDrained()
		b.lock.Unlock()
		notify(subs, Event{Type: EventEnd})
		return zero, false
	}
	unit := b.units[0]
	b.units[0] = zero
	b.units = b.units[1:]
	b.size -= UnitSize(b.objectMode, unit)
	b.cond.Broadcast()
	subs := b.endIfDrained()
	b.lock.Unlock()
	notify(subs, Event{Type: EventEnd})
	return unit, true
}

// endIfDrained returns the subscribers to notify of the end, if the end is due now.
// It must be called with the lock held.
func (b *Buffer[T]) endIfDrained() []func(Event) {
	if !b.ended || b.endEmitted || len(b.units) > 0 {
		return nil
	}
	b.endEmitted = true
	return b.snapshot()
}

// Ended implements Source.
func (b *Buffer[T]) Ended() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.ended
}

// Err returns the error the buffer failed with, if any.
func (b *Buffer[T]) Err() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.err
}

// Len returns the number of buffered units.
func (b *Buffer[T]) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.units)
}

// Cancel discards the buffered units, unblocks the producer, cancels it if it is cancellable and
// emits EventClose. Cancelling twice has no effect.
func (b *Buffer[T]) Cancel() error {
	b.lock.Lock()
	if b.cancelled {
		b.lock.Unlock()
		return nil
	}
	b.cancelled = true
	b.units = nil
	b.size = 0
	b.cond.Broadcast()
	upstream := b.upstream
	subs := b.snapshot()
	b.lock.Unlock()

	var err error
	if upstream != nil {
		err = upstream.Cancel()
	}
	notify(subs, Event{Type: EventClose})
	return err
}

// Subscribe implements Source. A buffer that already failed reports its error to fn right away.
func (b *Buffer[T]) Subscribe(fn func(Event)) func() {
	b.lock.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	err := b.err
	b.lock.Unlock()
	if err != nil {
		fn(Event{Type: EventError, Err: err})
	}
	return func() {
		b.lock.Lock()
		delete(b.subscribers, id)
		b.lock.Unlock()
	}
}

// snapshot must be called with the lock held.
func (b *Buffer[T]) snapshot() []func(Event) {
	if len(b.subscribers) == 0 {
		return nil
	}
	subs := make([]func(Event), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
