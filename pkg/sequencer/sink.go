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
	"io"
	"sync"

	"github.com/numaproj/multistream/pkg/sources"
)

// ready is handed to waiters when a unit can be taken right away.
var ready = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// sink is the consumer facing side of a chain. The runner pushes into it, consumers read from it.
type sink[T any] struct {
	lock          *sync.Mutex
	units         []T
	size          int
	objectMode    bool
	highWaterMark int
	ended         bool
	endEmitted    bool
	err           error
	closed        bool
	// changed is closed and replaced on every state change
	changed     chan struct{}
	subscribers map[uint64]func(sources.Event)
	nextID      uint64
}

func newSink[T any](objectMode bool, highWaterMark int) *sink[T] {
	return &sink[T]{
		lock:          new(sync.Mutex),
		objectMode:    objectMode,
		highWaterMark: highWaterMark,
		changed:       make(chan struct{}),
		subscribers:   make(map[uint64]func(sources.Event)),
	}
}

// push appends a unit and reports whether the sink still wants more.
func (s *sink[T]) push(unit T) bool {
	s.lock.Lock()
	if s.finished() {
		s.lock.Unlock()
		return false
	}
	s.units = append(s.units, unit)
	s.size += sources.UnitSize(s.objectMode, unit)
	more := s.size < s.highWaterMark
	s.signal()
	subs := s.snapshot()
	s.lock.Unlock()
	notify(subs, sources.Event{Type: sources.EventReadable})
	return more
}

// end marks end-of-data, the buffered units stay readable.
func (s *sink[T]) end() {
	s.lock.Lock()
	if s.finished() {
		s.lock.Unlock()
		return
	}
	s.ended = true
	s.signal()
	subs := s.snapshot()
	s.lock.Unlock()
	notify(subs, sources.Event{Type: sources.EventReadable})
}

// fail records the terminal error and drops the buffered units.
func (s *sink[T]) fail(err error) {
	s.lock.Lock()
	if s.err != nil || s.closed {
		s.lock.Unlock()
		return
	}
	s.err = err
	s.units = nil
	s.size = 0
	s.signal()
	subs := s.snapshot()
	s.lock.Unlock()
	notify(subs, sources.Event{Type: sources.EventError, Err: err})
}

func (s *sink[T]) close() {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.closed = true
	s.signal()
	subs := s.snapshot()
	s.lock.Unlock()
	notify(subs, sources.Event{Type: sources.EventClose})
}

// read pops one unit. demand is true when the sink is below its high-water mark and can take more.
func (s *sink[T]) read() (unit T, ok bool, demand bool) {
	s.lock.Lock()
	if len(s.units) > 0 {
		var zero T
		unit = s.units[0]
		s.units[0] = zero
		s.units = s.units[1:]
		s.size -= sources.UnitSize(s.objectMode, unit)
		ok = true
	}
	var subs []func(sources.Event)
	if len(s.units) == 0 && s.ended && !s.endEmitted && s.err == nil {
		s.endEmitted = true
		subs = s.snapshot()
	}
	demand = !s.finished() && s.size < s.highWaterMark
	s.lock.Unlock()
	notify(subs, sources.Event{Type: sources.EventEnd})
	return unit, ok, demand
}

// status returns the channel to wait on for the next change, or the terminal error of an empty sink.
func (s *sink[T]) status() (<-chan struct{}, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	switch {
	case len(s.units) > 0:
		return ready, nil
	case s.err != nil:
		return nil, s.err
	case s.ended:
		return nil, io.EOF
	case s.closed:
		return nil, ErrDestroyed
	default:
		return s.changed, nil
	}
}

func (s *sink[T]) isEnded() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.ended
}

func (s *sink[T]) failure() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.err
}

func (s *sink[T]) subscribe(fn func(sources.Event)) func() {
	s.lock.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	err := s.err
	s.lock.Unlock()
	if err != nil {
		fn(sources.Event{Type: sources.EventError, Err: err})
	}
	return func() {
		s.lock.Lock()
		delete(s.subscribers, id)
		s.lock.Unlock()
	}
}

// finished must be called with the lock held.
func (s *sink[T]) finished() bool {
	return s.ended || s.closed || s.err != nil
}

// signal must be called with the lock held.
func (s *sink[T]) signal() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// snapshot must be called with the lock held.
func (s *sink[T]) snapshot() []func(sources.Event) {
	if len(s.subscribers) == 0 {
		return nil
	}
	subs := make([]func(sources.Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(sources.Event), ev sources.Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
