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
Package sources defines the pull-style readable capability consumed by the sequencer, and the adapter that
normalizes push-style producers into it.

A Source buffers units of data (byte chunks or records) and is drained by exactly one reader, which learns about
new data, end-of-data, premature closure and errors through the notifications it subscribes to.
*/
package sources

// EventType is the closed set of notifications a Source delivers to its subscribers.
type EventType int

const (
	// EventReadable signals that at least one unit may be available to Read.
	EventReadable EventType = iota
	// EventEnd signals that end-of-data was reached and every buffered unit has been read.
	EventEnd
	// EventClose signals that the source released its resources. A close without a preceding
	// end means the source stopped before delivering all of its data.
	EventClose
	// EventError signals a failure of the source; Event.Err carries the cause.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventReadable:
		return "readable"
	case EventEnd:
		return "end"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a notification delivered by a Source.
type Event struct {
	Type EventType
	Err  error
}

// Source is a pull-style readable capability.
type Source[T any] interface {
	// Read removes and returns the next buffered unit. It returns false when nothing is buffered right now,
	// which is not the same as end-of-data: check Ended, or wait for EventEnd.
	Read() (T, bool)
	// Ended reports whether end-of-data has been signalled. Units may still be buffered.
	Ended() bool
	// Subscribe registers fn for the notifications of the source until the returned function is called.
	// fn must not block.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Canceler is implemented by sources and producers that can be cancelled before they complete.
type Canceler interface {
	Cancel() error
}

// Emitter receives the deliveries of a push-style producer.
type Emitter[T any] interface {
	// Push delivers one unit. It blocks while the receiving buffer is at its high-water mark and
	// returns false once the receiver was cancelled, after which the producer should stop.
	Push(unit T) bool
	// End signals end-of-data.
	End()
	// Fail signals that the producer failed.
	Fail(err error)
}

// Pusher is a push-style producer. Start must return promptly and deliver from its own goroutine(s).
// A Pusher that also implements Canceler is cancelled together with the buffer it writes into.
type Pusher[T any] interface {
	Start(emitter Emitter[T])
}

// PusherFunc adapts a function to the Pusher interface.
type PusherFunc[T any] func(emitter Emitter[T])

// Start calls f(emitter).
func (f PusherFunc[T]) Start(emitter Emitter[T]) {
	f(emitter)
}
