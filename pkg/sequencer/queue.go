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
	"github.com/numaproj/multistream/pkg/sources"
)

// Factory yields the sources of a chain one at a time. It is invoked each time the chain needs its next source
// and must call next exactly once, possibly from another goroutine: with an error to fail the chain, with a
// descriptor to continue, or with a zero descriptor and a nil error when no source remains.
type Factory[T any] func(next func(sources.Descriptor[T], error))

type queueKind int

const (
	listQueue queueKind = iota
	factoryQueue
)

// Queue is the ordered supply of sources of a chain: either a fixed list of descriptors or a factory.
// The shape is fixed when the chain is created.
type Queue[T any] struct {
	kind        queueKind
	descriptors []sources.Descriptor[T]
	factory     Factory[T]
}

// List returns a queue over the given descriptors, drained in order.
func List[T any](descriptors ...sources.Descriptor[T]) Queue[T] {
	return Queue[T]{kind: listQueue, descriptors: descriptors}
}

// FromFactory returns a queue that asks f for every next source. A nil factory behaves as an empty list.
func FromFactory[T any](f Factory[T]) Queue[T] {
	if f == nil {
		return List[T]()
	}
	return Queue[T]{kind: factoryQueue, factory: f}
}

// entry is one source of the chain, queued or active.
type entry[T any] struct {
	// index is the position of the source in the chain
	index int
	// desc is kept until a lazy producer is resolved
	desc sources.Descriptor[T]
	src  sources.Source[T]
	// unsubscribe stops the notifications of src
	unsubscribe func()
	// watchErrors is true while an error of src is still to be handled
	watchErrors bool
	// active is true while src is the current source
	active bool
	// abandoned is set when a queued source failed and was skipped
	abandoned bool
}
