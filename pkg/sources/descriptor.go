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

type descriptorKind int

const (
	kindNone descriptorKind = iota
	kindReady
	kindLazy
	kindPush
)

// Descriptor describes one entry of a source sequence: an already open pull source, a lazy producer that
// creates the source on demand, or a push-style producer that needs to be adapted. The zero value describes
// no source at all.
type Descriptor[T any] struct {
	kind   descriptorKind
	source Source[T]
	lazy   func() Descriptor[T]
	pusher Pusher[T]
}

// Ready describes an already open source.
func Ready[T any](s Source[T]) Descriptor[T] {
	if s == nil {
		return Descriptor[T]{}
	}
	return Descriptor[T]{kind: kindReady, source: s}
}

// Lazy describes a source that is created by fn only when it becomes the active one.
func Lazy[T any](fn func() Descriptor[T]) Descriptor[T] {
	if fn == nil {
		return Descriptor[T]{}
	}
	return Descriptor[T]{kind: kindLazy, lazy: fn}
}

// Push describes a push-style producer. It is wrapped into a Buffer when normalized.
func Push[T any](p Pusher[T]) Descriptor[T] {
	if p == nil {
		return Descriptor[T]{}
	}
	return Descriptor[T]{kind: kindPush, pusher: p}
}

// IsZero returns true if d describes no source.
func (d Descriptor[T]) IsZero() bool {
	return d.kind == kindNone
}

// IsLazy returns true if d is a lazy producer that has not been invoked.
func (d Descriptor[T]) IsLazy() bool {
	return d.kind == kindLazy
}

// Source returns the open source of a ready descriptor, nil otherwise.
func (d Descriptor[T]) Source() Source[T] {
	if d.kind != kindReady {
		return nil
	}
	return d.source
}
