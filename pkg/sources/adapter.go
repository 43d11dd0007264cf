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

// Adapter normalizes descriptors into pull-style sources. ObjectMode and HighWaterMark configure the
// buffers that push-style producers are wrapped into.
type Adapter[T any] struct {
	ObjectMode    bool
	HighWaterMark int
}

// Normalize wraps a push-style producer into a Buffer. Ready and lazy descriptors are returned unchanged,
// lazy producers are only invoked by Resolve.
func (a Adapter[T]) Normalize(d Descriptor[T]) Descriptor[T] {
	if d.kind != kindPush {
		return d
	}
	return Ready[T](Wrap(d.pusher, a.bufferOptions()...))
}

// Resolve invokes lazy producers until a concrete descriptor comes out, normalizes it and returns its source.
// It returns nil if no source was produced.
func (a Adapter[T]) Resolve(d Descriptor[T]) Source[T] {
	for d.kind == kindLazy {
		d = d.lazy()
	}
	return a.Normalize(d).Source()
}

func (a Adapter[T]) bufferOptions() []BufferOption {
	return []BufferOption{WithObjectMode(a.ObjectMode), WithHighWaterMark(a.HighWaterMark)}
}
