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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor(t *testing.T) {
	assert.True(t, Descriptor[int]{}.IsZero())
	assert.True(t, Ready[int](nil).IsZero())
	assert.True(t, Lazy[int](nil).IsZero())
	assert.True(t, Push[int](nil).IsZero())

	b := NewBuffer[int]()
	assert.Equal(t, Source[int](b), Ready[int](b).Source())
	lazy := Lazy(func() Descriptor[int] { return Ready[int](b) })
	assert.True(t, lazy.IsLazy())
	assert.Nil(t, lazy.Source())
}

func TestAdapter_Normalize(t *testing.T) {
	a := Adapter[int]{ObjectMode: true, HighWaterMark: 2}

	b := NewBuffer[int]()
	ready := Ready[int](b)
	assert.Equal(t, ready, a.Normalize(ready))

	calls := 0
	lazy := Lazy(func() Descriptor[int] {
		calls++
		return ready
	})
	assert.True(t, a.Normalize(lazy).IsLazy())
	assert.Equal(t, 0, calls)

	pushed := a.Normalize(Push[int](PusherFunc[int](func(e Emitter[int]) {
		e.Push(1)
		e.Push(2)
		e.End()
	})))
	src := pushed.Source()
	require.NotNil(t, src)
	buf, ok := src.(*Buffer[int])
	require.True(t, ok)
	assert.Equal(t, 2, buf.highWaterMark)
	assert.True(t, buf.objectMode)
	assert.Equal(t, 2, buf.Len())
	assert.True(t, src.Ended())
}

func TestAdapter_Resolve(t *testing.T) {
	a := Adapter[string]{}
	assert.Nil(t, a.Resolve(Descriptor[string]{}))
	assert.Nil(t, a.Resolve(Lazy(func() Descriptor[string] { return Descriptor[string]{} })))

	nested := Lazy(func() Descriptor[string] {
		return Lazy(func() Descriptor[string] {
			return Push[string](PusherFunc[string](func(e Emitter[string]) {
				e.Push("hello")
				e.End()
			}))
		})
	})
	src := a.Resolve(nested)
	require.NotNil(t, src)
	v, ok := src.Read()
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
	buf := src.(*Buffer[string])
	assert.Equal(t, DefaultByteHighWaterMark, buf.highWaterMark)
}
