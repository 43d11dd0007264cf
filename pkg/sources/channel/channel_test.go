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

package channel

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/numaproj/multistream/pkg/sequencer"
	"github.com/numaproj/multistream/pkg/sources"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect[T any](t *testing.T, seq *sequencer.Sequencer[T]) ([]T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []T
	for {
		v, err := seq.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

func feed(values ...int) chan int {
	ch := make(chan int, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func TestSource_Sequence(t *testing.T) {
	seq, err := sequencer.NewObject(context.Background(), sequencer.List(
		Descriptor[int](feed(1, 2, 3), nil),
		Descriptor[int](feed(), nil),
		Descriptor[int](feed(4, 5), nil),
	))
	require.NoError(t, err)
	out, err := collect(t, seq)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, out)
}

func TestSource_Error(t *testing.T) {
	values := make(chan int)
	errs := make(chan error, 1)
	boom := errors.New("boom")
	errs <- boom
	seq, err := sequencer.NewObject(context.Background(), sequencer.List(Descriptor[int](values, errs)))
	require.NoError(t, err)
	_, err = collect(t, seq)
	assert.ErrorIs(t, err, boom)
}

func TestSource_ClosedErrorsIgnored(t *testing.T) {
	errs := make(chan error)
	close(errs)
	seq, err := sequencer.NewObject(context.Background(), sequencer.List(Descriptor[int](feed(7), errs)))
	require.NoError(t, err)
	out, err := collect(t, seq)
	assert.NoError(t, err)
	assert.Equal(t, []int{7}, out)
}

func TestSource_Cancel(t *testing.T) {
	values := make(chan int)
	s := New[int](values, nil)
	b := sources.Wrap[int](s, sources.WithObjectMode(true))
	assert.NoError(t, b.Cancel())
	assert.NoError(t, s.Cancel())
	select {
	case <-s.done:
	default:
		t.Fatal("expected the source to be stopped")
	}
}
