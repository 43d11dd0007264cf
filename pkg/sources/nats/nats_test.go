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

package nats

import (
	"context"
	"io"
	"testing"
	"time"

	natslib "github.com/nats-io/nats.go"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/multistream/pkg/sequencer"
	natstest "github.com/numaproj/multistream/pkg/shared/clients/nats/test"
)

func waitForSubscriptions(t *testing.T, s *server.Server, n uint32) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return s.NumSubscriptions() >= n
	}, 5*time.Second, 10*time.Millisecond)
}

func Test_Sequence(t *testing.T) {
	s := natstest.RunNatsServer(t)
	defer natstest.ShutdownNatsServer(t, s)
	base := s.NumSubscriptions()

	ctx := context.Background()
	seq, err := sequencer.NewBytes(ctx, sequencer.List(
		Descriptor(ctx, s.ClientURL(), "first", WithMaxMessages(2)),
		Descriptor(ctx, s.ClientURL(), "second", WithQueue("group")),
	))
	require.NoError(t, err)
	waitForSubscriptions(t, s, base+2)

	nc, err := natslib.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	require.NoError(t, nc.Publish("second", []byte("3")))
	require.NoError(t, nc.PublishMsg(&natslib.Msg{Subject: "second", Header: natslib.Header{DefaultEndHeader: []string{"true"}}}))
	require.NoError(t, nc.Publish("first", []byte("1")))
	require.NoError(t, nc.Publish("first", []byte("2")))
	require.NoError(t, nc.Flush())

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := io.ReadAll(sequencer.NewReader(rctx, seq))
	assert.NoError(t, err)
	assert.Equal(t, "123", string(out))
	assert.Eventually(t, func() bool {
		return s.NumSubscriptions() == base
	}, 5*time.Second, 10*time.Millisecond)
}

func Test_Cancel(t *testing.T) {
	s := natstest.RunNatsServer(t)
	defer natstest.ShutdownNatsServer(t, s)
	base := s.NumSubscriptions()

	ctx := context.Background()
	seq, err := sequencer.NewBytes(ctx, sequencer.List(Descriptor(ctx, s.ClientURL(), "never")))
	require.NoError(t, err)
	waitForSubscriptions(t, s, base+1)

	seq.Destroy(nil)
	<-seq.Done()
	_, err = seq.Next(ctx)
	assert.ErrorIs(t, err, sequencer.ErrDestroyed)
	assert.Eventually(t, func() bool {
		return s.NumSubscriptions() == base
	}, 5*time.Second, 10*time.Millisecond)
}

func Test_InvalidOptions(t *testing.T) {
	_, err := New(context.Background(), "nats://localhost:4222", "")
	assert.Error(t, err)
	_, err = New(context.Background(), "nats://localhost:4222", "x", WithMaxMessages(-1))
	assert.Error(t, err)

	n, err := New(context.Background(), "nats://localhost:4222", "x", WithEndHeader("Eos"), WithQueue("q"))
	require.NoError(t, err)
	assert.Equal(t, "Eos", n.endHeader)
	assert.Equal(t, "q", n.queue)
	assert.NoError(t, n.Cancel())
}
