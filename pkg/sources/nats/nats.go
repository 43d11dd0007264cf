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

// Package nats provides a push-style source over a NATS subscription. Core NATS subjects have no end, so the
// source is bounded by a maximum number of messages or by a message carrying the end-of-stream header.
package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	natslib "github.com/nats-io/nats.go"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/multistream/pkg/metrics"
	natsclient "github.com/numaproj/multistream/pkg/shared/clients/nats"
	"github.com/numaproj/multistream/pkg/shared/logging"
	"github.com/numaproj/multistream/pkg/sources"
)

// DefaultEndHeader is the header marking the end of a stream. The message carrying it has no data.
const DefaultEndHeader = "Multistream-End"

// ErrConnectionClosed is the failure of a source whose connection was closed before its end.
var ErrConnectionClosed = errors.New("nats connection closed before end of stream")

// Source pushes the payloads of the messages received on a subject.
type Source struct {
	ctx         context.Context
	url         string
	subject     string
	queue       string
	maxMessages int64
	endHeader   string
	natsOptions []natslib.Option
	logger      *zap.SugaredLogger

	lock     *sync.Mutex
	conn     *natslib.Conn
	sub      *natslib.Subscription
	received int64
	finished *atomic.Bool
}

var (
	_ sources.Pusher[[]byte] = (*Source)(nil)
	_ sources.Canceler       = (*Source)(nil)
)

type Option func(*Source) error

// WithQueue subscribes as a member of the queue group
func WithQueue(queue string) Option {
	return func(o *Source) error {
		o.queue = queue
		return nil
	}
}

// WithMaxMessages ends the source after n messages
func WithMaxMessages(n int64) Option {
	return func(o *Source) error {
		if n < 0 {
			return fmt.Errorf("max messages must not be negative, got %d", n)
		}
		o.maxMessages = n
		return nil
	}
}

// WithEndHeader sets the header marking the end of the stream
func WithEndHeader(header string) Option {
	return func(o *Source) error {
		o.endHeader = header
		return nil
	}
}

// WithNatsOptions appends options to the connection, for example credentials or TLS
func WithNatsOptions(opts ...natslib.Option) Option {
	return func(o *Source) error {
		o.natsOptions = append(o.natsOptions, opts...)
		return nil
	}
}

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Source) error {
		o.logger = l
		return nil
	}
}

// New returns a producer of the payloads published on subject. It connects and subscribes when started.
func New(ctx context.Context, url, subject string, opts ...Option) (*Source, error) {
	n := &Source{
		ctx:       ctx,
		url:       url,
		subject:   subject,
		endHeader: DefaultEndHeader,
		logger:    logging.FromContext(ctx),
		lock:      new(sync.Mutex),
		finished:  atomic.NewBool(false),
	}
	for _, o := range opts {
		if err := o(n); err != nil {
			return nil, err
		}
	}
	if subject == "" {
		return nil, fmt.Errorf("nats subject must not be empty")
	}
	n.logger = n.logger.With("subject", subject)
	return n, nil
}

// Descriptor returns a push descriptor over subject. Invalid options yield a source failing with the error.
func Descriptor(ctx context.Context, url, subject string, opts ...Option) sources.Descriptor[[]byte] {
	n, err := New(ctx, url, subject, opts...)
	if err != nil {
		return sources.Failed[[]byte](err)
	}
	return sources.Push[[]byte](n)
}

// Start implements sources.Pusher.
func (n *Source) Start(emitter sources.Emitter[[]byte]) {
	go n.subscribe(emitter)
}

func (n *Source) subscribe(emitter sources.Emitter[[]byte]) {
	opts := append([]natslib.Option{
		natslib.ClosedHandler(func(*natslib.Conn) {
			if !n.finished.Load() {
				metrics.SourceErrorCount.With(map[string]string{metrics.LabelSourceType: "nats"}).Inc()
				emitter.Fail(ErrConnectionClosed)
			}
		}),
	}, n.natsOptions...)
	conn, err := natsclient.NewConn(n.ctx, n.url, opts...)
	if err != nil {
		if !n.finished.Load() {
			emitter.Fail(err)
		}
		return
	}

	n.lock.Lock()
	defer n.lock.Unlock()
	if n.finished.Load() {
		conn.Close()
		return
	}
	n.conn = conn
	handler := func(msg *natslib.Msg) {
		n.onMessage(emitter, msg)
	}
	if n.queue != "" {
		n.sub, err = conn.QueueSubscribe(n.subject, n.queue, handler)
	} else {
		n.sub, err = conn.Subscribe(n.subject, handler)
	}
	if err != nil {
		n.finished.Store(true)
		n.conn = nil
		conn.Close()
		emitter.Fail(fmt.Errorf("failed to subscribe to %q, %w", n.subject, err))
		return
	}
	n.logger.Info("Subscribed to nats subject")
}

// onMessage is called by the subscription, one message at a time.
func (n *Source) onMessage(emitter sources.Emitter[[]byte], msg *natslib.Msg) {
	if n.finished.Load() {
		return
	}
	if n.endHeader != "" && msg.Header.Get(n.endHeader) != "" {
		n.logger.Debug("Received the end of stream")
		n.finish(emitter)
		return
	}
	labels := map[string]string{metrics.LabelSourceType: "nats"}
	metrics.SourceReadCount.With(labels).Inc()
	metrics.SourceReadBytesCount.With(labels).Add(float64(len(msg.Data)))
	if !emitter.Push(msg.Data) {
		return
	}
	n.received++
	if n.maxMessages > 0 && n.received >= n.maxMessages {
		n.logger.Debugw("Received the maximum number of messages", "count", n.received)
		n.finish(emitter)
	}
}

func (n *Source) finish(emitter sources.Emitter[[]byte]) {
	if !n.finished.CompareAndSwap(false, true) {
		return
	}
	emitter.End()
	// the subscription can not be torn down from its own callback
	go n.release()
}

// Cancel implements sources.Canceler.
func (n *Source) Cancel() error {
	n.finished.Store(true)
	return n.release()
}

func (n *Source) release() error {
	n.lock.Lock()
	defer n.lock.Unlock()
	var err error
	if n.sub != nil {
		if err = n.sub.Unsubscribe(); err != nil && !errors.Is(err, natslib.ErrConnectionClosed) {
			n.logger.Errorw("Failed to unsubscribe nats subscription", zap.Error(err))
		}
		n.sub = nil
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	if errors.Is(err, natslib.ErrConnectionClosed) || errors.Is(err, natslib.ErrBadSubscription) {
		return nil
	}
	return err
}
