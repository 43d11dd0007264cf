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

// Package redisstreams provides bounded sources over Redis streams. A source reads the entries present when it
// is activated, from its start id up to the last entry of the stream at that time.
package redisstreams

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/numaproj/multistream/pkg/metrics"
	redisclient "github.com/numaproj/multistream/pkg/shared/clients/redis"
	"github.com/numaproj/multistream/pkg/shared/logging"
	"github.com/numaproj/multistream/pkg/sources"
)

const defaultPageSize = 100

// Source pushes the entries of a stream, serialized as JSON objects of their values, or as the raw value of a
// single field.
type Source struct {
	client   *redisclient.RedisClient
	stream   string
	start    string
	valueKey string
	pageSize int64
	logger   *zap.SugaredLogger
	ctx      context.Context
	cancel   context.CancelFunc
}

var (
	_ sources.Pusher[[]byte] = (*Source)(nil)
	_ sources.Canceler       = (*Source)(nil)
)

type Option func(*Source) error

// WithStart sets the id of the first entry to read
func WithStart(id string) Option {
	return func(o *Source) error {
		o.start = id
		return nil
	}
}

// WithValueKey pushes the raw value of the given field instead of the JSON object of all the values
func WithValueKey(key string) Option {
	return func(o *Source) error {
		o.valueKey = key
		return nil
	}
}

// WithPageSize sets the number of entries fetched per request
func WithPageSize(n int64) Option {
	return func(o *Source) error {
		if n <= 0 {
			return fmt.Errorf("page size must be positive, got %d", n)
		}
		o.pageSize = n
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

// New returns a producer of the entries of stream.
func New(ctx context.Context, client *redisclient.RedisClient, stream string, opts ...Option) (*Source, error) {
	s := &Source{
		client:   client,
		stream:   stream,
		start:    redisclient.StreamStart,
		pageSize: defaultPageSize,
		logger:   logging.FromContext(ctx),
	}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("stream", stream)
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s, nil
}

// Descriptor returns a lazy descriptor over stream: the bounds of the stream are only taken when its turn in
// the chain comes.
func Descriptor(ctx context.Context, client *redisclient.RedisClient, stream string, opts ...Option) sources.Descriptor[[]byte] {
	return sources.Lazy(func() sources.Descriptor[[]byte] {
		s, err := New(ctx, client, stream, opts...)
		if err != nil {
			return sources.Failed[[]byte](err)
		}
		return sources.Push[[]byte](s)
	})
}

// Start implements sources.Pusher.
func (s *Source) Start(emitter sources.Emitter[[]byte]) {
	go s.run(emitter)
}

func (s *Source) run(emitter sources.Emitter[[]byte]) {
	defer s.cancel()
	labels := map[string]string{metrics.LabelSourceType: "redisstreams"}
	fail := func(err error) {
		if s.ctx.Err() != nil {
			return
		}
		metrics.SourceErrorCount.With(labels).Inc()
		s.logger.Errorw("Failed to read the stream", zap.Error(err))
		emitter.Fail(err)
	}

	if err := s.client.Ping(s.ctx); err != nil {
		fail(fmt.Errorf("failed to connect to redis, %w", err))
		return
	}
	last, err := s.client.LastEntryID(s.ctx, s.stream)
	if err != nil {
		fail(fmt.Errorf("failed to get the last entry of %q, %w", s.stream, err))
		return
	}
	if last == "" {
		s.logger.Debug("Stream is empty")
		emitter.End()
		return
	}
	start := s.start
	for {
		entries, err := s.client.StreamRange(s.ctx, s.stream, start, last, s.pageSize)
		if err != nil {
			fail(fmt.Errorf("failed to read %q, %w", s.stream, err))
			return
		}
		if len(entries) == 0 {
			emitter.End()
			return
		}
		for _, entry := range entries {
			payload, err := produceMsg(entry, s.valueKey)
			if err != nil {
				fail(err)
				return
			}
			metrics.SourceReadCount.With(labels).Inc()
			metrics.SourceReadBytesCount.With(labels).Add(float64(len(payload)))
			if !emitter.Push(payload) {
				return
			}
			if entry.ID == last {
				emitter.End()
				return
			}
		}
		start = redisclient.ExclusiveStart(entries[len(entries)-1].ID)
	}
}

// Cancel implements sources.Canceler. A pending request is aborted.
func (s *Source) Cancel() error {
	s.cancel()
	return nil
}

// produceMsg serializes an entry, either its values as a JSON object or the value of valueKey.
func produceMsg(msg redis.XMessage, valueKey string) ([]byte, error) {
	if valueKey == "" {
		payload, err := json.Marshal(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to json serialize RedisStream values: %v; msg=%+v", err, msg)
		}
		return payload, nil
	}
	v, ok := msg.Values[valueKey]
	if !ok {
		return nil, fmt.Errorf("entry %s has no field %q", msg.ID, valueKey)
	}
	switch w := v.(type) {
	case string:
		return []byte(w), nil
	case []byte:
		return w, nil
	default:
		return []byte(fmt.Sprintf("%v", w)), nil
	}
}
