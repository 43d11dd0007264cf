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

// Package kafka provides bounded sources over Kafka partitions. A source reads a partition from its start
// offset up to the high-water mark the partition had when the source was activated.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/numaproj/multistream/pkg/metrics"
	"github.com/numaproj/multistream/pkg/shared/logging"
	sharedutil "github.com/numaproj/multistream/pkg/shared/util"
	"github.com/numaproj/multistream/pkg/sources"
)

// ErrPartitionClosed is the failure of a source whose partition consumer stopped before the end offset.
var ErrPartitionClosed = errors.New("kafka partition consumer closed before the end offset")

// Source pushes the values of the messages of one partition.
type Source struct {
	consumer    sarama.Consumer
	client      sarama.Client
	topic       string
	partition   int32
	startOffset int64
	// endOffset is exclusive, -1 until known
	endOffset int64
	logger    *zap.SugaredLogger
	closing   chan struct{}
	closeOnce sync.Once
}

var (
	_ sources.Pusher[[]byte] = (*Source)(nil)
	_ sources.Canceler       = (*Source)(nil)
)

type Option func(*Source) error

// WithClient sets the client used to look the offsets of the partition up
func WithClient(c sarama.Client) Option {
	return func(o *Source) error {
		o.client = c
		return nil
	}
}

// WithStartOffset sets the offset of the first message, sarama.OffsetOldest by default
func WithStartOffset(offset int64) Option {
	return func(o *Source) error {
		o.startOffset = offset
		return nil
	}
}

// WithEndOffset sets the exclusive end offset instead of looking the high-water mark up
func WithEndOffset(offset int64) Option {
	return func(o *Source) error {
		if offset < 0 {
			return fmt.Errorf("end offset must not be negative, got %d", offset)
		}
		o.endOffset = offset
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

// New returns a producer of the partition. Without WithEndOffset, a client must be given with WithClient.
func New(ctx context.Context, consumer sarama.Consumer, topic string, partition int32, opts ...Option) (*Source, error) {
	s := &Source{
		consumer:    consumer,
		topic:       topic,
		partition:   partition,
		startOffset: sarama.OffsetOldest,
		endOffset:   -1,
		logger:      logging.FromContext(ctx),
		closing:     make(chan struct{}),
	}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	if s.endOffset < 0 && s.client == nil {
		return nil, fmt.Errorf("either an end offset or a client is required")
	}
	s.logger = s.logger.With("topic", topic, "partition", partition)
	return s, nil
}

// Descriptor returns a lazy descriptor over the partition: its end offset is only taken when its turn in the
// chain comes.
func Descriptor(ctx context.Context, consumer sarama.Consumer, topic string, partition int32, opts ...Option) sources.Descriptor[[]byte] {
	return sources.Lazy(func() sources.Descriptor[[]byte] {
		s, err := New(ctx, consumer, topic, partition, opts...)
		if err != nil {
			return sources.Failed[[]byte](err)
		}
		return sources.Push[[]byte](s)
	})
}

// Connect creates a client and a consumer sharing it. The config is parsed from yaml, see
// util.SaramaConfigFromYAML.
func Connect(brokers []string, configYAML string) (sarama.Client, sarama.Consumer, error) {
	config, err := sharedutil.SaramaConfigFromYAML(configYAML)
	if err != nil {
		return nil, nil, err
	}
	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kafka client, %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to create kafka consumer, %w", err)
	}
	return client, consumer, nil
}

// Start implements sources.Pusher.
func (s *Source) Start(emitter sources.Emitter[[]byte]) {
	go s.run(emitter)
}

func (s *Source) run(emitter sources.Emitter[[]byte]) {
	labels := map[string]string{metrics.LabelSourceType: "kafka"}
	fail := func(err error) {
		metrics.SourceErrorCount.With(labels).Inc()
		s.logger.Errorw("Failed to read the partition", zap.Error(err))
		emitter.Fail(err)
	}

	end := s.endOffset
	if end < 0 {
		var err error
		if end, err = s.client.GetOffset(s.topic, s.partition, sarama.OffsetNewest); err != nil {
			fail(fmt.Errorf("failed to get the newest offset of %s/%d, %w", s.topic, s.partition, err))
			return
		}
	}
	start, err := s.resolveStart(end)
	if err != nil {
		fail(err)
		return
	}
	if end == 0 || start == sarama.OffsetNewest || (start >= 0 && start >= end) {
		s.logger.Debugw("Nothing to read", "start", start, "end", end)
		emitter.End()
		return
	}

	pc, err := s.consumer.ConsumePartition(s.topic, s.partition, start)
	if err != nil {
		fail(fmt.Errorf("failed to consume %s/%d, %w", s.topic, s.partition, err))
		return
	}
	defer func() {
		if err := pc.Close(); err != nil {
			s.logger.Warnw("Failed to close the partition consumer", zap.Error(err))
		}
	}()
	for {
		select {
		case <-s.closing:
			return
		case err, ok := <-pc.Errors():
			if !ok {
				fail(ErrPartitionClosed)
				return
			}
			fail(err)
			return
		case msg, ok := <-pc.Messages():
			if !ok {
				fail(ErrPartitionClosed)
				return
			}
			metrics.SourceReadCount.With(labels).Inc()
			metrics.SourceReadBytesCount.With(labels).Add(float64(len(msg.Value)))
			if !emitter.Push(msg.Value) {
				return
			}
			if msg.Offset >= end-1 {
				emitter.End()
				return
			}
		}
	}
}

// resolveStart turns the start offset into an absolute one when a client is available. Records below the oldest
// offset are gone, so a start before it moves up to it.
func (s *Source) resolveStart(end int64) (int64, error) {
	if s.client == nil || s.startOffset == sarama.OffsetNewest {
		return s.startOffset, nil
	}
	oldest, err := s.client.GetOffset(s.topic, s.partition, sarama.OffsetOldest)
	if err != nil {
		return 0, fmt.Errorf("failed to get the oldest offset of %s/%d, %w", s.topic, s.partition, err)
	}
	if s.startOffset >= 0 && s.startOffset >= oldest {
		return s.startOffset, nil
	}
	if s.startOffset >= 0 {
		s.logger.Warnw("Start offset is no longer retained, reading from the oldest one", "start", s.startOffset, "oldest", oldest, "end", end)
	}
	return oldest, nil
}

// Cancel implements sources.Canceler.
func (s *Source) Cancel() error {
	s.closeOnce.Do(func() { close(s.closing) })
	return nil
}
