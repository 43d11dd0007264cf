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

package config

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/numaproj/multistream/pkg/sequencer"
	redisclient "github.com/numaproj/multistream/pkg/shared/clients/redis"
	"github.com/numaproj/multistream/pkg/shared/logging"
	"github.com/numaproj/multistream/pkg/sources"
	"github.com/numaproj/multistream/pkg/sources/file"
	httpsource "github.com/numaproj/multistream/pkg/sources/http"
	"github.com/numaproj/multistream/pkg/sources/kafka"
	natssource "github.com/numaproj/multistream/pkg/sources/nats"
	"github.com/numaproj/multistream/pkg/sources/reader"
	"github.com/numaproj/multistream/pkg/sources/redisstreams"
)

// Chain is a config turned into the arguments of a sequencer. Close releases the clients shared by its
// sources once the sequencer is done.
type Chain struct {
	Descriptors []sources.Descriptor[[]byte]
	Options     []sequencer.Option

	lock    *sync.Mutex
	closers []func() error
	redis   map[string]*redisclient.RedisClient
}

// Build validates c and creates the descriptors of its sources. stdin is read by the stdin source.
func (c *Config) Build(ctx context.Context, stdin io.Reader) (*Chain, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	handler, err := c.ErrorHandler()
	if err != nil {
		return nil, err
	}
	ch := &Chain{
		lock:  new(sync.Mutex),
		redis: make(map[string]*redisclient.RedisClient),
	}
	ch.Options = append(ch.Options, sequencer.WithObjectMode(c.ObjectMode))
	if c.Name != "" {
		ch.Options = append(ch.Options, sequencer.WithName(c.Name))
	}
	if c.HighWaterMark > 0 {
		ch.Options = append(ch.Options, sequencer.WithHighWaterMark(c.HighWaterMark))
	}
	if handler != nil {
		ch.Options = append(ch.Options, sequencer.WithErrorHandler(handler))
	}

	var readerOpts []reader.Option
	if c.ChunkSize > 0 {
		readerOpts = append(readerOpts, reader.WithChunkSize(c.ChunkSize))
	}
	for _, s := range c.Sources {
		var d sources.Descriptor[[]byte]
		switch s.Kind() {
		case "file":
			d = file.New(ctx, s.File, readerOpts...)
		case "stdin":
			// stdin is not ours to close
			d = reader.Descriptor(ctx, io.NopCloser(stdin), append(readerOpts, reader.WithSourceType("stdin"))...)
		case "http":
			opts := []httpsource.Option{}
			if c.ChunkSize > 0 {
				opts = append(opts, httpsource.WithChunkSize(c.ChunkSize))
			}
			for k, v := range s.HTTP.Headers {
				opts = append(opts, httpsource.WithHeader(k, v))
			}
			d = httpsource.New(ctx, s.HTTP.URL, opts...)
		case "nats":
			d = c.natsDescriptor(ctx, s.NATS)
		case "redis":
			d = redisstreams.Descriptor(ctx, ch.redisClient(c.Redis, s.Redis.Addr), s.Redis.Stream, redisOptions(s.Redis)...)
		case "kafka":
			d = ch.kafkaDescriptor(ctx, c.Kafka, s.Kafka)
		}
		ch.Descriptors = append(ch.Descriptors, d)
	}
	return ch, nil
}

func (c *Config) natsDescriptor(ctx context.Context, s *NATSSource) sources.Descriptor[[]byte] {
	var opts []natssource.Option
	if s.Queue != "" {
		opts = append(opts, natssource.WithQueue(s.Queue))
	}
	if s.MaxMessages > 0 {
		opts = append(opts, natssource.WithMaxMessages(s.MaxMessages))
	}
	if s.EndHeader != "" {
		opts = append(opts, natssource.WithEndHeader(s.EndHeader))
	}
	return natssource.Descriptor(ctx, s.URL, s.Subject, opts...)
}

func redisOptions(s *RedisSource) []redisstreams.Option {
	var opts []redisstreams.Option
	if s.Start != "" {
		opts = append(opts, redisstreams.WithStart(s.Start))
	}
	if s.ValueKey != "" {
		opts = append(opts, redisstreams.WithValueKey(s.ValueKey))
	}
	if s.PageSize > 0 {
		opts = append(opts, redisstreams.WithPageSize(s.PageSize))
	}
	return opts
}

// redisClient returns the client of addr, or of the shared connection when addr is empty. Clients are shared
// by the sources of the same address.
func (ch *Chain) redisClient(shared *RedisConfig, addr string) *redisclient.RedisClient {
	opts := &redis.UniversalOptions{}
	if shared != nil {
		opts.Addrs = shared.Addrs
		opts.Password = shared.Password
		opts.DB = shared.DB
	}
	if addr != "" {
		opts.Addrs = []string{addr}
	}
	if len(opts.Addrs) == 0 {
		opts.Addrs = []string{defaultRedisAddr}
	}
	key := strings.Join(opts.Addrs, ",")
	if cl, ok := ch.redis[key]; ok {
		return cl
	}
	cl := redisclient.NewRedisClient(opts)
	ch.redis[key] = cl
	ch.addCloser(cl.Close)
	return cl
}

// kafkaDescriptor connects to the brokers only when the partition becomes the current source.
func (ch *Chain) kafkaDescriptor(ctx context.Context, shared *KafkaConfig, s *KafkaSource) sources.Descriptor[[]byte] {
	brokers := s.Brokers
	var saramaConfig string
	if shared != nil {
		if len(brokers) == 0 {
			brokers = shared.Brokers
		}
		saramaConfig = shared.Config
	}
	return sources.Lazy(func() sources.Descriptor[[]byte] {
		client, consumer, err := kafka.Connect(brokers, saramaConfig)
		if err != nil {
			return sources.Failed[[]byte](err)
		}
		ch.addCloser(consumer.Close, client.Close)
		opts := []kafka.Option{kafka.WithClient(client), kafka.WithLogger(logging.FromContext(ctx))}
		if s.StartOffset != nil {
			opts = append(opts, kafka.WithStartOffset(*s.StartOffset))
		}
		if s.EndOffset != nil {
			opts = append(opts, kafka.WithEndOffset(*s.EndOffset))
		}
		return kafka.Descriptor(ctx, consumer, s.Topic, s.Partition, opts...)
	})
}

func (ch *Chain) addCloser(fns ...func() error) {
	ch.lock.Lock()
	defer ch.lock.Unlock()
	ch.closers = append(ch.closers, fns...)
}

// Close releases the shared clients in reverse order of creation.
func (ch *Chain) Close() error {
	ch.lock.Lock()
	closers := ch.closers
	ch.closers = nil
	ch.lock.Unlock()
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i]())
	}
	if err != nil {
		return fmt.Errorf("failed to close the clients of the chain, %w", err)
	}
	return nil
}
