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
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/numaproj/multistream/pkg/sequencer"
)

const testConfig = `
name: orders
objectMode: true
highWaterMark: 4
recover: sprig.contains("no such file", error)
redis:
  password: secret
kafka:
  brokers:
    - localhost:9092
sources:
  - file: /tmp/orders-1.log
  - stdin: true
  - http:
      url: http://localhost:8080/orders
      headers:
        authorization: token
  - nats:
      url: nats://localhost:4222
      subject: orders
      maxMessages: 10
  - redis:
      stream: orders
      pageSize: 50
  - kafka:
      topic: orders
      partition: 2
      endOffset: 100
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	conf, err := LoadConfig(writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, "orders", conf.Name)
	assert.True(t, conf.ObjectMode)
	assert.Equal(t, 4, conf.HighWaterMark)
	assert.Equal(t, defaultChunkSize, conf.ChunkSize)
	require.NotNil(t, conf.Metrics)
	assert.Equal(t, 9090, conf.Metrics.Port)
	assert.False(t, conf.Metrics.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, conf.Kafka.Brokers)

	require.Len(t, conf.Sources, 6)
	kinds := make([]string, 0, len(conf.Sources))
	for _, s := range conf.Sources {
		kinds = append(kinds, s.Kind())
	}
	assert.Equal(t, []string{"file", "stdin", "http", "nats", "redis", "kafka"}, kinds)
	assert.Equal(t, "token", conf.Sources[2].HTTP.Headers["authorization"])
	assert.Equal(t, int64(10), conf.Sources[3].NATS.MaxMessages)
	assert.Equal(t, int64(50), conf.Sources[4].Redis.PageSize)
	assert.Equal(t, int32(2), conf.Sources[5].Kafka.Partition)
	require.NotNil(t, conf.Sources[5].Kafka.EndOffset)
	assert.Equal(t, int64(100), *conf.Sources[5].Kafka.EndOffset)
	assert.Nil(t, conf.Sources[5].Kafka.StartOffset)
	assert.NoError(t, conf.Validate())

	handler, err := conf.ErrorHandler()
	require.NoError(t, err)
	assert.True(t, handler(errors.New("open /tmp/x: no such file or directory")))
	assert.False(t, handler(errors.New("permission denied")))
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWithDefaults(t *testing.T) {
	conf := &Config{Name: "mine", Sources: []Source{{File: "a"}}}
	require.NoError(t, conf.WithDefaults())
	assert.Equal(t, "mine", conf.Name)
	assert.Equal(t, defaultChunkSize, conf.ChunkSize)
	assert.Equal(t, []string{defaultRedisAddr}, conf.Redis.Addrs)
	assert.Len(t, conf.Sources, 1)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		conf    Config
		wantErr string
	}{
		{name: "no sources", conf: Config{}, wantErr: "no source configured"},
		{name: "empty source", conf: Config{Sources: []Source{{}}}, wantErr: "exactly one of"},
		{name: "two kinds", conf: Config{Sources: []Source{{File: "a", Stdin: true}}}, wantErr: "exactly one of"},
		{name: "two stdin", conf: Config{Sources: []Source{{Stdin: true}, {Stdin: true}}}, wantErr: "stdin can only be read once"},
		{name: "http url", conf: Config{Sources: []Source{{HTTP: &HTTPSource{}}}}, wantErr: "http url is required"},
		{name: "nats subject", conf: Config{Sources: []Source{{NATS: &NATSSource{URL: "nats://localhost"}}}}, wantErr: "nats url and subject"},
		{name: "redis stream", conf: Config{Sources: []Source{{Redis: &RedisSource{}}}}, wantErr: "redis stream is required"},
		{name: "kafka brokers", conf: Config{Sources: []Source{{Kafka: &KafkaSource{Topic: "t", EndOffset: ptr.To[int64](1)}}}}, wantErr: "kafka brokers are required"},
		{name: "kafka negative end", conf: Config{Sources: []Source{{Kafka: &KafkaSource{Topic: "t", Brokers: []string{"b:9092"}, EndOffset: ptr.To[int64](-1)}}}}, wantErr: "end offset must not be negative"},
		{name: "kafka start after end", conf: Config{Sources: []Source{{Kafka: &KafkaSource{Topic: "t", Brokers: []string{"b:9092"}, StartOffset: ptr.To[int64](5), EndOffset: ptr.To[int64](2)}}}}, wantErr: "is after the end offset"},
		{name: "high water mark", conf: Config{HighWaterMark: -1, Sources: []Source{{File: "a"}}}, wantErr: "high water mark"},
		{name: "recover", conf: Config{Recover: "error ==", Sources: []Source{{File: "a"}}}, wantErr: "invalid recover expression"},
		{name: "valid", conf: Config{Sources: []Source{{File: "a"}, {Kafka: &KafkaSource{Topic: "t", Brokers: []string{"b:9092"}, StartOffset: ptr.To[int64](-2)}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conf.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSourcesFromArgs(t *testing.T) {
	got, err := SourcesFromArgs([]string{
		"-",
		"a.txt",
		"file:///tmp/b.txt",
		"https://example.com/data?x=1",
		"nats://localhost:4222/orders.created?max=5&queue=q",
		"redis://localhost:6379/events?start=0-1&key=payload&page=10",
		"kafka://localhost:9092/orders?partition=3&start=5&end=10",
	})
	require.NoError(t, err)
	require.Len(t, got, 7)
	assert.True(t, got[0].Stdin)
	assert.Equal(t, "a.txt", got[1].File)
	assert.Equal(t, "/tmp/b.txt", got[2].File)
	assert.Equal(t, "https://example.com/data?x=1", got[3].HTTP.URL)
	assert.Equal(t, &NATSSource{URL: "nats://localhost:4222", Subject: "orders.created", Queue: "q", MaxMessages: 5}, got[4].NATS)
	assert.Equal(t, &RedisSource{Addr: "localhost:6379", Stream: "events", Start: "0-1", ValueKey: "payload", PageSize: 10}, got[5].Redis)
	k := got[6].Kafka
	assert.Equal(t, []string{"localhost:9092"}, k.Brokers)
	assert.Equal(t, "orders", k.Topic)
	assert.Equal(t, int32(3), k.Partition)
	require.NotNil(t, k.StartOffset)
	require.NotNil(t, k.EndOffset)
	assert.Equal(t, int64(5), *k.StartOffset)
	assert.Equal(t, int64(10), *k.EndOffset)

	_, err = SourcesFromArgs([]string{"ftp://example.com/a"})
	assert.ErrorContains(t, err, "unsupported scheme")
	_, err = SourcesFromArgs([]string{"nats://localhost/s?max=abc"})
	assert.ErrorContains(t, err, "invalid max")
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i, content := range []string{"one\n", "two\n"} {
		path := filepath.Join(dir, []string{"a", "b"}[i])
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		paths = append(paths, path)
	}
	conf := &Config{
		Sources: []Source{{File: paths[0]}, {Stdin: true}, {File: paths[1]}},
	}
	require.NoError(t, conf.WithDefaults())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	chain, err := conf.Build(ctx, strings.NewReader("stdin\n"))
	require.NoError(t, err)
	defer func() { assert.NoError(t, chain.Close()) }()
	require.Len(t, chain.Descriptors, 3)

	seq, err := sequencer.NewBytes(ctx, sequencer.List(chain.Descriptors...), chain.Options...)
	require.NoError(t, err)
	assert.Equal(t, defaultName, seq.Name())
	out, err := io.ReadAll(sequencer.NewReader(ctx, seq))
	require.NoError(t, err)
	assert.Equal(t, "one\nstdin\ntwo\n", string(out))
}

func TestBuild_RecoverMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0600))
	conf := &Config{
		Recover: `sprig.contains("no such file", error)`,
		Sources: []Source{{File: filepath.Join(t.TempDir(), "missing")}, {File: path}},
	}
	ctx := context.Background()
	chain, err := conf.Build(ctx, nil)
	require.NoError(t, err)
	seq, err := sequencer.NewBytes(ctx, sequencer.List(chain.Descriptors...), chain.Options...)
	require.NoError(t, err)
	out, err := io.ReadAll(sequencer.NewReader(ctx, seq))
	require.NoError(t, err)
	assert.Equal(t, "a", string(out))
}

func TestBuild_LazyClients(t *testing.T) {
	conf := &Config{
		Redis: &RedisConfig{Addrs: []string{"localhost:6379"}},
		Sources: []Source{
			{Redis: &RedisSource{Stream: "a"}},
			{Redis: &RedisSource{Stream: "b"}},
			{Redis: &RedisSource{Stream: "c", Addr: "other:6379"}},
			{Kafka: &KafkaSource{Topic: "t", Brokers: []string{"localhost:9092"}, EndOffset: ptr.To[int64](10)}},
		},
	}
	chain, err := conf.Build(context.Background(), nil)
	require.NoError(t, err)
	for _, d := range chain.Descriptors {
		// nothing connects before the source is activated
		assert.True(t, d.IsLazy())
	}
	assert.Len(t, chain.redis, 2)
	assert.NoError(t, chain.Close())
}

func TestBuild_Invalid(t *testing.T) {
	_, err := (&Config{}).Build(context.Background(), nil)
	assert.Error(t, err)
}
