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
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/imdario/mergo"
	"github.com/spf13/viper"
	"k8s.io/utils/ptr"

	"github.com/numaproj/multistream/pkg/metrics"
)

const (
	defaultName      = "cat"
	defaultChunkSize = 16 * 1024
	defaultRedisAddr = "localhost:6379"
)

// Config describes a chain: the sources in order and how they are sequenced.
type Config struct {
	// Name identifies the chain in logs and metrics
	Name string `json:"name"`
	// ObjectMode forwards discrete records, one per line on output
	ObjectMode bool `json:"objectMode"`
	// HighWaterMark is counted in records in object mode, in bytes otherwise
	HighWaterMark int `json:"highWaterMark"`
	// ChunkSize is the size of the chunks read from files, stdin and http bodies
	ChunkSize int `json:"chunkSize"`
	// Recover is a boolean expression evaluated against every source error, a source is skipped when it is true
	Recover string         `json:"recover"`
	Metrics *MetricsConfig `json:"metrics"`
	Redis   *RedisConfig   `json:"redis"`
	Kafka   *KafkaConfig   `json:"kafka"`
	Sources []Source       `json:"sources"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// RedisConfig is the connection shared by the redis sources without an address of their own.
type RedisConfig struct {
	Addrs    []string `json:"addrs"`
	Password string   `json:"password"`
	DB       int      `json:"db"`
}

// KafkaConfig is the connection shared by the kafka sources without brokers of their own.
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	// Config is a sarama config in yaml
	Config string `json:"config"`
}

// Source describes one source of the chain, exactly one of its fields must be set.
type Source struct {
	File  string       `json:"file,omitempty"`
	Stdin bool         `json:"stdin,omitempty"`
	HTTP  *HTTPSource  `json:"http,omitempty"`
	NATS  *NATSSource  `json:"nats,omitempty"`
	Redis *RedisSource `json:"redis,omitempty"`
	Kafka *KafkaSource `json:"kafka,omitempty"`
}

type HTTPSource struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

type NATSSource struct {
	URL     string `json:"url"`
	Subject string `json:"subject"`
	Queue   string `json:"queue,omitempty"`
	// MaxMessages ends the source after that many messages, 0 waits for the end header
	MaxMessages int64  `json:"maxMessages,omitempty"`
	EndHeader   string `json:"endHeader,omitempty"`
}

type RedisSource struct {
	// Addr overrides the shared redis connection
	Addr     string `json:"addr,omitempty"`
	Stream   string `json:"stream"`
	Start    string `json:"start,omitempty"`
	ValueKey string `json:"valueKey,omitempty"`
	PageSize int64  `json:"pageSize,omitempty"`
}

type KafkaSource struct {
	// Brokers override the shared kafka connection
	Brokers     []string `json:"brokers,omitempty"`
	Topic       string   `json:"topic"`
	Partition   int32    `json:"partition"`
	StartOffset *int64   `json:"startOffset,omitempty"`
	// EndOffset is exclusive, the high-water mark of the partition at activation is used when unset
	EndOffset *int64 `json:"endOffset,omitempty"`
}

// Kind returns the type of the source, or an empty string when it is not exactly one.
func (s Source) Kind() string {
	var kinds []string
	if s.File != "" {
		kinds = append(kinds, "file")
	}
	if s.Stdin {
		kinds = append(kinds, "stdin")
	}
	if s.HTTP != nil {
		kinds = append(kinds, "http")
	}
	if s.NATS != nil {
		kinds = append(kinds, "nats")
	}
	if s.Redis != nil {
		kinds = append(kinds, "redis")
	}
	if s.Kafka != nil {
		kinds = append(kinds, "kafka")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// DefaultConfig returns the values used for everything a loaded config leaves unset.
func DefaultConfig() *Config {
	return &Config{
		Name:      defaultName,
		ChunkSize: defaultChunkSize,
		Metrics:   &MetricsConfig{Port: metrics.DefaultMetricsPort},
		Redis:     &RedisConfig{Addrs: []string{defaultRedisAddr}},
		Kafka:     &KafkaConfig{},
	}
}

// LoadConfig reads the yaml file at path and fills the unset fields with the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration file. %w", err)
	}
	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("failed unmarshal configuration file. %w", err)
	}
	if err := conf.WithDefaults(); err != nil {
		return nil, err
	}
	return conf, nil
}

// WithDefaults fills the unset fields of c with DefaultConfig.
func (c *Config) WithDefaults() error {
	if err := mergo.Merge(c, DefaultConfig()); err != nil {
		return fmt.Errorf("failed to merge the default configuration, %w", err)
	}
	return nil
}

// Validate checks the sources and compiles the recovery expression.
func (c *Config) Validate() error {
	if c.HighWaterMark < 0 {
		return fmt.Errorf("high water mark must not be negative, got %d", c.HighWaterMark)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk size must not be negative, got %d", c.ChunkSize)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("no source configured")
	}
	stdin := 0
	for i, s := range c.Sources {
		switch s.Kind() {
		case "":
			return fmt.Errorf("source %d: exactly one of file, stdin, http, nats, redis or kafka is required", i)
		case "stdin":
			stdin++
		case "http":
			if s.HTTP.URL == "" {
				return fmt.Errorf("source %d: http url is required", i)
			}
		case "nats":
			if s.NATS.URL == "" || s.NATS.Subject == "" {
				return fmt.Errorf("source %d: nats url and subject are required", i)
			}
		case "redis":
			if s.Redis.Stream == "" {
				return fmt.Errorf("source %d: redis stream is required", i)
			}
		case "kafka":
			if s.Kafka.Topic == "" {
				return fmt.Errorf("source %d: kafka topic is required", i)
			}
			if len(s.Kafka.Brokers) == 0 && (c.Kafka == nil || len(c.Kafka.Brokers) == 0) {
				return fmt.Errorf("source %d: kafka brokers are required", i)
			}
			if end := ptr.Deref(s.Kafka.EndOffset, 0); end < 0 {
				return fmt.Errorf("source %d: kafka end offset must not be negative, got %d", i, end)
			}
			if s.Kafka.StartOffset != nil && s.Kafka.EndOffset != nil && *s.Kafka.StartOffset > *s.Kafka.EndOffset {
				return fmt.Errorf("source %d: kafka start offset %d is after the end offset %d", i, *s.Kafka.StartOffset, *s.Kafka.EndOffset)
			}
		}
	}
	if stdin > 1 {
		return fmt.Errorf("stdin can only be read once")
	}
	if _, err := c.ErrorHandler(); err != nil {
		return err
	}
	return nil
}

// ErrorHandler returns the predicate compiled from Recover, nil when no expression is configured.
func (c *Config) ErrorHandler() (func(error) bool, error) {
	p, err := compileRecover(c.Recover)
	if err != nil || p == nil {
		return nil, err
	}
	return p.Match, nil
}

// SourcesFromArgs parses command line arguments into sources:
//
//	-                                   stdin
//	http(s)://...                       http GET
//	nats://host:port/subject?max=N      nats subscription, optional queue and end parameters
//	redis://host:port/stream?start=ID   redis stream
//	kafka://broker/topic?partition=N    kafka partition, optional start and end offsets
//
// Anything else is a file path.
func SourcesFromArgs(args []string) ([]Source, error) {
	var result []Source
	for _, arg := range args {
		s, err := sourceFromArg(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid source %q, %w", arg, err)
		}
		result = append(result, s)
	}
	return result, nil
}

func sourceFromArg(arg string) (Source, error) {
	if arg == "-" {
		return Source{Stdin: true}, nil
	}
	scheme, _, found := strings.Cut(arg, "://")
	if !found {
		return Source{File: arg}, nil
	}
	u, err := url.Parse(arg)
	if err != nil {
		return Source{}, err
	}
	q := u.Query()
	name := strings.TrimPrefix(u.Path, "/")
	switch strings.ToLower(scheme) {
	case "http", "https":
		return Source{HTTP: &HTTPSource{URL: arg}}, nil
	case "file":
		return Source{File: u.Path}, nil
	case "nats":
		s := &NATSSource{
			URL:       (&url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host}).String(),
			Subject:   name,
			Queue:     q.Get("queue"),
			EndHeader: q.Get("end"),
		}
		if s.MaxMessages, err = int64Param(q, "max", 0); err != nil {
			return Source{}, err
		}
		return Source{NATS: s}, nil
	case "redis":
		s := &RedisSource{
			Addr:     u.Host,
			Stream:   name,
			Start:    q.Get("start"),
			ValueKey: q.Get("key"),
		}
		if s.PageSize, err = int64Param(q, "page", 0); err != nil {
			return Source{}, err
		}
		return Source{Redis: s}, nil
	case "kafka":
		s := &KafkaSource{Topic: name}
		if u.Host != "" {
			s.Brokers = strings.Split(u.Host, ",")
		}
		partition, err := int64Param(q, "partition", 0)
		if err != nil {
			return Source{}, err
		}
		s.Partition = int32(partition)
		for key, target := range map[string]**int64{"start": &s.StartOffset, "end": &s.EndOffset} {
			if !q.Has(key) {
				continue
			}
			v, err := int64Param(q, key, 0)
			if err != nil {
				return Source{}, err
			}
			*target = ptr.To(v)
		}
		return Source{Kafka: s}, nil
	default:
		return Source{}, fmt.Errorf("unsupported scheme %q", scheme)
	}
}

func int64Param(q url.Values, key string, defaultValue int64) (int64, error) {
	v := q.Get(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}
