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

package redis

import (
	"context"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	sharedutil "github.com/numaproj/multistream/pkg/shared/util"
)

const (
	EnvRedisURL         = "MULTISTREAM_REDIS_URL"
	EnvRedisUser        = "MULTISTREAM_REDIS_USER"
	EnvRedisPassword    = "MULTISTREAM_REDIS_PASSWORD"
	EnvSentinelMaster   = "MULTISTREAM_REDIS_SENTINEL_MASTER"
	EnvSentinelPassword = "MULTISTREAM_REDIS_SENTINEL_PASSWORD"

	// StreamStart and StreamEnd are the smallest and greatest possible ids of a stream
	StreamStart = "-"
	StreamEnd   = "+"
)

// RedisClient datatype to hold redis client attributes.
type RedisClient struct {
	Client redis.UniversalClient
}

// NewRedisClient returns a new Redis Client.
func NewRedisClient(options *redis.UniversalOptions) *RedisClient {
	client := new(RedisClient)
	client.Client = redis.NewUniversalClient(options)
	return client
}

// OptionsFromEnv builds the client options from the environment. The url variable holds a comma separated
// list of addresses, of sentinels when a sentinel master is set.
func OptionsFromEnv() *redis.UniversalOptions {
	opts := &redis.UniversalOptions{
		Username:     os.Getenv(EnvRedisUser),
		Password:     os.Getenv(EnvRedisPassword),
		MasterName:   os.Getenv(EnvSentinelMaster),
		MaxRedirects: 3,
	}
	if urls := sharedutil.LookupEnvStringOr(EnvRedisURL, "localhost:6379"); urls != "" {
		opts.Addrs = strings.Split(urls, ",")
	}
	if opts.MasterName != "" {
		opts.SentinelPassword = os.Getenv(EnvSentinelPassword)
	}
	return opts
}

// Ping checks the server is reachable, retrying with the default backoff.
func (cl *RedisClient) Ping(ctx context.Context) error {
	return sharedutil.Retry(ctx, sharedutil.DefaultRetryBackoff, "redis ping", func() error {
		return cl.Client.Ping(ctx).Err()
	})
}

// LastEntryID returns the id of the last entry of the stream, or an empty string when the stream is empty or
// does not exist.
func (cl *RedisClient) LastEntryID(ctx context.Context, stream string) (string, error) {
	entries, err := cl.Client.XRevRangeN(ctx, stream, StreamEnd, StreamStart, 1).Result()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[0].ID, nil
}

// StreamRange returns up to count entries of the stream between start and end, both inclusive.
func (cl *RedisClient) StreamRange(ctx context.Context, stream, start, end string, count int64) ([]redis.XMessage, error) {
	return cl.Client.XRangeN(ctx, stream, start, end, count).Result()
}

// AddEntry appends an entry to the stream and returns its id.
func (cl *RedisClient) AddEntry(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	return cl.Client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
}

// DeleteKeys deletes a redis keys
func (cl *RedisClient) DeleteKeys(ctx context.Context, keys ...string) error {
	return cl.Client.Del(ctx, keys...).Err()
}

// Close closes the client.
func (cl *RedisClient) Close() error {
	return cl.Client.Close()
}

// ExclusiveStart returns the smallest id greater than id, the start of a range that begins right after it.
// Malformed ids fall back to the "(" prefix, which needs redis 6.2.
func ExclusiveStart(id string) string {
	ms, seq, found := strings.Cut(id, "-")
	if !found {
		return "(" + id
	}
	m, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return "(" + id
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return "(" + id
	}
	if n == math.MaxUint64 {
		return strconv.FormatUint(m+1, 10) + "-0"
	}
	return ms + "-" + strconv.FormatUint(n+1, 10)
}
