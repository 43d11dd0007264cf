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

// Package http provides lazy sources streaming the body of an HTTP GET response.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/numaproj/multistream/pkg/shared/logging"
	"github.com/numaproj/multistream/pkg/sources"
	"github.com/numaproj/multistream/pkg/sources/reader"
)

type httpSource struct {
	url       string
	client    *http.Client
	header    http.Header
	chunkSize int
}

type Option func(*httpSource) error

// WithClient sets the client the request is sent with
func WithClient(c *http.Client) Option {
	return func(o *httpSource) error {
		if c == nil {
			return fmt.Errorf("http client must not be nil")
		}
		o.client = c
		return nil
	}
}

// WithHeader adds a request header
func WithHeader(key, value string) Option {
	return func(o *httpSource) error {
		o.header.Add(key, value)
		return nil
	}
}

// WithChunkSize sets the maximum size of the chunks read from the body
func WithChunkSize(n int) Option {
	return func(o *httpSource) error {
		o.chunkSize = n
		return nil
	}
}

// New returns a lazy descriptor fetching url when its turn in the chain comes. A request error or a non 2xx
// status fails the source. Cancelling the source aborts the request and closes the body.
func New(ctx context.Context, url string, opts ...Option) sources.Descriptor[[]byte] {
	h := &httpSource{
		url:    url,
		client: http.DefaultClient,
		header: make(http.Header),
	}
	for _, o := range opts {
		if err := o(h); err != nil {
			return sources.Failed[[]byte](err)
		}
	}
	return sources.Lazy(func() sources.Descriptor[[]byte] {
		return h.open(ctx)
	})
}

func (h *httpSource) open(ctx context.Context) sources.Descriptor[[]byte] {
	log := logging.FromContext(ctx).With("url", h.url)
	rctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(rctx, http.MethodGet, h.url, nil)
	if err != nil {
		cancel()
		return sources.Failed[[]byte](fmt.Errorf("failed to build the request, %w", err))
	}
	req.Header = h.header.Clone()
	resp, err := h.client.Do(req)
	if err != nil {
		cancel()
		return sources.Failed[[]byte](fmt.Errorf("failed to get %s, %w", h.url, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return sources.Failed[[]byte](fmt.Errorf("failed to get %s, unexpected status %s", h.url, resp.Status))
	}
	log.Debugw("Streaming response body", "contentLength", resp.ContentLength)
	opts := []reader.Option{reader.WithSourceType("http"), reader.WithCloser(&body{ReadCloser: resp.Body, cancel: cancel})}
	if h.chunkSize > 0 {
		opts = append(opts, reader.WithChunkSize(h.chunkSize))
	}
	s, err := reader.New(ctx, resp.Body, opts...)
	if err != nil {
		_ = resp.Body.Close()
		cancel()
		return sources.Failed[[]byte](err)
	}
	return sources.Push[[]byte](s)
}

// body releases the request context together with the response body.
type body struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *body) Close() error {
	b.cancel()
	return b.ReadCloser.Close()
}
