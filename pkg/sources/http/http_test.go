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

package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/multistream/pkg/sequencer"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("alpha "))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("b", 100)))
	})
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			http.Error(w, "request not authorized", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("secret"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNew_Concatenates(t *testing.T) {
	server := newServer(t)
	ctx := context.Background()
	seq, err := sequencer.NewBytes(ctx, sequencer.List(
		New(ctx, server.URL+"/a"),
		New(ctx, server.URL+"/b", WithChunkSize(7)),
		New(ctx, server.URL+"/auth", WithHeader("Authorization", "Bearer token"), WithClient(server.Client())),
	))
	require.NoError(t, err)
	out, err := io.ReadAll(sequencer.NewReader(ctx, seq))
	assert.NoError(t, err)
	assert.Equal(t, "alpha "+strings.Repeat("b", 100)+"secret", string(out))
}

func TestNew_Status(t *testing.T) {
	server := newServer(t)
	ctx := context.Background()
	seq, err := sequencer.NewBytes(ctx, sequencer.List(New(ctx, server.URL+"/auth")))
	require.NoError(t, err)
	_, err = io.ReadAll(sequencer.NewReader(ctx, seq))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestNew_SkipFailedRequest(t *testing.T) {
	server := newServer(t)
	ctx := context.Background()
	seq, err := sequencer.NewBytes(ctx, sequencer.List(
		New(ctx, server.URL+"/missing"),
		New(ctx, server.URL+"/a"),
	), sequencer.WithErrorHandler(func(err error) bool { return strings.Contains(err.Error(), "404") }))
	require.NoError(t, err)
	out, err := io.ReadAll(sequencer.NewReader(ctx, seq))
	assert.NoError(t, err)
	assert.Equal(t, "alpha ", string(out))
}

func TestNew_InvalidOption(t *testing.T) {
	d := New(context.Background(), "http://localhost", WithClient(nil))
	assert.False(t, d.IsLazy())
	assert.NotNil(t, d.Source())
}

func TestNew_Lazy(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = fmt.Fprint(w, "x")
	}))
	defer server.Close()
	d := New(context.Background(), server.URL)
	assert.True(t, d.IsLazy())
	assert.Equal(t, 0, requests)
}
