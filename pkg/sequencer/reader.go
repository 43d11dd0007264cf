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

package sequencer

import (
	"context"
	"io"
)

// reader exposes a byte chain as an io.Reader.
type reader struct {
	ctx  context.Context
	seq  *Sequencer[[]byte]
	rest []byte
}

// NewReader returns an io.Reader over a byte chain. Read returns io.EOF once every source was drained, and the
// error of the chain when it failed. ctx bounds every blocking Read.
func NewReader(ctx context.Context, seq *Sequencer[[]byte]) io.Reader {
	return &reader{ctx: ctx, seq: seq}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.rest) == 0 {
		chunk, err := r.seq.Next(r.ctx)
		if err != nil {
			return 0, err
		}
		r.rest = chunk
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}
