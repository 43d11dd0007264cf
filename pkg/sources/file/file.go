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

// Package file provides lazy file sources: a file is only opened when its turn in the chain comes.
package file

import (
	"context"
	"fmt"
	"os"

	"github.com/numaproj/multistream/pkg/shared/logging"
	"github.com/numaproj/multistream/pkg/sources"
	"github.com/numaproj/multistream/pkg/sources/reader"
)

// New returns a lazy descriptor for the file at path. Failing to open the file fails the source, which the
// chain handles as any other source error.
func New(ctx context.Context, path string, opts ...reader.Option) sources.Descriptor[[]byte] {
	return sources.Lazy(func() sources.Descriptor[[]byte] {
		f, err := os.Open(path)
		if err != nil {
			return sources.Failed[[]byte](fmt.Errorf("failed to open %q, %w", path, err))
		}
		logging.FromContext(ctx).Debugw("Opened file", "path", path)
		opts = append([]reader.Option{reader.WithSourceType("file")}, opts...)
		s, err := reader.New(ctx, f, opts...)
		if err != nil {
			_ = f.Close()
			return sources.Failed[[]byte](err)
		}
		return sources.Push[[]byte](s)
	})
}

// List returns lazy descriptors for the given paths, in order.
func List(ctx context.Context, paths ...string) []sources.Descriptor[[]byte] {
	descriptors := make([]sources.Descriptor[[]byte], 0, len(paths))
	for _, p := range paths {
		descriptors = append(descriptors, New(ctx, p))
	}
	return descriptors
}
