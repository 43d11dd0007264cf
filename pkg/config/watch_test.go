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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig replaces the file at once, so a watcher never reads it half written.
func writeConfigAtomic(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatchRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.yaml")
	writeConfigAtomic(t, path, "recover: sprig.contains(\"refused\", error)\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r, err := WatchRecovery(ctx, path, `sprig.contains("refused", error)`)
	require.NoError(t, err)

	refused := errors.New("connection refused")
	missing := errors.New("open a.txt: no such file or directory")
	assert.True(t, r.Match(refused))
	assert.False(t, r.Match(missing))

	writeConfigAtomic(t, path, "recover: sprig.contains(\"no such file\", error)\n")
	assert.Eventually(t, func() bool {
		return r.Match(missing) && !r.Match(refused)
	}, 5*time.Second, 10*time.Millisecond)

	// an invalid expression keeps the previous one
	writeConfigAtomic(t, path, "recover: \"error ==\"\n")
	assert.Never(t, func() bool {
		return !r.Match(missing)
	}, 300*time.Millisecond, 10*time.Millisecond)

	// an empty expression makes every error fatal again
	writeConfigAtomic(t, path, "name: cat\n")
	assert.Eventually(t, func() bool {
		return !r.Match(missing)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatchRecovery_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: cat\n"), 0o644))

	_, err := WatchRecovery(context.Background(), path, "error ==")
	assert.ErrorContains(t, err, "invalid recover expression")
	_, err = WatchRecovery(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	r, err := WatchRecovery(context.Background(), path, "")
	require.NoError(t, err)
	assert.False(t, r.Match(errors.New("any")))
}
