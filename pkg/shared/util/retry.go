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

package util

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj/multistream/pkg/shared/logging"
)

// DefaultRetryBackoff is used to connect to the backends of the sources.
var DefaultRetryBackoff = wait.Backoff{
	Steps:    5,
	Duration: 500 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
}

// Retry calls fn with an exponential backoff until it succeeds, the steps of the backoff are exhausted or ctx
// is done. It returns the last error of fn.
func Retry(ctx context.Context, backoff wait.Backoff, name string, fn func() error) error {
	log := logging.FromContext(ctx)
	var lastErr error
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(context.Context) (bool, error) {
		if lastErr = fn(); lastErr != nil {
			log.Warnw("Retrying", "operation", name, zap.Error(lastErr))
			return false, nil
		}
		return true, nil
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}
