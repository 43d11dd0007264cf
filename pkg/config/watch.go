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

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/multistream/pkg/shared/expr"
	"github.com/numaproj/multistream/pkg/shared/logging"
)

// Recovery is an error handler following the recover expression of a config file. An edit with an invalid
// expression is logged and the previous expression stays in use.
type Recovery struct {
	predicate *atomic.Pointer[expr.Predicate]
}

// WatchRecovery compiles expression and replaces it whenever the recover field of the config file at path
// changes. Changes after ctx is done are ignored.
func WatchRecovery(ctx context.Context, path string, expression string) (*Recovery, error) {
	log := logging.FromContext(ctx).With("config", path)
	p, err := compileRecover(expression)
	if err != nil {
		return nil, err
	}
	r := &Recovery{predicate: atomic.NewPointer(p)}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration file. %w", err)
	}
	current := v.GetString("recover")
	v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		next := v.GetString("recover")
		if next == current {
			return
		}
		p, err := compileRecover(next)
		if err != nil {
			log.Errorw("Ignoring the changed recover expression", zap.String("event", e.String()), zap.Error(err))
			return
		}
		current = next
		r.predicate.Store(p)
		log.Infow("Recover expression reloaded", "recover", next)
	})
	v.WatchConfig()
	return r, nil
}

// Match is a sequencer error handler.
func (r *Recovery) Match(err error) bool {
	p := r.predicate.Load()
	return p != nil && p.Match(err)
}

func compileRecover(expression string) (*expr.Predicate, error) {
	if expression == "" {
		return nil, nil
	}
	p, err := expr.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid recover expression, %w", err)
	}
	return p, nil
}
