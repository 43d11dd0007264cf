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

package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/numaproj/multistream/pkg/shared/logging"
	sharedutil "github.com/numaproj/multistream/pkg/shared/util"
)

// NewConn connects to the NATS server at url, retrying with the default backoff. The given options are applied
// after the defaults, so they can override them.
func NewConn(ctx context.Context, url string, natsOptions ...nats.Option) (*nats.Conn, error) {
	log := logging.FromContext(ctx)
	opts := []nats.Option{
		// Enable Nats auto reconnect
		// if max reconnects is set to -1, it will try to reconnect forever
		nats.MaxReconnects(-1),
		nats.ReconnectWait(3 * time.Second),
		// every three seconds we will try to ping the server, if we don't get a pong back
		// after two attempts, we will consider the connection lost and try to reconnect
		nats.PingInterval(3 * time.Second),
		nats.MaxPingsOutstanding(2),
		// error handler for the connection
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Errorw("Nats default: error occurred for subscription", zap.Error(err))
		}),
		// disconnect handler to log when we lose connection
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Errorw("Nats default: disconnected", zap.Error(err))
			}
		}),
		// reconnect handler to log when we reconnect
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Nats default: reconnected")
		}),
		// Write (and flush) timeout
		nats.FlusherTimeout(10 * time.Second),
	}
	opts = append(opts, natsOptions...)

	var nc *nats.Conn
	err := sharedutil.Retry(ctx, sharedutil.DefaultRetryBackoff, "nats connect", func() error {
		var err error
		nc, err = nats.Connect(url, opts...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats server %s, %w", url, err)
	}
	log.Infow("Connected to nats server", "url", nc.ConnectedUrlRedacted())
	return nc, nil
}
