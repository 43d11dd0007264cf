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

package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/multistream"
	"github.com/numaproj/multistream/pkg/config"
	"github.com/numaproj/multistream/pkg/metrics"
	"github.com/numaproj/multistream/pkg/sequencer"
	"github.com/numaproj/multistream/pkg/shared/logging"
	sharedutil "github.com/numaproj/multistream/pkg/shared/util"
)

const (
	outputRaw  = "raw"
	outputJSON = "json"

	// envShutdownTimeout bounds the shutdown of the metrics server
	envShutdownTimeout = "MULTISTREAM_SHUTDOWN_TIMEOUT"
)

// record is a unit of an object mode chain in json output.
type record struct {
	Index int    `json:"index"`
	Data  string `json:"data"`
}

func NewCatCommand() *cobra.Command {
	var (
		configFile    string
		name          string
		objectMode    bool
		highWaterMark int
		chunkSize     int
		recoverExpr   string
		output        string
		enableMetrics bool
		metricsPort   int
		watch         bool
	)

	command := &cobra.Command{
		Use:   "cat [source...]",
		Short: "Concatenate sources to stdout, one after the other",
		Long: `Concatenate sources to stdout, one after the other. A source is a file path, "-" for stdin,
an http(s) url, nats://host:port/subject?max=N, redis://host:port/stream or
kafka://broker/topic?partition=N. Sources given as arguments follow the ones of the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := &config.Config{}
			if configFile != "" {
				var err error
				if conf, err = config.LoadConfig(configFile); err != nil {
					return err
				}
			}
			argSources, err := config.SourcesFromArgs(args)
			if err != nil {
				return err
			}
			conf.Sources = append(conf.Sources, argSources...)
			flags := cmd.Flags()
			if flags.Changed("name") {
				conf.Name = name
			}
			if flags.Changed("object") {
				conf.ObjectMode = objectMode
			}
			if flags.Changed("high-water-mark") {
				conf.HighWaterMark = highWaterMark
			}
			if flags.Changed("chunk-size") {
				conf.ChunkSize = chunkSize
			}
			if flags.Changed("recover") {
				conf.Recover = recoverExpr
			}
			if err := conf.WithDefaults(); err != nil {
				return err
			}
			if flags.Changed("metrics") {
				conf.Metrics.Enabled = enableMetrics
			}
			if flags.Changed("metrics-port") {
				conf.Metrics.Port = metricsPort
			}
			if watch && configFile == "" {
				return fmt.Errorf("--watch requires --config")
			}
			switch output {
			case outputRaw:
			case outputJSON:
				if !conf.ObjectMode {
					return fmt.Errorf("json output requires object mode")
				}
			default:
				return fmt.Errorf("unsupported output %q", output)
			}

			log := logging.NewLogger().Named("cat")
			log.Infow("Starting multistream", "version", multistream.GetVersion())
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, log)
			var opts []sequencer.Option
			if watch {
				recovery, err := config.WatchRecovery(ctx, configFile, conf.Recover)
				if err != nil {
					return err
				}
				opts = append(opts, sequencer.WithErrorHandler(recovery.Match))
			}
			return runCat(ctx, conf, cmd.InOrStdin(), cmd.OutOrStdout(), output, opts...)
		},
	}
	command.Flags().StringVarP(&configFile, "config", "c", "", "Path of a yaml file describing the chain")
	command.Flags().StringVar(&name, "name", "", "Name of the chain in logs and metrics, defaults to 'cat'")
	command.Flags().BoolVar(&objectMode, "object", false, "Forward discrete records, written one per line")
	command.Flags().IntVar(&highWaterMark, "high-water-mark", 0, "Units buffered per source and in the output, records in object mode and bytes otherwise")
	command.Flags().IntVar(&chunkSize, "chunk-size", 0, "Size of the chunks read from files, stdin and http bodies, defaults to 16KiB")
	command.Flags().StringVar(&recoverExpr, "recover", "", "Expression evaluated against source errors, a failed source is skipped when it is true, e.g. 'sprig.contains(\"no such file\", error)'")
	command.Flags().StringVarP(&output, "output", "o", outputRaw, "Output format, 'raw' or 'json' (object mode only)")
	command.Flags().BoolVar(&enableMetrics, "metrics", false, "Whether to serve prometheus metrics while copying")
	command.Flags().IntVar(&metricsPort, "metrics-port", metrics.DefaultMetricsPort, "Port of the metrics server")
	command.Flags().BoolVar(&watch, "watch", false, "Reload the recover expression when the config file changes")
	return command
}

// runCat sequences the sources of conf into out until every source is drained, an error stops the chain, or
// ctx is done. opts are applied after the ones of conf.
func runCat(ctx context.Context, conf *config.Config, in io.Reader, out io.Writer, output string, opts ...sequencer.Option) error {
	log := logging.FromContext(ctx)
	chain, err := conf.Build(ctx, in)
	if err != nil {
		return err
	}
	defer func() {
		if err := chain.Close(); err != nil {
			log.Warnw("Failed to close the chain", zap.Error(err))
		}
	}()
	seq, err := sequencer.New[[]byte](ctx, sequencer.List(chain.Descriptors...), append(chain.Options, opts...)...)
	if err != nil {
		return err
	}
	defer seq.Destroy(nil)

	g, gctx := errgroup.WithContext(ctx)
	copied := make(chan struct{})
	if conf.Metrics.Enabled {
		v := multistream.GetVersion()
		metrics.BuildInfo.With(map[string]string{
			metrics.LabelComponent:     "cat",
			metrics.LabelComponentName: conf.Name,
			metrics.LabelVersion:       v.Version,
			metrics.LabelPlatform:      v.Platform,
		}).Set(1)
		server := metrics.NewMetricsServer(metrics.WithPort(conf.Metrics.Port), metrics.WithHealthCheckExecutor(seq.Err))
		shutdown, err := server.Start(ctx)
		if err != nil {
			return fmt.Errorf("failed to start metrics server, %w", err)
		}
		g.Go(func() error {
			select {
			case <-copied:
			case <-gctx.Done():
			}
			sctx, cancel := context.WithTimeout(context.Background(), sharedutil.LookupEnvDurationOr(envShutdownTimeout, 5*time.Second))
			defer cancel()
			return shutdown(sctx)
		})
	}
	g.Go(func() error {
		defer close(copied)
		if conf.ObjectMode {
			return copyRecords(gctx, seq, out, output)
		}
		_, err := io.Copy(out, sequencer.NewReader(gctx, seq))
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Interrupted")
		}
		return err
	}
	log.Info("All sources copied")
	return nil
}

func copyRecords(ctx context.Context, seq *sequencer.Sequencer[[]byte], out io.Writer, output string) error {
	w := bufio.NewWriter(out)
	for i := 0; ; i++ {
		data, err := seq.Next(ctx)
		if errors.Is(err, io.EOF) {
			return w.Flush()
		}
		if err != nil {
			_ = w.Flush()
			return err
		}
		if output == outputJSON {
			if data, err = json.Marshal(record{Index: i, Data: string(data)}); err != nil {
				return fmt.Errorf("failed to marshal record %d, %w", i, err)
			}
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
}
