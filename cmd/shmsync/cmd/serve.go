/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/srediag/shmsync/pkg/shmsync"
)

// newServeHandler exposes health checks over the region's robust mutex and the
// package metrics.
func newServeHandler(r *region, reg *prometheus.Registry) http.Handler {
	health := healthcheck.NewHandler()
	shmsync.RegisterChecks(health, "region-mutex", r.mu)
	health.AddLivenessCheck("region-header", r.check)

	mux := http.NewServeMux()
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health checks and metrics for the region",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			cfg := shmsync.CurrentConfig()
			cfg.Metrics = shmsync.NewMetrics(reg)
			if err := shmsync.Configure(cfg); err != nil {
				return err
			}
			return withRegion(cmd, opts, func(r *region) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				srv := &http.Server{
					Addr:              listen,
					Handler:           newServeHandler(r, reg),
					ReadHeaderTimeout: 5 * time.Second,
				}
				errc := make(chan error, 1)
				go func() { errc <- srv.ListenAndServe() }()
				fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s\n", r.seg.Path(), listen)

				select {
				case err := <-errc:
					return err
				case <-ctx.Done():
				}
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdown); err != nil {
					return err
				}
				if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:9464", "address to serve /live, /ready and /metrics on")
	return cmd
}
