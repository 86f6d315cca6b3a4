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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/srediag/shmsync/internal/debug"
	"github.com/srediag/shmsync/pkg/shmsync"
)

var logger = debug.New("shmsync-cli", os.Stderr)

type rootOptions struct {
	path      string
	logLevel  int
	emulation bool
	pollMax   time.Duration
}

// NewRootCmd builds the shmsync command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{logLevel: debug.LogLevel()}
	root := &cobra.Command{
		Use:   "shmsync",
		Short: "Inspect and exercise cross-process locks in a shared region",
		Long: `shmsync manages a small shared region holding a robust mutex, a condition
variable and a counter. Several shmsync processes pointed at the same region
coordinate through it, which makes it handy for checking owner-death recovery
and condition variable strategies on a host.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug.SetLogLevel(opts.logLevel)
			cfg := shmsync.CurrentConfig()
			if cmd.Flags().Changed("emulation") {
				cfg.ForceEmulation = opts.emulation
			}
			if cmd.Flags().Changed("owner-poll-max") {
				cfg.OwnerPollMax = opts.pollMax
			}
			return shmsync.Configure(cfg)
		},
	}
	root.PersistentFlags().StringVar(&opts.path, "path", "shmsync-demo", "region file, or a name under /dev/shm")
	root.PersistentFlags().IntVar(&opts.logLevel, "log-level", opts.logLevel, "log level, 0 (trace) to 5 (silent)")
	root.PersistentFlags().BoolVar(&opts.emulation, "emulation", false, "use the semaphore-based condition variable")
	root.PersistentFlags().DurationVar(&opts.pollMax, "owner-poll-max", time.Second/10, "upper bound between owner liveness probes")

	root.AddCommand(
		newInitCmd(opts),
		newInspectCmd(opts),
		newStressCmd(opts),
		newWaitCmd(opts),
		newNotifyCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// withRegion opens the region, checks its header and runs fn.
func withRegion(cmd *cobra.Command, opts *rootOptions, fn func(r *region) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	r, err := openRegion(ctx, opts.path, false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.close(ctx); cerr != nil {
			logger.Warnf("close %s: %v", opts.path, cerr)
		}
	}()
	if err := r.check(); err != nil {
		return fmt.Errorf("%s: %w", opts.path, err)
	}
	return fn(r)
}
