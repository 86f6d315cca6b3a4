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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srediag/shmsync/pkg/shmsync"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the region and initialize its objects",
		Long: `Creates the region file if needed and initializes the robust mutex, the
condition variable shared part and the counter. No other process may use the
region while it is initialized.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRegion(cmd.Context(), opts.path, true)
			if err != nil {
				return err
			}
			defer r.close(cmd.Context())
			if r.check() == nil && !force {
				return fmt.Errorf("%s is already initialized, use --force to reset it", r.seg.Path())
			}
			mode := shmsync.DetectStrategy()
			r.initialize(mode)
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s (%d bytes, condvar %s)\n", r.seg.Path(), r.seg.Size(), mode)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "reinitialize an initialized region")
	return cmd
}

func newInspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the state of the region",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegion(cmd, opts, func(r *region) error {
				mode, _ := r.part.Mode()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "path:     %s\n", r.seg.Path())
				fmt.Fprintf(out, "device:   %d\n", r.seg.Device())
				fmt.Fprintf(out, "inode:    %d\n", r.seg.Inode())
				fmt.Fprintf(out, "owner:    %d\n", r.mu.Owner())
				fmt.Fprintf(out, "health:   %s\n", r.mu.Health())
				fmt.Fprintf(out, "condvar:  %s\n", mode)
				fmt.Fprintf(out, "waiters:  %d\n", r.part.Waiters())
				fmt.Fprintf(out, "counter:  %d\n", r.counter.LoadAcquire())
				return nil
			})
		},
	}
}
