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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srediag/shmsync/pkg/shmsync"
)

func newStressCmd(opts *rootOptions) *cobra.Command {
	var (
		workers    int
		iterations int
	)
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Increment the counter from many workers under the robust mutex",
		Long: `Runs workers that each lock the robust mutex, increment the counter and
notify the condition variable. Running stress from several processes at once
checks that the mutex excludes across processes: the counter grows by exactly
workers*iterations per run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers <= 0 || iterations <= 0 {
				return fmt.Errorf("workers and iterations must be positive")
			}
			return withRegion(cmd, opts, func(r *region) error {
				cv, err := r.condVar()
				if err != nil {
					return err
				}
				defer cv.Close()

				g, err := shmsync.NewGroup(workers)
				if err != nil {
					return err
				}
				defer g.Release()

				rec := r.recoverer("stress")
				start := time.Now()
				before := r.counter.LoadAcquire()
				for w := 0; w < workers; w++ {
					if err := g.Go(func() error {
						for i := 0; i < iterations; i++ {
							if err := r.mu.Lock(rec); err != nil {
								return err
							}
							r.counter.StoreRelease(r.counter.LoadAcquire() + 1)
							cv.NotifyAll()
							r.mu.Unlock()
						}
						return nil
					}); err != nil {
						return err
					}
				}
				if err := g.Wait(); err != nil {
					return err
				}
				elapsed := time.Since(start)
				total := workers * iterations
				fmt.Fprintf(cmd.OutOrStdout(), "%d increments in %v (%.0f/s), counter %d -> %d\n",
					total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds(),
					before, r.counter.LoadAcquire())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent workers")
	cmd.Flags().IntVar(&iterations, "iterations", 10000, "increments per worker")
	return cmd
}

func newNotifyCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Increment the counter and wake waiters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegion(cmd, opts, func(r *region) error {
				cv, err := r.condVar()
				if err != nil {
					return err
				}
				defer cv.Close()

				if err := r.mu.Lock(r.recoverer("notify")); err != nil {
					return err
				}
				n := r.counter.LoadAcquire() + 1
				r.counter.StoreRelease(n)
				if all {
					cv.NotifyAll()
				} else {
					cv.Notify()
				}
				r.mu.Unlock()
				fmt.Fprintf(cmd.OutOrStdout(), "counter %d\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", true, "wake every waiter instead of one")
	return cmd
}

func newWaitCmd(opts *rootOptions) *cobra.Command {
	var (
		until   uint64
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until the counter reaches a value",
		Long: `Waits on the condition variable until the counter reaches --until. With
--timeout each wait is bounded and the command fails once the whole timeout
elapsed; timed waits need the native condition variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegion(cmd, opts, func(r *region) error {
				cv, err := r.condVar()
				if err != nil {
					return err
				}
				defer cv.Close()

				rec := r.recoverer("wait")
				if err := r.mu.Lock(rec); err != nil {
					return err
				}
				var deadline time.Time
				if timeout > 0 {
					deadline = time.Now().Add(timeout)
				}
				for r.counter.LoadAcquire() < until {
					var left time.Duration
					if timeout > 0 {
						if left = time.Until(deadline); left <= 0 {
							r.mu.Unlock()
							return fmt.Errorf("timed out with counter %d", r.counter.LoadAcquire())
						}
					}
					if _, err := cv.WaitRobust(r.mu, rec, left); err != nil {
						// the mutex is held unless relocking failed
						if errors.Is(err, shmsync.ErrTimeoutUnsupported) {
							r.mu.Unlock()
						}
						return err
					}
				}
				n := r.counter.LoadAcquire()
				r.mu.Unlock()
				fmt.Fprintf(cmd.OutOrStdout(), "counter %d\n", n)
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&until, "until", 1, "counter value to wait for")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits forever)")
	return cmd
}
