//go:build !linux

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

package futex

import (
	"sync/atomic"
	"time"
)

// Supported reports whether the kernel wait queue is used. Without futexes
// waiters poll the word.
func Supported() bool { return false }

// Wait sleeps in short intervals until *addr != val. Wakes are not delivered
// so the caller must change the word before calling Wake.
func Wait(addr *uint32, val uint32, shared bool) error {
	for atomic.LoadUint32(addr) == val {
		time.Sleep(pollInterval)
	}
	return nil
}

// WaitTimeout is Wait bounded by a relative timeout.
func WaitTimeout(addr *uint32, val uint32, timeout time.Duration, shared bool) error {
	if timeout <= 0 {
		return Wait(addr, val, shared)
	}
	deadline := time.Now().Add(timeout)
	for atomic.LoadUint32(addr) == val {
		if !time.Now().Before(deadline) {
			return ErrTimeout
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// Wake is a no-op; pollers observe the changed word on their own.
func Wake(addr *uint32, n int, shared bool) (int, error) {
	return 0, nil
}
