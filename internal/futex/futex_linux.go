//go:build linux

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
	"fmt"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	opWait      = 0
	opWake      = 1
	privateFlag = 128
)

func op(base uintptr, shared bool) uintptr {
	if shared {
		return base
	}
	return base | privateFlag
}

// Supported reports whether the kernel wait queue is used.
func Supported() bool { return true }

// Wait parks the caller while *addr == val. It returns early on a wake, a
// signal, or when *addr no longer holds val; callers re-check their condition.
func Wait(addr *uint32, val uint32, shared bool) error {
	return wait(addr, val, nil, shared)
}

// WaitTimeout is Wait bounded by a relative timeout. It returns ErrTimeout
// when the timeout elapsed. A non-positive timeout waits forever.
func WaitTimeout(addr *uint32, val uint32, timeout time.Duration, shared bool) error {
	if timeout <= 0 {
		return Wait(addr, val, shared)
	}
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	return wait(addr, val, &ts, shared)
}

func wait(addr *uint32, val uint32, ts *unix.Timespec, shared bool) error {
	if atomic.LoadUint32(addr) != val {
		return nil
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		op(opWait, shared),
		uintptr(val),
		uintptr(unsafe.Pointer(ts)),
		0,
		0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return ErrTimeout
	default:
		return fmt.Errorf("futex wait: %w", errno)
	}
}

// Wake wakes up to n waiters parked on addr and returns how many were woken.
// n <= 0 or n larger than math.MaxInt32 wakes all of them.
func Wake(addr *uint32, n int, shared bool) (int, error) {
	if n <= 0 || n > math.MaxInt32 {
		n = math.MaxInt32
	}
	r1, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		op(opWake, shared),
		uintptr(n),
		0,
		0,
		0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("futex wake: %w", errno)
	}
	return int(r1), nil
}
