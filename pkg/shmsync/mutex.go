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

package shmsync

import (
	"unsafe"

	"github.com/srediag/shmsync/internal/futex"
	"github.com/srediag/shmsync/pkg/atomics"
)

const (
	mutexMagic uint32 = 0x6d747800
	magicMask  uint32 = 0xffffff00

	flagShared uint32 = 1 << 0
	flagRobust uint32 = 1 << 1
)

// Regular mutex states.
const (
	unlocked  uint32 = 0
	locked    uint32 = 1
	contended uint32 = 2
)

// Mutex is a mutual exclusion lock that can live on the Go heap or, once
// initialized with InitProcessShared, in memory shared by several processes.
//
// The layout is fixed at 24 bytes and contains no Go pointers, so a Mutex may
// be placed inside a mapped file with pkg/shm.Place. The zero value is not a
// usable lock: it must be initialized first. A Mutex must not be copied.
//
// Misuse (locking an uninitialized or destroyed mutex, unlocking one that is
// not locked) and OS errors end the process.
type Mutex struct {
	state      atomics.Cell[uint32]
	kind       atomics.Cell[uint32]
	health     atomics.Cell[uint32]
	_          uint32
	ownerStart atomics.Cell[int64]
}

// NewMutex returns an initialized process-local mutex.
func NewMutex() *Mutex {
	m := &Mutex{}
	m.InitRegular()
	return m
}

// InitRegular initializes m for use within this process.
func (m *Mutex) InitRegular() {
	m.init(0)
}

// InitProcessShared initializes m for use across processes mapping the memory
// it lives in. With robustIfAvailable the mutex detects holders that died
// while locked, where the platform allows it. The caller must have exclusive
// access to the memory during initialization.
func (m *Mutex) InitProcessShared(robustIfAvailable bool) {
	flags := flagShared
	if robustIfAvailable && IsRobustOnThisPlatform() {
		flags |= flagRobust
	}
	m.init(flags)
}

func (m *Mutex) init(flags uint32) {
	m.state.StoreRelaxed(unlocked)
	m.health.StoreRelaxed(uint32(Consistent))
	m.ownerStart.StoreRelaxed(0)
	m.kind.StoreRelease(mutexMagic | flags)
}

func (m *Mutex) flags(op string) uint32 {
	k := m.kind.LoadAcquire()
	if k&magicMask != mutexMagic {
		terminate("%s of uninitialized or destroyed mutex %p", op, m)
	}
	return k &^ magicMask
}

// IsProcessShared reports whether m was initialized for cross-process use.
func (m *Mutex) IsProcessShared() bool {
	k := m.kind.LoadAcquire()
	return k&magicMask == mutexMagic && k&flagShared != 0
}

// IsValid reports whether m holds an initialized mutex. It checks the magic
// and probes the lock word with a try-lock.
func (m *Mutex) IsValid() bool {
	k := m.kind.LoadAcquire()
	if k&magicMask != mutexMagic {
		return false
	}
	if m.TryLock() {
		m.Unlock()
	}
	return true
}

// Lock blocks until m is acquired. Locking a robust mutex whose holder died
// ends the process; use RobustMutex to handle that case.
func (m *Mutex) Lock() {
	f := m.flags("lock")
	if f&flagRobust != 0 {
		consistent, err := m.lockRobust()
		if err != nil {
			terminate("lock of mutex %p: %v", m, err)
		}
		if !consistent {
			terminate("lock of mutex %p: previous owner died", m)
		}
		raceAcquire(unsafe.Pointer(m))
		return
	}
	m.lockRegular(f&flagShared != 0)
	raceAcquire(unsafe.Pointer(m))
}

// TryLock acquires m if it is free and reports whether it did.
func (m *Mutex) TryLock() bool {
	f := m.flags("trylock")
	var ok bool
	if f&flagRobust != 0 {
		ok = m.tryLockRobust()
	} else {
		s := unlocked
		ok = m.state.CompareAndSwap(&s, locked)
	}
	if ok {
		raceAcquire(unsafe.Pointer(m))
	}
	return ok
}

// Unlock releases m. It never blocks.
func (m *Mutex) Unlock() {
	f := m.flags("unlock")
	raceReleaseMerge(unsafe.Pointer(m))
	if f&flagRobust != 0 {
		m.unlockRobust()
		return
	}
	m.unlockRegular(f&flagShared != 0)
}

// Destroy invalidates a mutex that is no longer used. Destroying a locked
// mutex, or one that was already destroyed, ends the process. Process-shared
// mutexes may be abandoned instead.
func (m *Mutex) Destroy() {
	m.flags("destroy")
	if m.state.LoadAcquire() != unlocked {
		terminate("destroy of locked mutex %p", m)
	}
	m.kind.StoreRelease(0)
}

func (m *Mutex) lockRegular(shared bool) {
	s := unlocked
	if m.state.CompareAndSwap(&s, locked) {
		return
	}
	for m.state.ExchangeAcquire(contended) != unlocked {
		if err := futex.Wait(m.state.Addr(), contended, shared); err != nil {
			terminate("lock of mutex %p: %v", m, err)
		}
	}
}

func (m *Mutex) unlockRegular(shared bool) {
	for {
		s := m.state.LoadRelaxed()
		switch s {
		case unlocked:
			terminate("unlock of unlocked mutex %p", m)
		case locked:
			if m.state.CompareAndSwap(&s, unlocked) {
				return
			}
		default:
			// lockers only ever raise the state to contended while it is held
			m.state.StoreRelease(unlocked)
			if _, err := futex.Wake(m.state.Addr(), 1, shared); err != nil {
				terminate("unlock of mutex %p: %v", m, err)
			}
			return
		}
	}
}
