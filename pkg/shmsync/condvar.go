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
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/srediag/shmsync/internal/futex"
	"github.com/srediag/shmsync/pkg/atomics"
)

const (
	partMagic uint32 = 0x63767000
	partMask  uint32 = 0xffffff00
)

// SharedPart is the part of a process-shared condition variable that lives in
// shared memory. It has a fixed 24-byte layout without Go pointers.
//
// It must be initialized once, by a process with exclusive access, before any
// CondVar binds to it. The strategy chosen at initialization is recorded in the
// part, so every process binding later uses the same one.
type SharedPart struct {
	seq           atomics.Cell[uint32]
	waiters       atomics.Cell[uint32]
	signalCounter atomics.Cell[uint64]
	kind          atomics.Cell[uint32]
	_             uint32
}

// InitSharedPart initializes part with the strategy of this process.
func InitSharedPart(part *SharedPart) {
	part.Init(DetectStrategy())
}

// Init initializes p for the given strategy.
func (p *SharedPart) Init(mode Strategy) {
	if !mode.valid() {
		terminate("init of shared part with invalid strategy %d", uint32(mode))
	}
	p.seq.StoreRelaxed(0)
	p.waiters.StoreRelaxed(0)
	p.signalCounter.StoreRelaxed(0)
	p.kind.StoreRelease(partMagic | uint32(mode))
}

// Mode returns the strategy recorded at initialization, and false when p was
// never initialized.
func (p *SharedPart) Mode() (Strategy, bool) {
	k := p.kind.LoadAcquire()
	mode := Strategy(k &^ partMask)
	if k&partMask != partMagic || !mode.valid() {
		return 0, false
	}
	return mode, true
}

// Waiters returns the number of registered waiters.
func (p *SharedPart) Waiters() uint32 { return p.waiters.LoadAcquire() }

// BindOptions identifies where a shared part lives. Device, Inode and Offset
// only matter when semaphore names are derived per condition variable.
type BindOptions struct {
	Device uint64
	Inode  uint64
	Offset uint64

	// SemaphoreName overrides the configured semaphore name.
	SemaphoreName string
}

// WaitStatus tells why a timed wait returned.
type WaitStatus int

const (
	// WaitNotified means the waiter was woken, possibly spuriously.
	WaitNotified WaitStatus = iota
	// WaitTimedOut means the timeout elapsed. The mutex is held again.
	WaitTimedOut
)

func (s WaitStatus) String() string {
	switch s {
	case WaitNotified:
		return "notified"
	case WaitTimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("WaitStatus(%d)", int(s))
	}
}

// CondVar is a condition variable usable within one process (NewCondVar) or
// across processes sharing a SharedPart (NewSharedCondVar and Bind).
//
// Waiters must hold the associated mutex. Wakeups may be spurious, so callers
// re-check their predicate in a loop. A CondVar handle must not be copied.
type CondVar struct {
	mode  Strategy
	local SharedPart
	part  *SharedPart
	sem   *Semaphore
}

// NewCondVar returns a process-local condition variable.
func NewCondVar() *CondVar {
	cv := &CondVar{mode: NativeLocal}
	cv.local.Init(NativeLocal)
	cv.part = &cv.local
	return cv
}

// NewSharedCondVar returns an unbound process-shared condition variable. It
// must be bound to an initialized SharedPart before use.
func NewSharedCondVar() *CondVar {
	return &CondVar{mode: DetectStrategy()}
}

// Mode returns the strategy in use.
func (cv *CondVar) Mode() Strategy { return cv.mode }

// Bind associates cv with part, which another process may have initialized.
// The strategy recorded in part replaces the one detected locally.
func (cv *CondVar) Bind(part *SharedPart, opts BindOptions) error {
	if cv.mode == NativeLocal {
		terminate("bind of process-local condition variable %p", cv)
	}
	if cv.part != nil {
		terminate("condition variable %p is already bound", cv)
	}
	mode, ok := part.Mode()
	if !ok || mode == NativeLocal {
		return ErrPartUninitialized
	}
	if mode == EmulatedShared {
		sem, err := OpenSemaphore(semaphoreName(opts))
		if err != nil {
			return err
		}
		cv.sem = sem
	}
	cv.mode = mode
	cv.part = part
	return nil
}

func semaphoreName(opts BindOptions) string {
	if opts.SemaphoreName != "" {
		return opts.SemaphoreName
	}
	cfg := config()
	if cfg.DeriveSemaphoreName && (opts.Device != 0 || opts.Inode != 0) {
		return fmt.Sprintf("%s.%x.%x.%x", cfg.SemaphoreName, opts.Device, opts.Inode, opts.Offset)
	}
	return cfg.SemaphoreName
}

func (cv *CondVar) bound() *SharedPart {
	if cv.part == nil {
		terminate("use of unbound or closed condition variable %p", cv)
	}
	return cv.part
}

func (cv *CondVar) shared() bool { return cv.mode != NativeLocal }

// Wait releases the guard's mutex, blocks until notified and relocks it.
func (cv *CondVar) Wait(g *ScopedLock) {
	if !g.locked {
		terminate("wait with released scoped lock on mutex %p", g.m)
	}
	cv.WaitLocked(g.m)
}

// WaitLocked is Wait for a mutex the caller locked directly.
func (cv *CondVar) WaitLocked(m *Mutex) {
	part := cv.bound()
	config().Metrics.waited(cv.mode)
	if cv.mode == EmulatedShared {
		cv.waitEmulated(part, m.Unlock, func() error {
			m.Lock()
			return nil
		})
		return
	}
	seq := part.seq.LoadAcquire()
	part.waiters.FetchAddAcquire(1)
	m.Unlock()
	err := futex.Wait(part.seq.Addr(), seq, cv.shared())
	part.waiters.FetchSubRelease(1)
	if err != nil {
		terminate("wait on condition variable %p: %v", cv, err)
	}
	raceAcquire(unsafe.Pointer(part))
	m.Lock()
}

// WaitRobust releases m, blocks until notified or until timeout elapses, and
// relocks m through RobustMutex.Lock, running rec if the holder died in the
// meantime. A zero timeout waits forever.
//
// A timeout never triggers recovery: the mutex is relocked and WaitTimedOut
// returned. When relocking fails with an error the mutex is not held.
// Emulated condition variables reject a timeout with ErrTimeoutUnsupported
// without releasing m.
func (cv *CondVar) WaitRobust(m *RobustMutex, rec Recoverer, timeout time.Duration) (WaitStatus, error) {
	part := cv.bound()
	cfg := config()
	if cv.mode == EmulatedShared {
		if timeout > 0 {
			return WaitNotified, ErrTimeoutUnsupported
		}
		cfg.Metrics.waited(cv.mode)
		return WaitNotified, cv.waitEmulated(part, m.Unlock, func() error {
			return m.Lock(rec)
		})
	}
	cfg.Metrics.waited(cv.mode)
	seq := part.seq.LoadAcquire()
	part.waiters.FetchAddAcquire(1)
	m.Unlock()
	err := futex.WaitTimeout(part.seq.Addr(), seq, timeout, cv.shared())
	part.waiters.FetchSubRelease(1)

	status := WaitNotified
	switch {
	case err == nil:
		raceAcquire(unsafe.Pointer(part))
	case errors.Is(err, futex.ErrTimeout):
		status = WaitTimedOut
		cfg.Metrics.timedOut()
	default:
		terminate("wait on condition variable %p: %v", cv, err)
	}
	if err := m.Lock(rec); err != nil {
		return status, err
	}
	return status, nil
}

// Notify wakes at least one waiter, if any. It does not block.
func (cv *CondVar) Notify() {
	part := cv.bound()
	raceReleaseMerge(unsafe.Pointer(part))
	if cv.mode == EmulatedShared {
		cv.notifyEmulated(part, false)
		return
	}
	part.seq.FetchAddRelease(1)
	if part.waiters.LoadAcquire() == 0 {
		return
	}
	if _, err := futex.Wake(part.seq.Addr(), 1, cv.shared()); err != nil {
		terminate("notify on condition variable %p: %v", cv, err)
	}
}

// NotifyAll wakes every waiter registered before the call. It does not block.
func (cv *CondVar) NotifyAll() {
	part := cv.bound()
	raceReleaseMerge(unsafe.Pointer(part))
	if cv.mode == EmulatedShared {
		cv.notifyEmulated(part, true)
		return
	}
	part.seq.FetchAddRelease(1)
	if part.waiters.LoadAcquire() == 0 {
		return
	}
	if _, err := futex.Wake(part.seq.Addr(), 0, cv.shared()); err != nil {
		terminate("notify on condition variable %p: %v", cv, err)
	}
}

// Close releases the handle's resources. The SharedPart is left untouched
// since other handles may use it. Closing twice is a no-op.
func (cv *CondVar) Close() error {
	cv.part = nil
	if cv.sem == nil {
		return nil
	}
	err := cv.sem.Close()
	cv.sem = nil
	return err
}
