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
	"context"
	"errors"
	"fmt"
	"unsafe"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/srediag/shmsync/internal/futex"
)

// Robust lock word: owner pid in the low bits, plus flags.
const (
	robustWaiters uint32 = 0x80000000
	// robustPending marks an owner whose start time is not yet published.
	robustPending uint32 = 0x40000000
	robustPIDMask uint32 = 0x3fffffff
)

// Health is the consistency state of a robust mutex.
type Health uint32

const (
	// Consistent is the normal state.
	Consistent Health = iota
	// Inconsistent means a holder died; the current holder must recover the
	// protected state and call MarkConsistent before unlocking.
	Inconsistent
	// NotRecoverable means the mutex was unlocked while inconsistent. Every
	// later lock attempt fails with ErrNotRecoverable.
	NotRecoverable
)

func (h Health) String() string {
	switch h {
	case Consistent:
		return "consistent"
	case Inconsistent:
		return "inconsistent"
	case NotRecoverable:
		return "not-recoverable"
	default:
		return fmt.Sprintf("Health(%d)", uint32(h))
	}
}

// Recoverer restores the state protected by a robust mutex after its holder
// died. A returned error or a panic leaves the mutex unrecoverable.
type Recoverer interface {
	Recover() error
}

// RecoverFunc adapts a function to Recoverer.
type RecoverFunc func() error

// Recover calls f.
func (f RecoverFunc) Recover() error { return f() }

// IsRobustOnThisPlatform reports whether robust mutexes detect dead holders.
// Where they do not, a RobustMutex behaves as a plain process-shared mutex:
// LowLevelLock always reports a consistent state and a holder that dies
// leaves the mutex locked forever.
func IsRobustOnThisPlatform() bool {
	return futex.Supported()
}

// RobustMutex is a process-shared mutex that detects a holder process dying
// while the lock is held. The next locker is told, runs recovery, and either
// marks the state consistent or leaves the mutex unrecoverable.
//
// A RobustMutex is placed in shared memory and initialized once with Init.
type RobustMutex struct {
	m Mutex
}

// NewRobustMutex returns an initialized robust mutex on the Go heap.
func NewRobustMutex() *RobustMutex {
	r := &RobustMutex{}
	r.Init()
	return r
}

// Init initializes r in place. The caller must have exclusive access.
func (r *RobustMutex) Init() {
	r.m.InitProcessShared(true)
}

// IsValid reports whether r holds an initialized mutex.
func (r *RobustMutex) IsValid() bool {
	return r.m.IsValid()
}

// Health returns the consistency state.
func (r *RobustMutex) Health() Health {
	return Health(r.m.health.LoadAcquire())
}

// Owner returns the pid recorded as holder, or 0 when unlocked.
func (r *RobustMutex) Owner() int {
	return int(r.m.state.LoadAcquire() & robustPIDMask)
}

// Lock acquires r. When the previous holder died, rec runs with the lock held;
// on success the state is marked consistent and Lock returns nil. When rec
// fails or panics, r is unlocked and becomes unrecoverable, and Lock returns a
// *RecoveryError (or re-panics). A nil rec counts as a failed recovery.
//
// Once r is unrecoverable Lock returns ErrNotRecoverable without blocking.
func (r *RobustMutex) Lock(rec Recoverer) error {
	consistent, err := r.LowLevelLock()
	if err != nil {
		return err
	}
	if consistent {
		return nil
	}
	return r.recover(rec)
}

func (r *RobustMutex) recover(rec Recoverer) error {
	cfg := config()
	_, span := cfg.Tracer.Start(context.Background(), "shmsync.RobustMutex.Recover")
	span.SetAttributes(attribute.String("mutex", fmt.Sprintf("%p", r)))
	defer span.End()

	done := false
	defer func() {
		if !done {
			logger.Errorf("recovery of robust mutex %p panicked", r)
			cfg.Metrics.recovered(false)
			r.Unlock()
		}
	}()
	var err error
	if rec == nil {
		err = ErrNotRecoverable
	} else {
		err = rec.Recover()
	}
	done = true

	if err != nil {
		logger.Errorf("recovery of robust mutex %p failed: %v", r, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "recovery failed")
		cfg.Metrics.recovered(false)
		r.Unlock()
		return &RecoveryError{Err: err}
	}
	r.MarkConsistent()
	cfg.Metrics.recovered(true)
	logger.Infof("robust mutex %p recovered", r)
	return nil
}

// Unlock releases r. Unlocking while the state is inconsistent makes r
// unrecoverable and wakes every blocked locker so it can fail.
func (r *RobustMutex) Unlock() {
	r.m.Unlock()
}

// LowLevelLock acquires r and reports whether the protected state is
// consistent. false means the previous holder died (or a recovery is
// pending); the caller holds the lock and must recover, then call
// MarkConsistent, before unlocking. Exactly one locker observes each death.
//
// On platforms without robust support it always reports true.
func (r *RobustMutex) LowLevelLock() (bool, error) {
	f := r.m.flags("lock")
	if f&flagRobust == 0 {
		r.m.lockRegular(f&flagShared != 0)
		raceAcquire(unsafe.Pointer(&r.m))
		return true, nil
	}
	consistent, err := r.m.lockRobust()
	if err == nil {
		raceAcquire(unsafe.Pointer(&r.m))
	}
	return consistent, err
}

// MarkConsistent records that the holder restored the protected state. It is a
// no-op unless the state is inconsistent.
func (r *RobustMutex) MarkConsistent() {
	h := uint32(Inconsistent)
	r.m.health.CompareAndSwap(&h, uint32(Consistent))
}

func (m *Mutex) lockRobust() (bool, error) {
	cfg := config()
	self := selfPID()

	var bo *backoff.ExponentialBackOff
	waited := false
	probe := true
	for {
		if Health(m.health.LoadAcquire()) == NotRecoverable {
			cfg.Metrics.notRecoverable()
			return false, ErrNotRecoverable
		}
		s := m.state.LoadAcquire()
		owner := s & robustPIDMask
		if owner == 0 {
			next := self | robustPending | s&robustWaiters
			if waited {
				next |= robustWaiters
			}
			if !m.state.CompareAndSwap(&s, next) {
				continue
			}
			m.publishOwner()
			return m.acquired()
		}

		if probe && owner != self {
			pending := s&robustPending != 0
			start := int64(0)
			if !pending {
				start = m.ownerStart.LoadAcquire()
			}
			if !ownerAlive(owner, start) {
				if !m.state.CompareAndSwap(&s, self|robustPending|s&robustWaiters) {
					continue
				}
				m.publishOwner()
				h := uint32(Consistent)
				m.health.CompareAndSwap(&h, uint32(Inconsistent))
				cfg.Metrics.ownerDied()
				logger.Warnf("owner %d of robust mutex %p died while holding it", owner, m)
				_, err := m.acquired()
				return false, err
			}
		}

		if s&robustWaiters == 0 {
			if !m.state.CompareAndSwap(&s, s|robustWaiters) {
				continue
			}
			s |= robustWaiters
		}
		if bo == nil {
			bo = backoff.NewExponentialBackOff()
			bo.InitialInterval = cfg.OwnerPollInitial
			bo.MaxInterval = cfg.OwnerPollMax
			bo.MaxElapsedTime = 0
			bo.Reset()
		}
		waited = true
		err := futex.WaitTimeout(m.state.Addr(), s, bo.NextBackOff(), true)
		switch {
		case err == nil:
			probe = false
		case errors.Is(err, futex.ErrTimeout):
			probe = true
		default:
			terminate("lock of robust mutex %p: %v", m, err)
		}
	}
}

// acquired runs once the lock word names this process. A mutex that became
// unrecoverable meanwhile is released again.
func (m *Mutex) acquired() (bool, error) {
	switch Health(m.health.LoadAcquire()) {
	case Consistent:
		return true, nil
	case NotRecoverable:
		m.releaseRobust(true)
		config().Metrics.notRecoverable()
		return false, ErrNotRecoverable
	default:
		return false, nil
	}
}

func (m *Mutex) publishOwner() {
	m.ownerStart.StoreRelease(processStart())
	for {
		s := m.state.LoadRelaxed()
		if s&robustPending == 0 {
			return
		}
		if m.state.CompareAndSwap(&s, s&^robustPending) {
			return
		}
	}
}

func (m *Mutex) tryLockRobust() bool {
	if Health(m.health.LoadAcquire()) == NotRecoverable {
		return false
	}
	s := m.state.LoadAcquire()
	if s&robustPIDMask != 0 {
		return false
	}
	if !m.state.CompareAndSwap(&s, selfPID()|robustPending|s&robustWaiters) {
		return false
	}
	m.publishOwner()
	if Health(m.health.LoadAcquire()) != Consistent {
		m.releaseRobust(true)
		return false
	}
	return true
}

func (m *Mutex) unlockRobust() {
	if m.state.LoadAcquire()&robustPIDMask == 0 {
		terminate("unlock of unlocked robust mutex %p", m)
	}
	h := uint32(Inconsistent)
	if m.health.CompareAndSwap(&h, uint32(NotRecoverable)) {
		logger.Errorf("robust mutex %p unlocked while inconsistent, it is no longer recoverable", m)
		m.releaseRobust(true)
		return
	}
	m.releaseRobust(false)
}

func (m *Mutex) releaseRobust(wakeAll bool) {
	prev := m.state.ExchangeAcquire(unlocked)
	if prev&robustWaiters == 0 && !wakeAll {
		return
	}
	n := 1
	if wakeAll {
		n = 0
	}
	if _, err := futex.Wake(m.state.Addr(), n, true); err != nil {
		terminate("unlock of robust mutex %p: %v", m, err)
	}
}
