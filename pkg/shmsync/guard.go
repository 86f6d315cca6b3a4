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

// ScopedLock holds a mutex from construction until Unlock, which is meant to
// be deferred:
//
//	g := shmsync.NewScopedLock(m)
//	defer g.Unlock()
type ScopedLock struct {
	m      *Mutex
	locked bool
}

// NewScopedLock locks m and returns the guard.
func NewScopedLock(m *Mutex) *ScopedLock {
	m.Lock()
	return &ScopedLock{m: m, locked: true}
}

// Unlock releases the mutex. Only the first call has an effect.
func (g *ScopedLock) Unlock() {
	if !g.locked {
		return
	}
	g.locked = false
	g.m.Unlock()
}

// Mutex returns the guarded mutex.
func (g *ScopedLock) Mutex() *Mutex { return g.m }

// WithLock runs fn with m held and releases m on every exit path, panics
// included.
func WithLock(m *Mutex, fn func() error) error {
	g := NewScopedLock(m)
	defer g.Unlock()
	return fn()
}

// ResettableLock is a guard that can be unlocked and relocked, and may start
// out unlocked.
type ResettableLock struct {
	m      *Mutex
	locked bool
}

// NewResettableLock locks m and returns the guard.
func NewResettableLock(m *Mutex) *ResettableLock {
	m.Lock()
	return &ResettableLock{m: m, locked: true}
}

// NewDeferredLock returns a guard for m without locking it.
func NewDeferredLock(m *Mutex) *ResettableLock {
	return &ResettableLock{m: m}
}

// Lock acquires the mutex. Locking a guard that already owns it ends the
// process.
func (g *ResettableLock) Lock() {
	if g.locked {
		terminate("lock of resettable lock that already owns mutex %p", g.m)
	}
	g.m.Lock()
	g.locked = true
}

// Unlock releases the mutex. Unlocking a guard that does not own it ends the
// process.
func (g *ResettableLock) Unlock() {
	if !g.locked {
		terminate("unlock of resettable lock that does not own mutex %p", g.m)
	}
	g.locked = false
	g.m.Unlock()
}

// Owns reports whether the guard holds the mutex.
func (g *ResettableLock) Owns() bool { return g.locked }

// Release unlocks the mutex if the guard holds it. It is the deferred
// counterpart of the constructors.
func (g *ResettableLock) Release() {
	if g.locked {
		g.Unlock()
	}
}

// RobustLock holds a robust mutex from construction until Unlock.
type RobustLock struct {
	m      *RobustMutex
	locked bool
}

// NewRobustLock locks m, running rec if the previous holder died. On error the
// mutex is not held and no guard is returned.
func NewRobustLock(m *RobustMutex, rec Recoverer) (*RobustLock, error) {
	if err := m.Lock(rec); err != nil {
		return nil, err
	}
	return &RobustLock{m: m, locked: true}, nil
}

// Unlock releases the mutex. Only the first call has an effect.
func (g *RobustLock) Unlock() {
	if !g.locked {
		return
	}
	g.locked = false
	g.m.Unlock()
}
