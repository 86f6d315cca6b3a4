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
	"bytes"
	"errors"
	"os"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/shmsync/internal/debug"
	"github.com/srediag/shmsync/pkg/shm"
)

type MutexTestSuite struct {
	suite.Suite
}

func TestMutexTestSuite(t *testing.T) {
	suite.Run(t, new(MutexTestSuite))
}

func (s *MutexTestSuite) hammer(m *Mutex, workers, iterations int) int {
	counter := 0
	threads := make([]*Thread, workers)
	for i := range threads {
		threads[i] = NewThread(func() {
			for j := 0; j < iterations; j++ {
				g := NewScopedLock(m)
				counter++
				g.Unlock()
			}
		})
	}
	for _, t := range threads {
		t.Join()
	}
	return counter
}

func (s *MutexTestSuite) TestCounterLocal() {
	m := NewMutex()
	defer m.Destroy()
	s.Equal(8*10000, s.hammer(m, 8, 10000))
	s.False(m.IsProcessShared())
}

func (s *MutexTestSuite) TestCounterShared() {
	seg := openSegment(s.T(), 4096)
	m, err := shm.Place[Mutex](seg, 0)
	s.Require().NoError(err)
	m.InitProcessShared(false)
	s.True(m.IsProcessShared())
	s.Equal(8*10000, s.hammer(m, 8, 10000))
}

func (s *MutexTestSuite) TestCounterSharedRobust() {
	seg := openSegment(s.T(), 4096)
	m, err := shm.Place[Mutex](seg, 0)
	s.Require().NoError(err)
	m.InitProcessShared(true)
	s.Equal(4*5000, s.hammer(m, 4, 5000))
}

func (s *MutexTestSuite) TestTryLock() {
	m := NewMutex()
	s.True(m.TryLock())
	s.False(m.TryLock())
	m.Unlock()
	s.True(m.TryLock())
	m.Unlock()
}

func (s *MutexTestSuite) TestIsValid() {
	var zero Mutex
	s.False(zero.IsValid())

	m := NewMutex()
	s.True(m.IsValid())
	m.Lock()
	s.True(m.IsValid(), "a held mutex is still valid")
	m.Unlock()
	m.Destroy()
	s.False(m.IsValid())
}

func (s *MutexTestSuite) TestWithLockReleasesOnError() {
	m := NewMutex()
	want := errors.New("boom")
	err := WithLock(m, func() error {
		s.False(m.TryLock())
		return want
	})
	s.ErrorIs(err, want)
	s.True(m.TryLock())
	m.Unlock()
}

func (s *MutexTestSuite) TestWithLockReleasesOnPanic() {
	m := NewMutex()
	s.Panics(func() {
		_ = WithLock(m, func() error { panic("boom") })
	})
	s.True(m.TryLock())
	m.Unlock()
}

func (s *MutexTestSuite) TestScopedLockUnlockOnce() {
	m := NewMutex()
	g := NewScopedLock(m)
	s.Equal(m, g.Mutex())
	g.Unlock()
	g.Unlock()
	s.True(m.TryLock())
	m.Unlock()
}

func (s *MutexTestSuite) TestResettableLock() {
	m := NewMutex()
	g := NewDeferredLock(m)
	s.False(g.Owns())
	g.Release()

	g.Lock()
	s.True(g.Owns())
	s.False(m.TryLock())
	g.Unlock()
	s.False(g.Owns())
	g.Lock()
	g.Release()
	s.False(g.Owns())
	s.True(m.TryLock())
	m.Unlock()

	r := NewResettableLock(m)
	s.True(r.Owns())
	r.Release()
	s.True(m.TryLock())
	m.Unlock()
}

func TestMutexLayout(t *testing.T) {
	assert.Equal(t, uintptr(24), unsafe.Sizeof(Mutex{}))
	assert.Equal(t, uintptr(24), unsafe.Sizeof(RobustMutex{}))
	assert.Equal(t, uintptr(24), unsafe.Sizeof(SharedPart{}))
}

func TestMutexMisuseIsFatal(t *testing.T) {
	t.Run("unlock unlocked", func(t *testing.T) {
		m := NewMutex()
		mustBeFatal(t, m.Unlock)
	})
	t.Run("lock uninitialized", func(t *testing.T) {
		var m Mutex
		mustBeFatal(t, m.Lock)
	})
	t.Run("lock destroyed", func(t *testing.T) {
		m := NewMutex()
		m.Destroy()
		mustBeFatal(t, m.Lock)
	})
	t.Run("destroy locked", func(t *testing.T) {
		m := NewMutex()
		m.Lock()
		mustBeFatal(t, m.Destroy)
	})
	t.Run("destroy twice", func(t *testing.T) {
		m := NewMutex()
		m.Destroy()
		mustBeFatal(t, m.Destroy)
	})
	t.Run("guard of destroyed mutex", func(t *testing.T) {
		m := NewMutex()
		g := NewDeferredLock(m)
		m.Destroy()
		mustBeFatal(t, g.Lock)
	})
	t.Run("resettable double lock", func(t *testing.T) {
		g := NewResettableLock(NewMutex())
		mustBeFatal(t, g.Lock)
	})
	t.Run("resettable unlock without owning", func(t *testing.T) {
		g := NewDeferredLock(NewMutex())
		mustBeFatal(t, g.Unlock)
	})
	t.Run("log names the failing call site", func(t *testing.T) {
		var out bytes.Buffer
		saved := debug.LogLevel()
		debug.SetLogLevel(debug.LevelError)
		logger.SetOutput(&out)
		defer func() {
			logger.SetOutput(os.Stderr)
			debug.SetLogLevel(saved)
		}()
		m := NewMutex()
		mustBeFatal(t, m.Unlock)
		assert.Contains(t, out.String(), "unlock of unlocked mutex")
		assert.Contains(t, out.String(), "mutex.go:")
		assert.NotContains(t, out.String(), "fatal.go")
	})
}

func TestMutexExcludesAcrossGoroutines(t *testing.T) {
	m := NewMutex()
	var wg sync.WaitGroup
	inside := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Lock()
				inside++
				assert.Equal(t, 1, inside)
				inside--
				m.Unlock()
			}
		}()
	}
	wg.Wait()
}

func BenchmarkMutexUncontended(b *testing.B) {
	m := NewMutex()
	for i := 0; i < b.N; i++ {
		m.Lock()
		m.Unlock()
	}
}

func BenchmarkMutexContended(b *testing.B) {
	m := NewMutex()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Lock()
			m.Unlock()
		}
	})
}
