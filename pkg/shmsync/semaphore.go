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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/shmsync/internal/futex"
	"github.com/srediag/shmsync/pkg/atomics"
	"github.com/srediag/shmsync/pkg/shm"
)

const semFilePrefix = "shmsync-sem."

// semWord is the shared state of a named semaphore.
type semWord struct {
	value   atomics.Cell[uint32]
	waiters atomics.Cell[uint32]
}

type semEntry struct {
	once sync.Once
	refs int // guarded by the registry shard lock
	seg  *shm.Segment
	word *semWord
	err  error
}

// semaphores maps backing file paths to the mapping shared by every handle
// this process holds on them.
var semaphores = cmap.New[*semEntry]()

// Semaphore is a handle on a named counting semaphore shared by every process
// that opens the same name. Handles opened on the same name within a process
// share one mapping.
type Semaphore struct {
	path   string
	entry  *semEntry
	closed atomic.Bool
}

// OpenSemaphore opens, creating it if needed, the semaphore called name. A new
// semaphore has value 0.
func OpenSemaphore(name string) (*Semaphore, error) {
	if name == "" || strings.ContainsRune(name, '/') {
		return nil, fmt.Errorf("shmsync: invalid semaphore name %q", name)
	}
	path := semaphorePath(name)
	e := semaphores.Upsert(path, &semEntry{}, func(exist bool, inMap, fresh *semEntry) *semEntry {
		if exist {
			inMap.refs++
			return inMap
		}
		fresh.refs = 1
		return fresh
	})
	e.once.Do(func() {
		e.seg, e.word, e.err = mapSemaphore(path)
		if e.err == nil {
			config().Metrics.semaphoreOpened(1)
			logger.Debugf("semaphore %s mapped", path)
		}
	})
	if e.err != nil {
		err := e.err
		releaseSemaphore(path)
		return nil, err
	}
	return &Semaphore{path: path, entry: e}, nil
}

// RemoveSemaphore deletes the backing file of the semaphore called name.
// Open handles keep working.
func RemoveSemaphore(name string) error {
	if err := os.Remove(semaphorePath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func semaphorePath(name string) string {
	return filepath.Join(config().SemaphoreDir, semFilePrefix+name)
}

func mapSemaphore(path string) (*shm.Segment, *semWord, error) {
	seg, err := shm.Open(context.Background(), shm.OpenOptions{
		Path:   path,
		Size:   int(unsafe.Sizeof(semWord{})),
		Create: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("shmsync: open semaphore: %w", err)
	}
	word, err := shm.Place[semWord](seg, 0)
	if err != nil {
		_ = seg.Close(context.Background())
		return nil, nil, err
	}
	return seg, word, nil
}

func releaseSemaphore(path string) error {
	var err error
	semaphores.RemoveCb(path, func(key string, e *semEntry, exists bool) bool {
		if !exists {
			return false
		}
		e.refs--
		if e.refs > 0 {
			return false
		}
		if e.seg != nil {
			err = e.seg.Close(context.Background())
			config().Metrics.semaphoreOpened(-1)
		}
		return true
	})
	return err
}

func (s *Semaphore) word() (*semWord, error) {
	if s.closed.Load() {
		return nil, ErrSemaphoreClosed
	}
	return s.entry.word, nil
}

// Post increments the value and wakes one waiter.
func (s *Semaphore) Post() error {
	w, err := s.word()
	if err != nil {
		return err
	}
	raceReleaseMerge(unsafe.Pointer(w))
	w.value.FetchAddRelease(1)
	if w.waiters.LoadAcquire() > 0 {
		if _, err := futex.Wake(w.value.Addr(), 1, true); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until the value is positive and decrements it.
func (s *Semaphore) Wait() error {
	_, err := s.wait(0)
	return err
}

// WaitTimeout is Wait bounded by timeout. It reports whether the value was
// decremented.
func (s *Semaphore) WaitTimeout(timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return s.TryWait()
	}
	return s.wait(timeout)
}

// TryWait decrements the value if it is positive and reports whether it did.
func (s *Semaphore) TryWait() (bool, error) {
	w, err := s.word()
	if err != nil {
		return false, err
	}
	for {
		v := w.value.LoadAcquire()
		if v == 0 {
			return false, nil
		}
		if w.value.CompareAndSwap(&v, v-1) {
			raceAcquire(unsafe.Pointer(w))
			return true, nil
		}
	}
}

func (s *Semaphore) wait(timeout time.Duration) (bool, error) {
	w, err := s.word()
	if err != nil {
		return false, err
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		v := w.value.LoadAcquire()
		if v > 0 {
			if w.value.CompareAndSwap(&v, v-1) {
				raceAcquire(unsafe.Pointer(w))
				return true, nil
			}
			continue
		}
		var err error
		w.waiters.FetchAddAcquire(1)
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				w.waiters.FetchSubRelease(1)
				return false, nil
			}
			err = futex.WaitTimeout(w.value.Addr(), 0, remaining, true)
		} else {
			err = futex.Wait(w.value.Addr(), 0, true)
		}
		w.waiters.FetchSubRelease(1)
		if err != nil && !errors.Is(err, futex.ErrTimeout) {
			return false, err
		}
	}
}

// Value returns the current value.
func (s *Semaphore) Value() uint32 {
	w, err := s.word()
	if err != nil {
		return 0
	}
	return w.value.LoadAcquire()
}

// Name returns the backing file path.
func (s *Semaphore) Name() string { return s.path }

// Close releases the handle. The mapping is dropped with the last handle of
// the process; the semaphore itself persists until RemoveSemaphore.
func (s *Semaphore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return releaseSemaphore(s.path)
}
