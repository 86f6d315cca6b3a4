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

package atomics

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type CellTestSuite struct {
	suite.Suite
}

func TestCellTestSuite(t *testing.T) {
	suite.Run(t, new(CellTestSuite))
}

func (s *CellTestSuite) TestLoadStore() {
	c := New[uint32](7)
	s.Equal(uint32(7), c.Load())
	c.StoreRelease(9)
	s.Equal(uint32(9), c.LoadAcquire())
	c.StoreRelaxed(11)
	s.Equal(uint32(11), c.LoadRelaxed())
	c.Store(0)
	s.Equal(uint32(0), c.Load())
}

func (s *CellTestSuite) TestFetchAddSubReturnPrevious() {
	var c Cell[int64]
	s.Equal(int64(0), c.FetchAddAcquire(5))
	s.Equal(int64(5), c.FetchAddRelease(3))
	s.Equal(int64(8), c.FetchSubAcquire(2))
	s.Equal(int64(6), c.FetchSubRelease(1))
	s.Equal(int64(5), c.FetchSubRelaxed(10))
	s.Equal(int64(-5), c.Load())
}

func (s *CellTestSuite) TestUnsignedWrap() {
	var c Cell[uint32]
	s.Equal(uint32(0), c.FetchSubRelaxed(1))
	s.Equal(^uint32(0), c.Load())
	s.Equal(^uint32(0), c.FetchAddAcquire(1))
	s.Equal(uint32(0), c.Load())
}

func (s *CellTestSuite) TestCompareAndSwap() {
	c := New[uint64](1)

	expected := uint64(1)
	s.True(c.CompareAndSwap(&expected, 2))
	s.Equal(uint64(1), expected)
	s.Equal(uint64(2), c.Load())

	expected = 5
	s.False(c.CompareAndSwap(&expected, 6))
	s.Equal(uint64(2), expected, "expected must be refreshed on failure")
	s.Equal(uint64(2), c.Load())
}

func (s *CellTestSuite) TestExchange() {
	c := New[uintptr](3)
	s.Equal(uintptr(3), c.ExchangeAcquire(4))
	s.Equal(uintptr(4), c.Load())
}

func (s *CellTestSuite) TestNamedType() {
	type state uint32
	c := New[state](1)
	c.FetchAddRelease(state(2))
	s.Equal(state(3), c.Load())
}

func (s *CellTestSuite) TestAtViewsBackingMemory() {
	buf := make([]uint64, 2)
	c := At[uint32](unsafe.Pointer(&buf[1]))
	c.Store(0xdeadbeef)
	s.Equal(uint32(0xdeadbeef), *(*uint32)(unsafe.Pointer(&buf[1])))
	s.Equal((*uint32)(unsafe.Pointer(&buf[1])), c.Addr())
}

func (s *CellTestSuite) TestAtRejectsMisaligned() {
	buf := make([]uint64, 2)
	base := unsafe.Pointer(&buf[0])
	s.Panics(func() { At[uint64](unsafe.Add(base, 4)) })
	s.Panics(func() { At[uint32](unsafe.Add(base, 2)) })
	s.Panics(func() { At[uint32](nil) })
	s.NotPanics(func() { At[uint32](unsafe.Add(base, 4)) })
}

func TestCellSize(t *testing.T) {
	assert.Equal(t, uintptr(4), unsafe.Sizeof(Cell[uint32]{}))
	assert.Equal(t, uintptr(8), unsafe.Sizeof(Cell[int64]{}))
}

func TestConcurrentFetchAdd(t *testing.T) {
	const workers = 8
	iterations := 1_000_000
	if testing.Short() {
		iterations = 10_000
	}

	var c Cell[uint64]
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				c.FetchAddRelease(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, uint64(workers*iterations), c.LoadAcquire())
}

func TestConcurrentCompareAndSwapLoop(t *testing.T) {
	const workers = 8
	const iterations = 10_000

	var c Cell[int32]
	var successes Cell[int64]
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				cur := c.LoadRelaxed()
				for !c.CompareAndSwap(&cur, cur+1) {
				}
				successes.FetchAddRelease(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(workers*iterations), c.Load())
	require.Equal(t, int64(workers*iterations), successes.Load())
}

func BenchmarkFetchAdd(b *testing.B) {
	var c Cell[uint64]
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.FetchAddRelease(1)
		}
	})
}
