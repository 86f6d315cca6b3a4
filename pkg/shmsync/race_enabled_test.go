//go:build race

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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shmsync/pkg/shm"
)

func TestRaceProxyPerPrimitive(t *testing.T) {
	require.True(t, raceEnabled)
	seg := openSegment(t, 4096)
	a, err := shm.Place[Mutex](seg, 0)
	require.NoError(t, err)
	b, err := shm.Place[Mutex](seg, 64)
	require.NoError(t, err)

	pa := raceProxy(unsafe.Pointer(a))
	assert.Equal(t, pa, raceProxy(unsafe.Pointer(a)))
	assert.NotEqual(t, pa, raceProxy(unsafe.Pointer(b)))
	assert.NotEqual(t, unsafe.Pointer(a), pa, "mapped memory is not tracked")
}

// TestSharedMutexGuardsHeapData fails under the race detector unless the
// mapped mutex reports its lock and unlock edges.
func TestSharedMutexGuardsHeapData(t *testing.T) {
	seg := openSegment(t, 4096)
	m, err := shm.Place[Mutex](seg, 0)
	require.NoError(t, err)
	m.InitProcessShared(true)

	guarded := map[int]int{}
	threads := make([]*Thread, 4)
	for i := range threads {
		threads[i] = NewThread(func() {
			for j := 0; j < 1000; j++ {
				_ = WithLock(m, func() error {
					guarded[i]++
					guarded[-1]++
					return nil
				})
			}
		})
	}
	for _, th := range threads {
		th.Join()
	}
	assert.Equal(t, 4000, guarded[-1])
}
