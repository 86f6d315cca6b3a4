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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReturnsWhenValueDiffers(t *testing.T) {
	var word uint32 = 1
	for _, shared := range []bool{false, true} {
		assert.NoError(t, Wait(&word, 0, shared))
		assert.NoError(t, WaitTimeout(&word, 0, time.Second, shared))
	}
}

func TestWaitTimeoutExpires(t *testing.T) {
	var word uint32
	start := time.Now()
	err := WaitTimeout(&word, 0, 20*time.Millisecond, false)
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestWakeWithoutWaiters(t *testing.T) {
	var word uint32
	n, err := Wake(&word, 1, true)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWakeReleasesWaiters(t *testing.T) {
	for _, shared := range []bool{false, true} {
		var word uint32
		var woken int32
		var wg sync.WaitGroup
		const waiters = 4
		for i := 0; i < waiters; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for atomic.LoadUint32(&word) == 0 {
					_ = Wait(&word, 0, shared)
				}
				atomic.AddInt32(&woken, 1)
			}()
		}
		time.Sleep(10 * time.Millisecond)
		atomic.StoreUint32(&word, 1)
		_, err := Wake(&word, 0, shared)
		require.NoError(t, err)
		wg.Wait()
		assert.Equal(t, int32(waiters), atomic.LoadInt32(&woken))
	}
}
