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

// Package futex wraps the wait and wake primitives the lock and condition
// variable implementations park on. On Linux these are futex(2) calls; the
// shared flavour works on MAP_SHARED memory across processes. Elsewhere a
// polling fallback keeps the same contract.
package futex

import (
	"errors"
	"time"
)

// ErrTimeout is returned by WaitTimeout when the timeout elapsed before a wake.
var ErrTimeout = errors.New("futex: wait timed out")

// pollInterval bounds how long the fallback sleeps between checks.
const pollInterval = 50 * time.Microsecond
