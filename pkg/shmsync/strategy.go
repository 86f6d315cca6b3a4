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
	"fmt"
	"sync"

	"github.com/srediag/shmsync/internal/futex"
)

// Strategy is the implementation behind a condition variable.
type Strategy uint32

const (
	// NativeLocal parks waiters on a private futex; one process only.
	NativeLocal Strategy = iota + 1
	// NativeShared parks waiters on a shared futex inside the SharedPart.
	NativeShared
	// EmulatedShared uses a signal counter in the SharedPart and a named
	// counting semaphore. Timed waits are not available.
	EmulatedShared
)

func (s Strategy) String() string {
	switch s {
	case NativeLocal:
		return "native-local"
	case NativeShared:
		return "native-shared"
	case EmulatedShared:
		return "emulated-shared"
	default:
		return fmt.Sprintf("Strategy(%d)", uint32(s))
	}
}

func (s Strategy) valid() bool {
	return s >= NativeLocal && s <= EmulatedShared
}

var (
	strategyOnce sync.Once
	strategy     Strategy
)

// DetectStrategy returns the strategy used by process-shared condition
// variables created in this process. It is decided once, from the platform
// and from Config.ForceEmulation as installed at that time.
func DetectStrategy() Strategy {
	strategyOnce.Do(func() {
		switch {
		case config().ForceEmulation:
			strategy = EmulatedShared
		case !futex.Supported():
			strategy = EmulatedShared
		default:
			strategy = NativeShared
		}
		logger.Debugf("shared condition variables use %s", strategy)
	})
	return strategy
}
