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
	"os"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

var (
	selfOnce  sync.Once
	selfStart int64
)

// selfPID is the owner id this process writes into robust lock words.
func selfPID() uint32 {
	return uint32(os.Getpid()) & robustPIDMask
}

// processStart returns this process's creation time in milliseconds, or 0
// when it cannot be read.
func processStart() int64 {
	selfOnce.Do(func() {
		ctx := context.Background()
		p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
		if err != nil {
			logger.Warnf("cannot inspect own process: %v", err)
			return
		}
		if selfStart, err = p.CreateTimeWithContext(ctx); err != nil {
			logger.Warnf("cannot read own start time: %v", err)
		}
	})
	return selfStart
}

// ownerAlive probes the process recorded as a robust mutex owner. A zombie
// counts as dead. When start is known, a process with a different creation
// time is a reused pid and counts as dead too. Probe failures other than a
// missing process are reported as alive, so a lock is never stolen on doubt.
func ownerAlive(pid uint32, start int64) bool {
	ctx := context.Background()
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return !errors.Is(err, process.ErrorProcessNotRunning)
	}
	if status, err := p.StatusWithContext(ctx); err == nil {
		for _, s := range status {
			if s == process.Zombie {
				return false
			}
		}
	}
	if start != 0 {
		if created, err := p.CreateTimeWithContext(ctx); err == nil && created != start {
			return false
		}
	}
	return true
}
