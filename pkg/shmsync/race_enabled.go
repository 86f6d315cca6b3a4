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
	"runtime"
	"unsafe"

	cmap "github.com/orcaman/concurrent-map/v2"
)

const raceEnabled = true

// raceProxies maps the address of a primitive to a heap word standing in for
// it. The race detector ignores mapped memory, so the happens-before edges of
// a process-shared primitive are recorded on its proxy.
var raceProxies = cmap.NewWithCustomShardingFunction[uintptr, *uint64](func(key uintptr) uint32 {
	return uint32(key >> 3)
})

func raceProxy(addr unsafe.Pointer) unsafe.Pointer {
	key := uintptr(addr)
	if p, ok := raceProxies.Get(key); ok {
		return unsafe.Pointer(p)
	}
	p := raceProxies.Upsert(key, new(uint64), func(exist bool, inMap, fresh *uint64) *uint64 {
		if exist {
			return inMap
		}
		return fresh
	})
	return unsafe.Pointer(p)
}

// raceAcquire records that the caller synchronized with every release on
// the primitive at addr.
func raceAcquire(addr unsafe.Pointer) {
	runtime.RaceAcquire(raceProxy(addr))
}

// raceReleaseMerge publishes the caller's writes to the next acquire on the
// primitive at addr.
func raceReleaseMerge(addr unsafe.Pointer) {
	runtime.RaceReleaseMerge(raceProxy(addr))
}
