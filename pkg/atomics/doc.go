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

// Package atomics provides Cell, a typed word with explicit memory-ordering
// operations, for building non-blocking counters and flags, including ones that
// live in memory shared between processes.
//
// Example usage:
//
//	var hits atomics.Cell[uint64]
//	hits.FetchAddRelease(1)
//	n := hits.LoadAcquire()
//
//	// a cell inside a mapped region
//	ready := atomics.At[uint32](unsafe.Pointer(&mem[64]))
//	ready.StoreRelease(1)
package atomics
