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
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Word is the set of types a Cell can hold. Every member is 4 or 8 bytes wide,
// which is the range the supported targets load and store atomically when
// naturally aligned. Sub-word types (bool, int8, int16) are deliberately
// absent: sync/atomic has no operations for them.
type Word interface {
	~int32 | ~uint32 | ~int64 | ~uint64 | ~uintptr
}

// NoCopy may be embedded into structs which must not be copied after first
// use. go vet's copylocks check reports copies of structs containing it.
type NoCopy struct{}

// Lock is a no-op used by the copylocks checker.
func (*NoCopy) Lock() {}

// Unlock is a no-op used by the copylocks checker.
func (*NoCopy) Unlock() {}

// Cell is a single word that is only ever touched through atomic operations.
//
// The method names carry the ordering the caller asks for. Go's sync/atomic
// operations are all sequentially consistent, and a sequentially consistent
// operation satisfies every weaker ordering, so the acquire, release and
// relaxed variants are implemented by the same instructions. Callers must
// still pick the weakest variant that is correct for them; the name documents
// the protocol.
//
// The zero value is a cell holding zero. A Cell must not be copied after first
// use. A 64-bit Cell inside a heap struct is 8-byte aligned on 64-bit targets;
// on 32-bit targets place it first in the struct or use At, which rejects
// misaligned addresses.
type Cell[T Word] struct {
	_ NoCopy
	v T
}

// New returns a cell initialized to v. It must be called before the cell is
// shared.
func New[T Word](v T) *Cell[T] {
	return &Cell[T]{v: v}
}

// At views the memory at p as a Cell. p must stay valid, and must not move,
// for as long as the returned cell is used; memory-mapped regions and heap
// objects qualify. At panics when p is nil or not naturally aligned.
func At[T Word](p unsafe.Pointer) *Cell[T] {
	var zero T
	size := unsafe.Sizeof(zero)
	if p == nil {
		panic("atomics: nil cell address")
	}
	if uintptr(p)%size != 0 {
		panic(fmt.Sprintf("atomics: address %#x is not aligned to %d bytes", uintptr(p), size))
	}
	return (*Cell[T])(p)
}

// Addr exposes the address of the stored word for OS wait primitives such as
// futexes. The word must not be read or written through it.
func (c *Cell[T]) Addr() *T {
	return &c.v
}

func (c *Cell[T]) p32() *uint32 { return (*uint32)(unsafe.Pointer(&c.v)) }
func (c *Cell[T]) p64() *uint64 { return (*uint64)(unsafe.Pointer(&c.v)) }

func (c *Cell[T]) wide() bool { return unsafe.Sizeof(c.v) == 8 }

func (c *Cell[T]) load() T {
	if c.wide() {
		return T(atomic.LoadUint64(c.p64()))
	}
	return T(atomic.LoadUint32(c.p32()))
}

func (c *Cell[T]) store(v T) {
	if c.wide() {
		atomic.StoreUint64(c.p64(), uint64(v))
		return
	}
	atomic.StoreUint32(c.p32(), uint32(v))
}

// add returns the previous value. Negative deltas wrap through the unsigned
// representation, which gives two's complement subtraction.
func (c *Cell[T]) add(delta T) T {
	if c.wide() {
		d := uint64(delta)
		return T(atomic.AddUint64(c.p64(), d) - d)
	}
	d := uint32(delta)
	return T(atomic.AddUint32(c.p32(), d) - d)
}

func (c *Cell[T]) sub(delta T) T {
	if c.wide() {
		d := uint64(delta)
		return T(atomic.AddUint64(c.p64(), ^(d - 1)) + d)
	}
	d := uint32(delta)
	return T(atomic.AddUint32(c.p32(), ^(d - 1)) + d)
}

func (c *Cell[T]) swap(v T) T {
	if c.wide() {
		return T(atomic.SwapUint64(c.p64(), uint64(v)))
	}
	return T(atomic.SwapUint32(c.p32(), uint32(v)))
}

func (c *Cell[T]) cas(old, desired T) bool {
	if c.wide() {
		return atomic.CompareAndSwapUint64(c.p64(), uint64(old), uint64(desired))
	}
	return atomic.CompareAndSwapUint32(c.p32(), uint32(old), uint32(desired))
}

// Load is a sequentially consistent load.
func (c *Cell[T]) Load() T { return c.load() }

// LoadAcquire loads with acquire ordering: later memory operations are not
// reordered before it.
func (c *Cell[T]) LoadAcquire() T { return c.load() }

// LoadRelaxed loads with no ordering beyond atomicity.
func (c *Cell[T]) LoadRelaxed() T { return c.load() }

// Store is a sequentially consistent store.
func (c *Cell[T]) Store(v T) { c.store(v) }

// StoreRelease stores with release ordering: earlier memory operations are not
// reordered after it.
func (c *Cell[T]) StoreRelease(v T) { c.store(v) }

// StoreRelaxed stores with no ordering beyond atomicity.
func (c *Cell[T]) StoreRelaxed(v T) { c.store(v) }

// FetchAddAcquire adds v and returns the previous value.
func (c *Cell[T]) FetchAddAcquire(v T) T { return c.add(v) }

// FetchAddRelease adds v and returns the previous value.
func (c *Cell[T]) FetchAddRelease(v T) T { return c.add(v) }

// FetchSubAcquire subtracts v and returns the previous value.
func (c *Cell[T]) FetchSubAcquire(v T) T { return c.sub(v) }

// FetchSubRelease subtracts v and returns the previous value.
func (c *Cell[T]) FetchSubRelease(v T) T { return c.sub(v) }

// FetchSubRelaxed subtracts v and returns the previous value.
func (c *Cell[T]) FetchSubRelaxed(v T) T { return c.sub(v) }

// CompareAndSwap stores desired if the cell holds *expected and reports whether it
// did. On failure *expected is refreshed with a recent value of the cell, so a
// retry loop does not need a separate load.
//
// Callers must treat a false result as possibly spurious and loop: the
// contract is that of a weak compare-and-exchange, even though the current
// implementation never fails spuriously.
func (c *Cell[T]) CompareAndSwap(expected *T, desired T) bool {
	if c.cas(*expected, desired) {
		return true
	}
	*expected = c.load()
	return false
}

// ExchangeAcquire stores v and returns the previous value.
func (c *Cell[T]) ExchangeAcquire(v T) T { return c.swap(v) }
