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

package shm

import (
	"fmt"
	"sync"
	"unsafe"
)

// Layout hands out aligned offsets inside a region of fixed size. Every
// process that maps the region must build the same Layout in the same order
// to agree on where records live.
type Layout struct {
	mu   sync.Mutex
	size int
	next int
}

// NewLayout returns a layout over size bytes.
func NewLayout(size int) *Layout {
	return &Layout{size: size}
}

// Reserve returns the offset of a new slot of size bytes aligned to align,
// which must be a power of two.
func (l *Layout) Reserve(size, align int) (int, error) {
	if align <= 0 || align&(align-1) != 0 {
		return 0, fmt.Errorf("shm: alignment %d is not a power of two", align)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	off := (l.next + align - 1) &^ (align - 1)
	if size < 0 || off+size > l.size {
		return 0, fmt.Errorf("%w: %d bytes at %d in %d", ErrOutOfBounds, size, off, l.size)
	}
	l.next = off + size
	return off, nil
}

// Used returns the number of bytes reserved so far, padding included.
func (l *Layout) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}

// ReserveFor reserves a slot sized and aligned for T.
func ReserveFor[T any](l *Layout) (int, error) {
	var zero T
	return l.Reserve(int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
}
