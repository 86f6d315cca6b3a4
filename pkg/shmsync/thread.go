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
)

// Thread runs a function on its own OS thread and lets the creator wait for
// it. A Thread is joinable from Start until Join; it must be joined before it
// is started again. A Thread is not safe for concurrent use.
//
// A panic in the function ends the process.
type Thread struct {
	done     chan struct{}
	joinable bool
}

// NewThread starts fn on a new thread.
func NewThread(fn func()) *Thread {
	t := &Thread{}
	t.Start(fn)
	return t
}

// Start runs fn on a new thread. Starting a joinable Thread ends the process.
func (t *Thread) Start(fn func()) {
	if t.joinable {
		terminate("start of joinable thread %p", t)
	}
	done := make(chan struct{})
	t.done = done
	t.joinable = true
	go func() {
		// the thread exits with the goroutine
		runtime.LockOSThread()
		defer close(done)
		fn()
	}()
}

// Joinable reports whether the Thread was started and not yet joined.
func (t *Thread) Joinable() bool { return t.joinable }

// Join waits for the function to return. Joining a Thread that is not
// joinable ends the process.
func (t *Thread) Join() {
	if !t.joinable {
		terminate("join of non-joinable thread %p", t)
	}
	<-t.done
	t.joinable = false
	t.done = nil
}

// Move transfers the running thread to a new Thread, leaving t non-joinable.
func (t *Thread) Move() *Thread {
	moved := &Thread{done: t.done, joinable: t.joinable}
	t.done = nil
	t.joinable = false
	return moved
}
