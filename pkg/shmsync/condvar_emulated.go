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
)

// waitEmulated registers as a waiter, remembers the signal counter and
// consumes semaphore permits until one arrives after the counter moved. A
// permit meant for another condition variable sharing the semaphore is posted
// back before retrying.
func (cv *CondVar) waitEmulated(part *SharedPart, unlock func(), lock func() error) error {
	part.waiters.FetchAddAcquire(1)
	mine := part.signalCounter.LoadAcquire()
	unlock()
	for {
		if err := cv.sem.Wait(); err != nil {
			terminate("wait on semaphore %s: %v", cv.sem.Name(), err)
		}
		if err := lock(); err != nil {
			return err
		}
		if part.signalCounter.LoadAcquire() != mine {
			raceAcquire(unsafe.Pointer(part))
			return nil
		}
		if err := cv.sem.Post(); err != nil {
			terminate("post on semaphore %s: %v", cv.sem.Name(), err)
		}
		runtime.Gosched()
		unlock()
	}
}

func (cv *CondVar) notifyEmulated(part *SharedPart, all bool) {
	part.signalCounter.FetchAddRelease(1)
	for {
		w := part.waiters.LoadAcquire()
		if w == 0 {
			return
		}
		if !part.waiters.CompareAndSwap(&w, w-1) {
			continue
		}
		if err := cv.sem.Post(); err != nil {
			terminate("post on semaphore %s: %v", cv.sem.Name(), err)
		}
		if !all {
			return
		}
	}
}
