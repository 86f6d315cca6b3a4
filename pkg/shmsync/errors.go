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
	"errors"
	"fmt"
)

var (
	// ErrNotRecoverable is returned by robust locking once a mutex has been
	// released while its protected state was inconsistent. It is terminal.
	ErrNotRecoverable = errors.New("shmsync: mutex is not recoverable")
	// ErrTimeoutUnsupported is returned when a timed wait is requested on an
	// emulated condition variable.
	ErrTimeoutUnsupported = errors.New("shmsync: timed wait is not supported by emulated condition variables")
	// ErrInvalidConfig is wrapped by VerifyConfig failures.
	ErrInvalidConfig = errors.New("shmsync: invalid config")
	// ErrPartUninitialized is returned when binding to a SharedPart that was
	// never initialized.
	ErrPartUninitialized = errors.New("shmsync: shared part is not initialized")
	// ErrSemaphoreClosed is returned by operations on a closed semaphore handle.
	ErrSemaphoreClosed = errors.New("shmsync: semaphore closed")
)

// RecoveryError is returned by RobustMutex.Lock when the recovery callback
// failed. The mutex is unrecoverable afterwards, so the error matches
// ErrNotRecoverable; Unwrap yields the callback's error.
type RecoveryError struct {
	Err error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("shmsync: recovery failed: %v", e.Err)
}

func (e *RecoveryError) Unwrap() error { return e.Err }

// Is reports ErrNotRecoverable as a match.
func (e *RecoveryError) Is(target error) bool {
	return target == ErrNotRecoverable
}
