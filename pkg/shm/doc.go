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

// Package shm maps file-backed shared regions and places fixed-layout records
// inside them, so that several processes can share locks, condition variables
// and atomic cells.
//
// The package is instrumented with OpenTelemetry metrics.
//
// Example usage:
//
//	seg, err := shm.Open(ctx, shm.OpenOptions{Path: "mydb", Size: 4096, Create: true})
//	if err != nil {
//		return err
//	}
//	defer seg.Close(ctx)
//	m, err := shm.Place[shmsync.Mutex](seg, 0)
//
// Platform-specific helpers are in internal/shm.
package shm
