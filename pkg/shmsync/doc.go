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

// Package shmsync provides threads, mutexes, robust mutexes and condition
// variables that work within one process and across processes sharing a
// memory-mapped region.
//
// Process-shared objects have a fixed layout without Go pointers. They are
// placed in a region with pkg/shm and initialized once, by one process, before
// the others use them:
//
//	seg, _ := shm.Open(ctx, shm.OpenOptions{Path: "db.lock", Size: 4096, Create: true})
//	mu, _ := shm.Place[shmsync.RobustMutex](seg, 0)
//	part, _ := shm.Place[shmsync.SharedPart](seg, 64)
//	mu.Init()
//	shmsync.InitSharedPart(part)
//
//	cv := shmsync.NewSharedCondVar()
//	_ = cv.Bind(part, shmsync.BindOptions{Device: seg.Device(), Inode: seg.Inode(), Offset: 64})
//
// A RobustMutex detects a holder process that died while locked and hands the
// next locker a Recoverer callback to repair the shared state.
//
// Programming errors such as unlocking an unlocked mutex, and unexpected OS
// failures, are logged and end the process.
package shmsync
