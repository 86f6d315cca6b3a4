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

package shmsync_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/srediag/shmsync/pkg/shm"
	"github.com/srediag/shmsync/pkg/shmsync"
)

func ExampleMutex() {
	m := shmsync.NewMutex()
	defer m.Destroy()

	counter := 0
	threads := make([]*shmsync.Thread, 4)
	for i := range threads {
		threads[i] = shmsync.NewThread(func() {
			for j := 0; j < 1000; j++ {
				_ = shmsync.WithLock(m, func() error {
					counter++
					return nil
				})
			}
		})
	}
	for _, t := range threads {
		t.Join()
	}
	fmt.Println(counter)
	// Output: 4000
}

func ExampleRobustMutex() {
	dir, _ := os.MkdirTemp("", "shmsync")
	defer os.RemoveAll(dir)

	ctx := context.Background()
	seg, err := shm.Open(ctx, shm.OpenOptions{Path: filepath.Join(dir, "lock"), Size: 4096, Create: true})
	if err != nil {
		fmt.Println(err)
		return
	}
	defer seg.Close(ctx)

	mu, _ := shm.Place[shmsync.RobustMutex](seg, 0)
	mu.Init()

	g, err := shmsync.NewRobustLock(mu, shmsync.RecoverFunc(func() error {
		// repair the shared state left by a dead holder
		return nil
	}))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(mu.Health())
	g.Unlock()
	// Output: consistent
}

func ExampleCondVar() {
	m := shmsync.NewMutex()
	cv := shmsync.NewCondVar()
	defer cv.Close()

	ready := false
	th := shmsync.NewThread(func() {
		g := shmsync.NewScopedLock(m)
		defer g.Unlock()
		ready = true
		cv.NotifyAll()
	})

	g := shmsync.NewScopedLock(m)
	for !ready {
		cv.Wait(g)
	}
	g.Unlock()
	th.Join()
	fmt.Println(ready)
	// Output: true
}
