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
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srediag/shmsync/pkg/shm"
)

type exitCode int

// catchFatal makes terminate panic with exitCode instead of exiting.
func catchFatal(t *testing.T) {
	prev := exit
	exit = func(code int) { panic(exitCode(code)) }
	t.Cleanup(func() { exit = prev })
}

// mustBeFatal runs fn and requires it to reach terminate.
func mustBeFatal(t *testing.T, fn func()) {
	t.Helper()
	catchFatal(t)
	require.PanicsWithValue(t, exitCode(2), fn)
}

// openSegment maps a fresh region in a temporary directory.
func openSegment(t *testing.T, size int) *shm.Segment {
	t.Helper()
	ctx := context.Background()
	seg, err := shm.Open(ctx, shm.OpenOptions{
		Path:   filepath.Join(t.TempDir(), "region"),
		Size:   size,
		Create: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = seg.Close(ctx) })
	return seg
}

// deadPID returns the pid of a child that already exited and was reaped.
func deadPID(t *testing.T) uint32 {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	require.NoError(t, cmd.Run())
	return uint32(cmd.Process.Pid)
}

// forgeOwner makes pid the recorded holder of m.
func forgeOwner(m *Mutex, pid uint32) {
	m.state.Store(pid & robustPIDMask)
	m.ownerStart.Store(0)
}

// uniqueName returns a semaphore name private to the running test.
func uniqueName(t *testing.T) string {
	name := strings.NewReplacer("/", "-", " ", "-").Replace(t.Name())
	name = fmt.Sprintf("test-%d-%s-%d", os.Getpid(), name, time.Now().UnixNano())
	t.Cleanup(func() { _ = RemoveSemaphore(name) })
	return name
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, time.Millisecond)
}
