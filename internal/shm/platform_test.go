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
	"context"
	"math"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	assert.Equal(t, filepath.Join(regionDir, "region"), ResolvePath("region"))
	assert.Equal(t, "/tmp/region", ResolvePath("/tmp/region"))
}

func TestCanCreateOnDevShm(t *testing.T) {
	switch runtime.GOOS {
	case "linux":
		// only /dev/shm is checked
		assert.Equal(t, true, CanCreateOnDevShm(math.MaxUint64, "sdffafds"))
		stat, err := disk.Usage(DevShm)
		if err != nil {
			t.Skip(err)
		}
		assert.Equal(t, true, CanCreateOnDevShm(stat.Free, "/dev/shm/xxx"))
		assert.Equal(t, false, CanCreateOnDevShm(stat.Free+1, "/dev/shm/yyy"))
	default:
		assert.Equal(t, true, CanCreateOnDevShm(math.MaxUint64, "/dev/shm/xxx"))
	}
}

func TestMapRegionSharesBytes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "region")

	a, err := MapRegion(ctx, MapOptions{Path: path, Size: 4096, Create: true})
	require.NoError(t, err)
	defer func() { _ = UnmapRegion(ctx, a) }()

	b, err := MapRegion(ctx, MapOptions{Path: path})
	require.NoError(t, err)
	defer func() { _ = UnmapRegion(ctx, b) }()

	require.Len(t, b.Addr, 4096)
	a.Addr[100] = 42
	assert.Equal(t, byte(42), b.Addr[100])
	assert.Equal(t, a.Device, b.Device)
	assert.Equal(t, a.Inode, b.Inode)
	assert.NotZero(t, a.Inode)
}

func TestMapRegionWithoutCreate(t *testing.T) {
	_, err := MapRegion(context.Background(), MapOptions{Path: filepath.Join(t.TempDir(), "missing"), Size: 64})
	assert.Error(t, err)
}

func TestUnmapRegionTwice(t *testing.T) {
	ctx := context.Background()
	r, err := MapRegion(ctx, MapOptions{Path: filepath.Join(t.TempDir(), "r"), Size: 64, Create: true})
	require.NoError(t, err)
	require.NoError(t, UnmapRegion(ctx, r))
	assert.NoError(t, UnmapRegion(ctx, r))
	assert.NoError(t, RemoveRegion(r.Path))
	assert.NoError(t, RemoveRegion(r.Path))
}
