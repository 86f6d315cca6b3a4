//go:build linux

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
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region (Linux implementation).
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	path := ResolvePath(opts.Path)
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(path, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("fstat %s: %w", path, err)
	}
	size := opts.Size
	if size == 0 {
		size = int(st.Size)
	}
	if size <= 0 {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("map %s: empty region", path)
	}
	if st.Size < int64(size) {
		if !opts.Create {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("map %s: file holds %d bytes, want %d", path, st.Size, size)
		}
		if !CanCreateOnDevShm(uint64(size-int(st.Size)), path) {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("map %s: %w", path, ErrInsufficientSpace)
		}
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
	}
	addr, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MappedRegion{
		Addr:   addr,
		Fd:     fd,
		Path:   path,
		Device: uint64(st.Dev),
		Inode:  st.Ino,
	}, nil
}

// UnmapRegion unmaps and closes the shared memory region (Linux implementation).
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	if err := unix.Close(region.Fd); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// RemoveRegion unlinks the backing file. Existing mappings stay valid.
func RemoveRegion(path string) error {
	if err := os.Remove(ResolvePath(path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CanCreateOnDevShm reports whether size more bytes fit on /dev/shm. Paths
// outside /dev/shm are not checked.
func CanCreateOnDevShm(size uint64, path string) bool {
	if !strings.HasPrefix(path, DevShm) {
		return true
	}
	stat, err := disk.Usage(DevShm)
	if err != nil {
		return true
	}
	return stat.Free >= size
}
