//go:build windows

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
	"unsafe"

	"golang.org/x/sys/windows"
)

func init() {
	regionDir = os.TempDir()
}

// MapRegion maps or creates a file-backed region (Windows implementation).
// The file mapping is unnamed; processes share it through the file.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	path := ResolvePath(opts.Path)
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	disposition := uint32(windows.OPEN_EXISTING)
	if opts.Create {
		disposition = windows.OPEN_ALWAYS
	}
	fh, err := windows.CreateFile(name,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, disposition, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(fh, &info); err != nil {
		_ = windows.CloseHandle(fh)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	fileSize := int64(info.FileSizeHigh)<<32 | int64(info.FileSizeLow)
	size := opts.Size
	if size == 0 {
		size = int(fileSize)
	}
	if size <= 0 {
		_ = windows.CloseHandle(fh)
		return nil, fmt.Errorf("map %s: empty region", path)
	}
	if fileSize < int64(size) && !opts.Create {
		_ = windows.CloseHandle(fh)
		return nil, fmt.Errorf("map %s: file holds %d bytes, want %d", path, fileSize, size)
	}
	// a mapping larger than the file grows it
	mh, err := windows.CreateFileMapping(fh, nil, windows.PAGE_READWRITE,
		uint32(uint64(size)>>32), uint32(size), nil)
	if err != nil {
		_ = windows.CloseHandle(fh)
		return nil, fmt.Errorf("CreateFileMapping: %w", err)
	}
	addr, err := windows.MapViewOfFile(mh, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		_ = windows.CloseHandle(mh)
		_ = windows.CloseHandle(fh)
		return nil, fmt.Errorf("MapViewOfFile: %w", err)
	}
	return &MappedRegion{
		Addr:    unsafe.Slice((*byte)(unsafe.Pointer(addr)), size),
		Fd:      int(fh),
		Path:    path,
		Device:  uint64(info.VolumeSerialNumber),
		Inode:   uint64(info.FileIndexHigh)<<32 | uint64(info.FileIndexLow),
		mapping: uintptr(mh),
	}, nil
}

// UnmapRegion unmaps the view and closes its handles (Windows implementation).
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(unsafe.SliceData(region.Addr)))); err != nil {
		return fmt.Errorf("UnmapViewOfFile: %w", err)
	}
	region.Addr = nil
	if err := windows.CloseHandle(windows.Handle(region.mapping)); err != nil {
		return fmt.Errorf("close mapping: %w", err)
	}
	if err := windows.CloseHandle(windows.Handle(region.Fd)); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// RemoveRegion deletes the backing file. Files are opened with
// FILE_SHARE_DELETE, so existing mappings stay valid.
func RemoveRegion(path string) error {
	if err := os.Remove(ResolvePath(path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CanCreateOnDevShm always returns true; there is no /dev/shm on Windows.
func CanCreateOnDevShm(size uint64, path string) bool {
	return true
}
