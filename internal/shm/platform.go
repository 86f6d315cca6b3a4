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

// Package shm contains platform-specific helpers for mapping shared regions.
package shm

import (
	"errors"
	"path/filepath"
	"strings"
)

// DevShm is where bare region names are placed on unix systems.
const DevShm = "/dev/shm"

// regionDir holds regions named without a directory.
var regionDir = DevShm

// ErrInsufficientSpace is returned when the backing filesystem cannot hold a
// new region of the requested size.
var ErrInsufficientSpace = errors.New("shm: insufficient space for region")

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr   []byte
	Fd     int
	Path   string
	Device uint64
	Inode  uint64

	// mapping is the file mapping object backing Addr on Windows.
	mapping uintptr
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	// Path is a file path, or a bare name placed under /dev/shm.
	Path string
	// Size is the mapping length. When zero an existing file is mapped whole.
	Size int
	// Create creates the file when missing and grows it to Size.
	Create bool
}

// ResolvePath places a bare name in the region directory (/dev/shm, or the
// temporary directory on Windows) and leaves paths alone.
func ResolvePath(name string) string {
	if strings.ContainsAny(name, "/"+string(filepath.Separator)) {
		return name
	}
	return filepath.Join(regionDir, name)
}

// Function implementations are provided in platform-specific files.
