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
	"errors"
	"fmt"
	"unsafe"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	internalshm "github.com/srediag/shmsync/internal/shm"
)

var (
	// ErrClosed is returned when a closed segment is used.
	ErrClosed = errors.New("shm: segment closed")
	// ErrOutOfBounds is returned when a placement does not fit the segment.
	ErrOutOfBounds = errors.New("shm: placement out of bounds")
	// ErrMisaligned is returned when a placement offset breaks the type's alignment.
	ErrMisaligned = errors.New("shm: misaligned placement")
)

// Segment is a mapped shared region.
type Segment struct {
	region *internalshm.MappedRegion
	size   int

	mapped metric.Int64UpDownCounter
	attrs  metric.MeasurementOption
}

// OpenOptions defines options for creating or opening a segment.
type OpenOptions struct {
	// Path is a file path, or a bare name placed under /dev/shm.
	Path string
	// Size is the region size in bytes. Zero maps an existing file whole.
	Size int
	// Create creates the file if it does not exist and grows it to Size.
	Create bool
	// Meter records segment instruments. A no-op meter is used when nil.
	Meter metric.Meter
}

// Open creates or opens a segment with the given options.
func Open(ctx context.Context, opts OpenOptions) (*Segment, error) {
	if opts.Path == "" {
		return nil, errors.New("shm: empty path")
	}
	if opts.Size < 0 || (opts.Create && opts.Size == 0) {
		return nil, fmt.Errorf("shm: invalid segment size %d", opts.Size)
	}
	meter := opts.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("github.com/srediag/shmsync/pkg/shm")
	}
	opens, err := meter.Int64Counter("shm.segment.opens",
		metric.WithDescription("Number of segment open attempts."))
	if err != nil {
		return nil, err
	}
	mapped, err := meter.Int64UpDownCounter("shm.segment.mapped",
		metric.WithDescription("Bytes currently mapped."),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Path:   opts.Path,
		Size:   opts.Size,
		Create: opts.Create,
	})
	if err != nil {
		opens.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", false)))
		return nil, err
	}
	attrs := metric.WithAttributes(attribute.String("path", region.Path))
	opens.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", true)))
	mapped.Add(ctx, int64(len(region.Addr)), attrs)
	return &Segment{
		region: region,
		size:   len(region.Addr),
		mapped: mapped,
		attrs:  attrs,
	}, nil
}

// Bytes returns the mapped memory. It is invalid after Close.
func (s *Segment) Bytes() []byte {
	return s.region.Addr
}

// Size returns the mapped length.
func (s *Segment) Size() int { return s.size }

// Path returns the backing file path.
func (s *Segment) Path() string { return s.region.Path }

// Device returns the device number of the backing file.
func (s *Segment) Device() uint64 { return s.region.Device }

// Inode returns the inode number of the backing file.
func (s *Segment) Inode() uint64 { return s.region.Inode }

// Close unmaps the segment. Records placed in it must no longer be used.
// Closing twice is a no-op.
func (s *Segment) Close(ctx context.Context) error {
	if s.region.Addr == nil {
		return nil
	}
	if err := internalshm.UnmapRegion(ctx, s.region); err != nil {
		return err
	}
	s.mapped.Add(ctx, -int64(s.size), s.attrs)
	return nil
}

// Remove unlinks the backing file. Mappings stay valid until closed.
func (s *Segment) Remove() error {
	return internalshm.RemoveRegion(s.region.Path)
}

// Place views the bytes at offset as a T. T must be a fixed-layout type
// without Go pointers; the returned pointer is valid until the segment is
// closed.
func Place[T any](s *Segment, offset int) (*T, error) {
	mem := s.Bytes()
	if mem == nil {
		return nil, ErrClosed
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	if offset < 0 || offset+size > len(mem) {
		return nil, fmt.Errorf("%w: %d bytes at %d in %d", ErrOutOfBounds, size, offset, len(mem))
	}
	p := unsafe.Pointer(unsafe.SliceData(mem[offset:]))
	if uintptr(p)%unsafe.Alignof(zero) != 0 {
		return nil, fmt.Errorf("%w: offset %d", ErrMisaligned, offset)
	}
	return (*T)(p), nil
}
