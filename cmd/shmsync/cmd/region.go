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

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/srediag/shmsync/pkg/atomics"
	"github.com/srediag/shmsync/pkg/shm"
	"github.com/srediag/shmsync/pkg/shmsync"
)

const (
	regionMagic   uint64 = 0x73686d73796e6331 // "shmsync1"
	regionVersion uint32 = 2
	regionSize           = 4096
)

var errNotInitialized = errors.New("region is not initialized, run shmsync init")

type header struct {
	magic   atomics.Cell[uint64]
	version atomics.Cell[uint32]
	_       uint32
}

// region is the demo layout shared by every subcommand: a header, a robust
// mutex, a condition variable shared part and a counter protected by the
// mutex.
type region struct {
	seg        *shm.Segment
	hdr        *header
	mu         *shmsync.RobustMutex
	part       *shmsync.SharedPart
	partOffset int
	counter    *atomics.Cell[uint64]
}

func openRegion(ctx context.Context, path string, create bool) (*region, error) {
	seg, err := shm.Open(ctx, shm.OpenOptions{Path: path, Size: regionSize, Create: create})
	if err != nil {
		return nil, err
	}
	r, err := place(seg)
	if err != nil {
		_ = seg.Close(ctx)
		return nil, err
	}
	return r, nil
}

func place(seg *shm.Segment) (*region, error) {
	l := shm.NewLayout(seg.Size())
	hdrOff, err := shm.ReserveFor[header](l)
	if err != nil {
		return nil, err
	}
	muOff, err := shm.ReserveFor[shmsync.RobustMutex](l)
	if err != nil {
		return nil, err
	}
	partOff, err := shm.ReserveFor[shmsync.SharedPart](l)
	if err != nil {
		return nil, err
	}
	ctrOff, err := shm.ReserveFor[atomics.Cell[uint64]](l)
	if err != nil {
		return nil, err
	}

	r := &region{seg: seg, partOffset: partOff}
	if r.hdr, err = shm.Place[header](seg, hdrOff); err != nil {
		return nil, err
	}
	if r.mu, err = shm.Place[shmsync.RobustMutex](seg, muOff); err != nil {
		return nil, err
	}
	if r.part, err = shm.Place[shmsync.SharedPart](seg, partOff); err != nil {
		return nil, err
	}
	if r.counter, err = shm.Place[atomics.Cell[uint64]](seg, ctrOff); err != nil {
		return nil, err
	}
	return r, nil
}

// initialize lays out fresh objects. The caller must have exclusive access.
func (r *region) initialize(mode shmsync.Strategy) {
	r.hdr.magic.StoreRelaxed(0)
	r.mu.Init()
	r.part.Init(mode)
	r.counter.StoreRelaxed(0)
	r.hdr.version.StoreRelaxed(regionVersion)
	r.hdr.magic.StoreRelease(regionMagic)
}

func (r *region) check() error {
	if r.hdr.magic.LoadAcquire() != regionMagic {
		return errNotInitialized
	}
	if v := r.hdr.version.LoadAcquire(); v != regionVersion {
		return fmt.Errorf("unsupported region version %d", v)
	}
	return nil
}

// condVar binds a new handle to the region's shared part.
func (r *region) condVar() (*shmsync.CondVar, error) {
	cv := shmsync.NewSharedCondVar()
	err := cv.Bind(r.part, shmsync.BindOptions{
		Device: r.seg.Device(),
		Inode:  r.seg.Inode(),
		Offset: uint64(r.partOffset),
	})
	if err != nil {
		return nil, err
	}
	return cv, nil
}

// recoverer returns the counter as is: every update is a single atomic store,
// so a dead holder cannot leave it torn.
func (r *region) recoverer(cmd string) shmsync.Recoverer {
	return shmsync.RecoverFunc(func() error {
		logger.Warnf("%s: previous holder died, counter is %d", cmd, r.counter.LoadAcquire())
		return nil
	})
}

func (r *region) close(ctx context.Context) error {
	return r.seg.Close(ctx)
}
