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
	"errors"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Group runs functions on a bounded pool of goroutines and waits for them.
type Group struct {
	pool *ants.Pool
	wg   sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// NewGroup returns a group running at most size functions at once.
func NewGroup(size int) (*Group, error) {
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &Group{pool: pool}, nil
}

// Go schedules fn. It blocks while the pool is full.
func (g *Group) Go(fn func() error) error {
	g.wg.Add(1)
	err := g.pool.Submit(func() {
		defer g.wg.Done()
		if err := fn(); err != nil {
			g.mu.Lock()
			g.errs = append(g.errs, err)
			g.mu.Unlock()
		}
	})
	if err != nil {
		g.wg.Done()
	}
	return err
}

// Wait blocks until every scheduled function returned and joins their errors.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return errors.Join(g.errs...)
}

// Release waits for running functions and frees the pool.
func (g *Group) Release() {
	g.wg.Wait()
	g.pool.Release()
}
