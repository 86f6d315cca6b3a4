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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/heptiolabs/healthcheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(h healthcheck.Handler, path string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestHealthChecks(t *testing.T) {
	if !IsRobustOnThisPlatform() {
		t.Skip("robust mutexes are not supported on this platform")
	}
	r := NewRobustMutex()
	h := healthcheck.NewHandler()
	RegisterChecks(h, "db-lock", r)

	assert.Equal(t, http.StatusOK, probe(h, "/live"))
	assert.Equal(t, http.StatusOK, probe(h, "/ready"))

	forgeOwner(&r.m, deadPID(t))
	ok, err := r.LowLevelLock()
	require.NoError(t, err)
	require.False(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, probe(h, "/ready"))
	assert.Equal(t, http.StatusOK, probe(h, "/live"))

	r.Unlock()
	assert.Equal(t, http.StatusServiceUnavailable, probe(h, "/live"))
}

func TestRobustMutexCheckUninitialized(t *testing.T) {
	var r RobustMutex
	assert.Error(t, RobustMutexCheck(&r)())
	assert.NoError(t, RobustMutexReadiness(&r)())
}
