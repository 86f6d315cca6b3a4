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
	"fmt"

	"github.com/heptiolabs/healthcheck"
)

// RobustMutexCheck fails once m is unrecoverable or no longer initialized.
func RobustMutexCheck(m *RobustMutex) healthcheck.Check {
	return func() error {
		if !m.IsValid() {
			return fmt.Errorf("robust mutex %p is not initialized", m)
		}
		if m.Health() == NotRecoverable {
			return ErrNotRecoverable
		}
		return nil
	}
}

// RobustMutexReadiness fails while m awaits recovery after its holder died.
func RobustMutexReadiness(m *RobustMutex) healthcheck.Check {
	return func() error {
		switch h := m.Health(); h {
		case Consistent:
			return nil
		default:
			return fmt.Errorf("robust mutex %p is %s", m, h)
		}
	}
}

// RegisterChecks adds liveness and readiness checks for m to h.
func RegisterChecks(h healthcheck.Handler, name string, m *RobustMutex) {
	h.AddLivenessCheck(name, RobustMutexCheck(m))
	h.AddReadinessCheck(name, RobustMutexReadiness(m))
}
