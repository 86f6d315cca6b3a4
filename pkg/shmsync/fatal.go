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
	"os"

	"github.com/srediag/shmsync/internal/debug"
)

var logger = debug.New("shmsync", os.Stderr)

// exit is replaced in tests.
var exit = os.Exit

// terminate reports a usage or OS error the caller cannot handle and ends the
// process. It never returns.
func terminate(format string, a ...interface{}) {
	logger.ErrorfDepth(1, format, a...)
	exit(2)
	panic("shmsync: exit returned")
}
