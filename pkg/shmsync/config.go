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
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Environment overrides applied by DefaultConfig.
const (
	EnvCondVarEmulation = "SHMSYNC_CONDVAR_EMULATION"
	EnvSemaphoreName    = "SHMSYNC_SEMAPHORE_NAME"
	EnvOwnerPollMax     = "SHMSYNC_OWNER_POLL_MAX"
)

const (
	defaultSemaphoreName    = "shmsync-condvar"
	defaultOwnerPollInitial = time.Millisecond
	defaultOwnerPollMax     = 100 * time.Millisecond
)

// Config is used to tune the package.
type Config struct {
	// ForceEmulation makes process-shared condition variables use the
	// semaphore-based emulation even where futexes are available.
	ForceEmulation bool

	// SemaphoreName names the counting semaphore used by emulated condition
	// variables. Every process sharing a condition variable must agree on it.
	SemaphoreName string

	// SemaphoreDir holds the semaphore backing files.
	SemaphoreDir string

	// DeriveSemaphoreName gives each bound condition variable its own
	// semaphore, named after SemaphoreName and the device, inode and offset
	// passed to Bind.
	DeriveSemaphoreName bool

	// OwnerPollInitial and OwnerPollMax bound how often a blocked robust
	// locker checks whether the holder is still alive.
	OwnerPollInitial time.Duration
	OwnerPollMax     time.Duration

	// Metrics, when set, receives counters for recovery and waiting.
	Metrics *Metrics

	// Tracer records a span around every robust recovery.
	Tracer trace.Tracer
}

// DefaultConfig is used to create a default config, with environment
// overrides applied.
func DefaultConfig() *Config {
	c := &Config{
		SemaphoreName:    defaultSemaphoreName,
		SemaphoreDir:     defaultSemaphoreDir(),
		OwnerPollInitial: defaultOwnerPollInitial,
		OwnerPollMax:     defaultOwnerPollMax,
		Tracer:           noop.NewTracerProvider().Tracer("github.com/srediag/shmsync"),
	}
	applyEnv(c)
	return c
}

func defaultSemaphoreDir() string {
	if st, err := os.Stat("/dev/shm"); err == nil && st.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

func applyEnv(c *Config) {
	if v, ok := os.LookupEnv(EnvCondVarEmulation); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ForceEmulation = b
		} else {
			logger.Warnf("ignoring %s=%q: %v", EnvCondVarEmulation, v, err)
		}
	}
	if v := os.Getenv(EnvSemaphoreName); v != "" {
		c.SemaphoreName = v
	}
	if v := os.Getenv(EnvOwnerPollMax); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.OwnerPollMax = d
		} else {
			logger.Warnf("ignoring %s=%q: %v", EnvOwnerPollMax, v, err)
		}
	}
}

// VerifyConfig is used to verify the sanity of configuration
func VerifyConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if config.SemaphoreName == "" || strings.ContainsRune(config.SemaphoreName, '/') {
		return fmt.Errorf("%w: semaphore name %q", ErrInvalidConfig, config.SemaphoreName)
	}
	if config.SemaphoreDir == "" {
		return fmt.Errorf("%w: empty semaphore dir", ErrInvalidConfig)
	}
	if config.OwnerPollInitial <= 0 {
		return fmt.Errorf("%w: OwnerPollInitial must be positive", ErrInvalidConfig)
	}
	if config.OwnerPollMax < config.OwnerPollInitial {
		return fmt.Errorf("%w: OwnerPollMax %v below OwnerPollInitial %v",
			ErrInvalidConfig, config.OwnerPollMax, config.OwnerPollInitial)
	}
	return nil
}

var current atomic.Pointer[Config]

func init() {
	current.Store(DefaultConfig())
}

// Configure installs config for the whole process. The condition variable
// strategy is fixed the first time it is needed, so ForceEmulation only takes
// effect when Configure runs before any shared condition variable is created.
func Configure(config *Config) error {
	if err := VerifyConfig(config); err != nil {
		return err
	}
	c := *config
	if c.Tracer == nil {
		c.Tracer = noop.NewTracerProvider().Tracer("github.com/srediag/shmsync")
	}
	current.Store(&c)
	return nil
}

// CurrentConfig returns a copy of the installed config.
func CurrentConfig() *Config {
	c := *current.Load()
	return &c
}

func config() *Config { return current.Load() }
