/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
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

// Package debug holds the leveled logger shared by the shmsync packages.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
)

// Log levels. LevelNoPrint silences every logger.
const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

// LevelEnv is read once at start-up to pick the initial level.
const LevelEnv = "SHMSYNC_LOG_LEVEL"

var (
	level atomic.Int32

	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{
		magenta,
		green,
		blue,
		yellow,
		red,
	}

	levelName = []string{
		"Trace",
		"Debug",
		"Info",
		"Warn",
		"Error",
	}
)

func init() {
	level.Store(LevelWarn)
	if v := os.Getenv(LevelEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= LevelTrace && n <= LevelNoPrint {
			level.Store(int32(n))
		}
	}
}

// SetLogLevel changes the level of every logger. The default is LevelWarn.
func SetLogLevel(l int) {
	if l >= LevelTrace && l <= LevelNoPrint {
		level.Store(int32(l))
	}
}

// LogLevel returns the current level.
func LogLevel() int {
	return int(level.Load())
}

// Logger writes colored, leveled lines tagged with a component name.
type Logger struct {
	name      string
	callDepth int

	mu  sync.Mutex
	out io.Writer
}

// New returns a logger for the named component. A nil out means stdout.
func New(name string, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		name:      name,
		out:       out,
		callDepth: 4,
	}
}

// SetOutput redirects the logger.
func (l *Logger) SetOutput(out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	l.mu.Lock()
	l.out = out
	l.mu.Unlock()
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	l.logf(LevelError, 0, format, a...)
}

func (l *Logger) Warnf(format string, a ...interface{}) {
	l.logf(LevelWarn, 0, format, a...)
}

func (l *Logger) Infof(format string, a ...interface{}) {
	l.logf(LevelInfo, 0, format, a...)
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	l.logf(LevelDebug, 0, format, a...)
}

func (l *Logger) Tracef(format string, a ...interface{}) {
	l.logf(LevelTrace, 0, format, a...)
}

// ErrorfDepth logs at error level and reports the caller skip frames above
// its own caller as the location. Helpers that log on behalf of their caller
// pass 1.
func (l *Logger) ErrorfDepth(skip int, format string, a ...interface{}) {
	l.logf(LevelError, skip, format, a...)
}

func (l *Logger) logf(lv, skip int, format string, a ...interface{}) {
	if int(level.Load()) > lv {
		return
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	l.prefix(buf, lv, skip)
	_, _ = fmt.Fprintf(buf, format, a...)
	_, _ = buf.WriteString(reset)
	_ = buf.WriteByte('\n')

	l.mu.Lock()
	_, err := l.out.Write(buf.B)
	l.mu.Unlock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger write failed: %v\n", err)
	}
}

func (l *Logger) prefix(buf *bytebufferpool.ByteBuffer, lv, skip int) {
	_, _ = buf.WriteString(colors[lv])
	_, _ = buf.WriteString(levelName[lv])
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(time.Now().Format("2006-01-02 15:04:05.999999"))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.location(skip))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.name)
	_ = buf.WriteByte(' ')
}

func (l *Logger) location(skip int) string {
	_, file, line, ok := runtime.Caller(l.callDepth + skip)
	if !ok {
		file = "???"
		line = 0
	}
	file = filepath.Base(file)
	return file + ":" + strconv.Itoa(line)
}
