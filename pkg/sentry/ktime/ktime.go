// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ktime provides the kernel's monotonic clock source.
package ktime

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Clock is a monotonic microsecond counter that starts at zero at boot.
type Clock interface {
	// NowMicroseconds returns the number of microseconds since boot. Successive
	// calls never return a smaller value.
	NowMicroseconds() uint64
}

// HostClock is a Clock backed by the host's CLOCK_MONOTONIC.
type HostClock struct {
	// boot is the CLOCK_MONOTONIC reading at boot, in nanoseconds.
	boot int64
}

// NewHostClock returns a HostClock whose zero is the current instant.
func NewHostClock() (*HostClock, error) {
	now, err := monotonicNow()
	if err != nil {
		return nil, err
	}
	return &HostClock{boot: now}, nil
}

// NowMicroseconds implements Clock.NowMicroseconds.
func (c *HostClock) NowMicroseconds() uint64 {
	now, err := monotonicNow()
	if err != nil {
		// CLOCK_MONOTONIC is always available; NewHostClock already
		// proved it.
		panic(fmt.Sprintf("clock_gettime(CLOCK_MONOTONIC): %v", err))
	}
	if now < c.boot {
		return 0
	}
	return uint64(now-c.boot) / uint64(time.Microsecond)
}

func monotonicNow() (int64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, err
	}
	return ts.Nano(), nil
}

// ManualClock is a Clock that only moves when told to. It is used by tests and
// by deterministic runs of the kernel.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock returns a ManualClock reading zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// NowMicroseconds implements Clock.NowMicroseconds.
func (c *ManualClock) NowMicroseconds() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d, rounded down to whole microseconds.
func (c *ManualClock) Advance(d time.Duration) {
	if d < 0 {
		panic(fmt.Sprintf("ManualClock.Advance(%v): clock cannot go backwards", d))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += uint64(d / time.Microsecond)
}

// Set sets the clock to us microseconds since boot.
//
// Preconditions: us >= c.NowMicroseconds().
func (c *ManualClock) Set(us uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if us < c.now {
		panic(fmt.Sprintf("ManualClock.Set(%d): clock is already at %d", us, c.now))
	}
	c.now = us
}
