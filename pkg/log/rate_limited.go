// Copyright 2022 The gVisor Authors.
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

package log

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type rateLimitedLogger struct {
	logger Logger
	limit  *rate.Limiter
}

func (rl *rateLimitedLogger) Debugf(format string, v ...any) {
	if rl.limit.Allow() {
		rl.logger.Debugf(format, v...)
	}
}

func (rl *rateLimitedLogger) Infof(format string, v ...any) {
	if rl.limit.Allow() {
		rl.logger.Infof(format, v...)
	}
}

func (rl *rateLimitedLogger) Warningf(format string, v ...any) {
	if rl.limit.Allow() {
		rl.logger.Warningf(format, v...)
	}
}

func (rl *rateLimitedLogger) IsLogging(level Level) bool {
	return rl.logger.IsLogging(level)
}

// BasicKeyedRateLimitedLogger is KeyedRateLimitedLogger on the global logger.
func BasicKeyedRateLimitedLogger(every time.Duration) *KeyedLogger {
	return KeyedRateLimitedLogger(globalLogger{}, every)
}

// RateLimitedLogger returns a Logger that logs to the provided logger no more
// than once per the provided duration.
func RateLimitedLogger(logger Logger, every time.Duration) Logger {
	return &rateLimitedLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), 1),
	}
}

// globalLogger forwards to whatever Log() returns at call time, so a
// rate-limited logger created before SetTarget still follows the target.
type globalLogger struct{}

func (globalLogger) Debugf(format string, v ...any) { Log().DebugfAtDepth(2, format, v...) }

func (globalLogger) Infof(format string, v ...any) { Log().InfofAtDepth(2, format, v...) }

func (globalLogger) Warningf(format string, v ...any) { Log().WarningfAtDepth(2, format, v...) }

func (globalLogger) IsLogging(level Level) bool { return Log().IsLogging(level) }

// maxLimiterKeys bounds the number of distinct keys a KeyedLogger tracks.
// Keys beyond it share a single limiter.
const maxLimiterKeys = 64

// KeyedLogger rate limits each key independently, so that a burst of one
// kind of message does not hide the first occurrence of another.
type KeyedLogger struct {
	logger Logger
	every  time.Duration

	mu       sync.Mutex
	limiters map[any]Logger
	overflow Logger
}

// KeyedRateLimitedLogger returns a KeyedLogger that logs to the provided
// logger no more than once per the provided duration for any one key.
func KeyedRateLimitedLogger(logger Logger, every time.Duration) *KeyedLogger {
	return &KeyedLogger{
		logger:   logger,
		every:    every,
		limiters: make(map[any]Logger),
		overflow: RateLimitedLogger(logger, every),
	}
}

// For returns the Logger for key. key must be comparable.
func (k *KeyedLogger) For(key any) Logger {
	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok := k.limiters[key]; ok {
		return l
	}
	if len(k.limiters) >= maxLimiterKeys {
		return k.overflow
	}
	l := RateLimitedLogger(k.logger, k.every)
	k.limiters[key] = l
	return l
}
