// Copyright 2018 Google LLC
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
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	expected := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if diff := cmp.Diff(expected, tw.lines); diff != "" {
		t.Errorf("Writer lines mismatch (-want +got):\n%s", diff)
	}
}

func TestWriterAppendsNewline(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("no newline")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}
	if got, want := strings.Join(tw.lines, ""), "no newline\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestGoogleEmitter(t *testing.T) {
	tw := &testWriter{}
	e := GoogleEmitter{&Writer{Next: tw}}
	ts := time.Date(2026, time.May, 4, 13, 5, 9, 123456000, time.UTC)
	e.Emit(0, Info, ts, "hello %d", 42)
	if len(tw.lines) != 1 {
		t.Fatalf("got %d lines, want 1: %v", len(tw.lines), tw.lines)
	}
	line := tw.lines[0]
	if !strings.HasPrefix(line, "I0504 13:05:09.123456 ") {
		t.Errorf("bad header in %q", line)
	}
	if !strings.HasSuffix(line, "] hello 42\n") {
		t.Errorf("bad message in %q", line)
	}
}

func TestJSONEmitter(t *testing.T) {
	tw := &testWriter{}
	e := JSONEmitter{Writer: &Writer{Next: tw}}
	e.Emit(0, Warning, time.Unix(0, 0), "mapped %d pages", 3)
	if len(tw.lines) == 0 {
		t.Fatalf("nothing written")
	}
	var got jsonLog
	if err := json.Unmarshal([]byte(tw.lines[0]), &got); err != nil {
		t.Fatalf("Unmarshal(%q): %v", tw.lines[0], err)
	}
	if got.Level != Warning {
		t.Errorf("level = %v, want %v", got.Level, Warning)
	}
	if got.Msg != "mapped 3 pages" {
		t.Errorf("msg = %q, want %q", got.Msg, "mapped 3 pages")
	}
	if !strings.HasPrefix(got.Source, "log_test.go:") {
		t.Errorf("source = %q, want log_test.go:<line>", got.Source)
	}
	if got.Fields != nil {
		t.Errorf("fields = %v, want none", got.Fields)
	}
}

func TestJSONEmitterFields(t *testing.T) {
	tw := &testWriter{}
	e := JSONEmitter{
		Writer: &Writer{Next: tw},
		Fields: map[string]any{"pid": 42, "memory_frames": 4096},
	}
	e.Emit(0, Info, time.Unix(0, 0), "boot")
	e.Emit(0, Debug, time.Unix(1, 0), "tick")

	var recs []map[string]any
	for _, line := range tw.lines {
		if line == "\n" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("Unmarshal(%q): %v", line, err)
		}
		recs = append(recs, rec)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2: %q", len(recs), tw.lines)
	}
	want := map[string]any{"pid": float64(42), "memory_frames": float64(4096)}
	for i, rec := range recs {
		if diff := cmp.Diff(want, rec["fields"]); diff != "" {
			t.Errorf("record %d fields mismatch (-want +got):\n%s", i, diff)
		}
	}
	if recs[0]["msg"] != "boot" || recs[1]["msg"] != "tick" {
		t.Errorf("msgs = %v, %v", recs[0]["msg"], recs[1]["msg"])
	}
}

func TestJSONEmitterBadField(t *testing.T) {
	tw := &testWriter{}
	e := JSONEmitter{
		Writer: &Writer{Next: tw},
		Fields: map[string]any{"ch": make(chan int)},
	}
	e.Emit(0, Warning, time.Unix(0, 0), "still logged")
	var got jsonLog
	if err := json.Unmarshal([]byte(tw.lines[0]), &got); err != nil {
		t.Fatalf("Unmarshal(%q): %v", tw.lines[0], err)
	}
	if got.Msg != "still logged" {
		t.Errorf("msg = %q, want %q", got.Msg, "still logged")
	}
	if _, ok := got.Fields["fields_error"]; !ok {
		t.Errorf("fields = %v, want fields_error", got.Fields)
	}
}

// Tests that Level can marshal/unmarshal properly.
func TestLevelMarshal(t *testing.T) {
	lvs := []Level{Warning, Info, Debug}
	for _, lv := range lvs {
		bs, err := lv.MarshalJSON()
		if err != nil {
			t.Errorf("error marshaling %v: %v", lv, err)
		}
		var lv2 Level
		if err := lv2.UnmarshalJSON(bs); err != nil {
			t.Errorf("error unmarshaling %v: %v", bs, err)
		}
		if lv != lv2 {
			t.Errorf("marshal/unmarshal level got %v wanted %v", lv2, lv)
		}
	}
}

// Test that integers can be properly unmarshaled.
func TestUnmarshalFromInt(t *testing.T) {
	tcs := []struct {
		i    int
		want Level
	}{
		{0, Warning},
		{1, Info},
		{2, Debug},
	}

	for _, tc := range tcs {
		j, err := json.Marshal(tc.i)
		if err != nil {
			t.Errorf("error marshaling %v: %v", tc.i, err)
		}
		var lv Level
		if err := lv.UnmarshalJSON(j); err != nil {
			t.Errorf("error unmarshaling %v: %v", j, err)
		}
		if lv != tc.want {
			t.Errorf("marshal/unmarshal %v got %v want %v", tc.i, lv, tc.want)
		}
	}
}

type countingLogger struct {
	BasicLogger
	n int
}

func (c *countingLogger) Warningf(string, ...any) { c.n++ }

func TestRateLimitedLogger(t *testing.T) {
	c := &countingLogger{BasicLogger: BasicLogger{Level: Debug}}
	l := RateLimitedLogger(c, time.Hour)
	for i := 0; i < 10; i++ {
		l.Warningf("unsupported syscall %d", i)
	}
	if c.n != 1 {
		t.Errorf("logged %d times, want 1", c.n)
	}
}

func TestKeyedRateLimitedLogger(t *testing.T) {
	c := &countingLogger{BasicLogger: BasicLogger{Level: Debug}}
	l := KeyedRateLimitedLogger(c, time.Hour)
	for i := 0; i < 10; i++ {
		l.For(uint64(500)).Warningf("unsupported syscall %d", 500)
		l.For(uint64(501)).Warningf("unsupported syscall %d", 501)
	}
	if c.n != 2 {
		t.Errorf("logged %d times, want 2", c.n)
	}
}

func TestKeyedRateLimitedLoggerOverflow(t *testing.T) {
	c := &countingLogger{BasicLogger: BasicLogger{Level: Debug}}
	l := KeyedRateLimitedLogger(c, time.Hour)
	for i := 0; i < maxLimiterKeys; i++ {
		l.For(i).Warningf("key %d", i)
	}
	if c.n != maxLimiterKeys {
		t.Fatalf("logged %d times, want %d", c.n, maxLimiterKeys)
	}
	// Every key past the cap shares one limiter.
	for i := maxLimiterKeys; i < 2*maxLimiterKeys; i++ {
		l.For(i).Warningf("key %d", i)
	}
	if want := maxLimiterKeys + 1; c.n != want {
		t.Errorf("logged %d times, want %d", c.n, want)
	}
}

func TestBasicLoggerLevel(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("hidden")
	l.Infof("shown")
	if got, want := strings.Join(tw.lines, ""), "shown\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	l.SetLevel(Debug)
	if !l.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) = false after SetLevel(Debug)")
	}
}
