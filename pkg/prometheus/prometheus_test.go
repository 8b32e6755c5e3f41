// Copyright 2026 The gVisor Authors.
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

package prometheus

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/common/expfmt"
)

func TestWriteParses(t *testing.T) {
	timeNow = func() time.Time { return time.UnixMilli(1700000000000) }
	defer func() { timeNow = time.Now }()

	calls := &Metric{Name: "calls", Type: TypeCounter, Help: "Number of calls.\nPer kind."}
	frames := &Metric{Name: "frames", Type: TypeGauge}
	s := NewSnapshot().Add(
		LabeledIntData(calls, map[string]string{"kind": "b", "zone": "x"}, 2),
		NewIntData(frames, 7),
		LabeledIntData(calls, map[string]string{"kind": "a", "zone": "x"}, 5),
	)

	var sb strings.Builder
	n, err := Write(&sb, ExportOptions{CommentHeader: "test\nexport", ExporterPrefix: "os4_"}, s)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != sb.Len() {
		t.Errorf("Write returned %d, wrote %d bytes", n, sb.Len())
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("exported text does not parse: %v\n%s", err, sb.String())
	}
	var got []string
	for name := range families {
		got = append(got, name)
	}
	if diff := cmp.Diff([]string{"os4_calls", "os4_frames"}, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("families mismatch (-want +got):\n%s", diff)
	}
	if got := families["os4_calls"].GetHelp(); got != "Number of calls.\nPer kind." {
		t.Errorf("help = %q", got)
	}
	var total float64
	for _, m := range families["os4_calls"].GetMetric() {
		total += m.GetCounter().GetValue()
		if m.GetTimestampMs() != 1700000000000 {
			t.Errorf("timestamp = %d", m.GetTimestampMs())
		}
	}
	if total != 7 {
		t.Errorf("sum of calls = %v, want 7", total)
	}
	if got := families["os4_frames"].GetMetric()[0].GetGauge().GetValue(); got != 7 {
		t.Errorf("frames = %v, want 7", got)
	}
}

func TestLabelsSorted(t *testing.T) {
	got := orderedLabels(map[string]string{"b": "2", "a": "1"})
	if diff := cmp.Diff([]string{`a="1"`, `b="2"`}, got); diff != "" {
		t.Errorf("orderedLabels mismatch (-want +got):\n%s", diff)
	}
}
