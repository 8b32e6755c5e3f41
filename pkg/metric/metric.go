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

// Package metric provides primitives for collecting metrics.
package metric

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"os4.dev/os4/pkg/prometheus"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrFieldHasNoAllowedValues indicates that the field needs to define some
	// allowed values to be a valid and useful field.
	ErrFieldHasNoAllowedValues = errors.New("metric field does not define any allowed values")

	// ErrTooManyFieldCombinations indicates that the number of unique
	// combinations of fields is too large to support.
	ErrTooManyFieldCombinations = errors.New("metric has too many combinations of allowed field values")
)

// Field contains the field name and allowed values for the metric which is
// used in registration of the metric.
type Field struct {
	// name is the metric field name.
	name string

	// allowedValues is the list of allowed values for the field.
	allowedValues []string
}

// NewField defines a new Field that can be used to break down a metric.
func NewField(name string, allowedValues []string) Field {
	return Field{
		name:          name,
		allowedValues: allowedValues,
	}
}

// fieldMapper maps multi-dimensional field values to a single integer key.
type fieldMapper struct {
	fields []Field

	// numFieldCombinations is the number of unique keys for all possible field
	// combinations.
	numFieldCombinations int
}

func newFieldMapper(fields ...Field) (fieldMapper, error) {
	numFieldCombinations := 1
	for _, f := range fields {
		if len(f.allowedValues) == 0 {
			return fieldMapper{}, ErrFieldHasNoAllowedValues
		}
		numFieldCombinations *= len(f.allowedValues)
		if numFieldCombinations > math.MaxUint32 {
			return fieldMapper{}, ErrTooManyFieldCombinations
		}
	}
	return fieldMapper{
		fields:               fields,
		numFieldCombinations: numFieldCombinations,
	}, nil
}

// lookup returns the key for the given field values. It panics if the number
// of values is wrong or a value is not allowed.
func (m fieldMapper) lookup(fieldValues ...string) int {
	if len(fieldValues) != len(m.fields) {
		panic("invalid field lookup depth")
	}
	idx := 0
	remaining := m.numFieldCombinations
Lookup:
	for i, val := range fieldValues {
		for valIdx, allowed := range m.fields[i].allowedValues {
			if val == allowed {
				remaining /= len(m.fields[i].allowedValues)
				idx += remaining * valIdx
				continue Lookup
			}
		}
		panic(fmt.Sprintf("disallowed value %q for field %q", val, m.fields[i].name))
	}
	return idx
}

// keyToMultiField is the reverse of lookup.
func (m fieldMapper) keyToMultiField(key int) []string {
	if len(m.fields) == 0 {
		return nil
	}
	values := make([]string, len(m.fields))
	remaining := m.numFieldCombinations
	for i, f := range m.fields {
		remaining /= len(f.allowedValues)
		values[i] = f.allowedValues[key/remaining]
		key %= remaining
	}
	return values
}

// Uint64Metric encapsulates a uint64 that represents some kind of metric to be
// monitored. It only ever increases.
type Uint64Metric struct {
	// fields is indexed by fieldMapper keys.
	fields []atomic.Uint64

	fieldMapper fieldMapper
}

// registeredMetric is a metric known to the exporter.
type registeredMetric struct {
	name        string
	description string
	cumulative  bool
	fields      fieldMapper

	// value returns the current value of the metric for the given set of
	// fields.
	value func(fieldValues ...string) uint64
}

var (
	mu sync.Mutex

	// allMetrics are the registered metrics, by name.
	allMetrics = make(map[string]*registeredMetric)
)

// RegisterCustomUint64Metric registers a metric whose value is computed by
// value on every export. cumulative metrics are exported as counters, others
// as gauges.
func RegisterCustomUint64Metric(name string, cumulative bool, description string, value func(...string) uint64, fields ...Field) error {
	f, err := newFieldMapper(fields...)
	if err != nil {
		return err
	}
	return register(&registeredMetric{
		name:        name,
		description: description,
		cumulative:  cumulative,
		fields:      f,
		value:       value,
	})
}

// MustRegisterCustomUint64Metric calls RegisterCustomUint64Metric and panics
// if it returns an error.
func MustRegisterCustomUint64Metric(name string, cumulative bool, description string, value func(...string) uint64, fields ...Field) {
	if err := RegisterCustomUint64Metric(name, cumulative, description, value, fields...); err != nil {
		panic(fmt.Sprintf("Unable to register metric %q: %s", name, err))
	}
}

func register(m *registeredMetric) error {
	if !strings.HasPrefix(m.name, "/") {
		return fmt.Errorf("metric name %q must start with '/'", m.name)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := allMetrics[m.name]; ok {
		return ErrNameInUse
	}
	allMetrics[m.name] = m
	return nil
}

// NewUint64Metric creates and registers a new cumulative metric with the given
// name.
//
// Metrics should be statically defined (i.e., at init).
func NewUint64Metric(name string, description string, fields ...Field) (*Uint64Metric, error) {
	f, err := newFieldMapper(fields...)
	if err != nil {
		return nil, err
	}
	m := &Uint64Metric{
		fieldMapper: f,
		fields:      make([]atomic.Uint64, f.numFieldCombinations),
	}
	if err := register(&registeredMetric{
		name:        name,
		description: description,
		cumulative:  true,
		fields:      f,
		value:       m.Value,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics if it returns an
// error.
func MustCreateNewUint64Metric(name string, description string, fields ...Field) *Uint64Metric {
	m, err := NewUint64Metric(name, description, fields...)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// Value returns the current value of the metric for the given set of fields.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Value(fieldValues ...string) uint64 {
	return m.fields[m.fieldMapper.lookup(fieldValues...)].Load()
}

// Increment increments the metric field by 1.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Increment(fieldValues ...string) {
	m.IncrementBy(1, fieldValues...)
}

// IncrementBy increments the metric by v.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) IncrementBy(v uint64, fieldValues ...string) {
	m.fields[m.fieldMapper.lookup(fieldValues...)].Add(v)
}

// promName converts a metric name such as "/kernel/syscalls" into a valid
// Prometheus name such as "kernel_syscalls".
func promName(name string) string {
	return strings.ReplaceAll(strings.TrimPrefix(name, "/"), "/", "_")
}

// Snapshot returns the current value of every registered metric, one data
// point per field combination.
func Snapshot() *prometheus.Snapshot {
	mu.Lock()
	metrics := make([]*registeredMetric, 0, len(allMetrics))
	for _, m := range allMetrics {
		metrics = append(metrics, m)
	}
	mu.Unlock()
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].name < metrics[j].name })

	s := prometheus.NewSnapshot()
	for _, m := range metrics {
		pm := &prometheus.Metric{
			Name: promName(m.name),
			Type: prometheus.TypeGauge,
			Help: m.description,
		}
		if m.cumulative {
			pm.Type = prometheus.TypeCounter
		}
		for key := 0; key < m.fields.numFieldCombinations; key++ {
			values := m.fields.keyToMultiField(key)
			if len(values) == 0 {
				s.Add(prometheus.NewIntData(pm, m.value()))
				continue
			}
			labels := make(map[string]string, len(values))
			for i, v := range values {
				labels[m.fields.fields[i].name] = v
			}
			s.Add(prometheus.LabeledIntData(pm, labels, m.value(values...)))
		}
	}
	return s
}

// WritePrometheus writes all registered metrics to w in Prometheus text
// format, prefixing every metric name with prefix.
func WritePrometheus(w io.Writer, prefix string) error {
	_, err := prometheus.Write(w, prometheus.ExportOptions{
		CommentHeader:  "os4 kernel metrics",
		ExporterPrefix: prefix,
	}, Snapshot())
	return err
}
