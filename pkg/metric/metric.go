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

// Package metric provides primitives for collecting metrics.
//
// Metrics are registered at init and exported on demand in the Prometheus
// text exposition format.
package metric

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInitializationDone indicates that the caller tried to create a
	// new metric after initialization.
	ErrInitializationDone = errors.New("metric cannot be created after initialization is complete")

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

// fieldMapper maps a combination of field values to a single index, in
// row-major order over the fields' allowed values.
type fieldMapper struct {
	fields []Field

	// numFieldCombinations is the number of unique keys for all possible
	// field combinations.
	numFieldCombinations int
}

func newFieldMapper(fields ...Field) (fieldMapper, error) {
	n := 1
	for _, f := range fields {
		if len(f.allowedValues) == 0 {
			return fieldMapper{}, ErrFieldHasNoAllowedValues
		}
		n *= len(f.allowedValues)
		if n > math.MaxUint16 {
			return fieldMapper{}, ErrTooManyFieldCombinations
		}
	}
	return fieldMapper{fields: fields, numFieldCombinations: n}, nil
}

// lookup returns the index for the given field values. It panics if the
// number of values is wrong or a value is not allowed.
func (m fieldMapper) lookup(values ...string) int {
	if len(values) != len(m.fields) {
		panic("invalid field lookup depth")
	}
	idx := 0
	for i, val := range values {
		allowed := m.fields[i].allowedValues
		valIdx := -1
		for j, a := range allowed {
			if a == val {
				valIdx = j
				break
			}
		}
		if valIdx < 0 {
			panic(fmt.Sprintf("disallowed value %q for field %q", val, m.fields[i].name))
		}
		idx = idx*len(allowed) + valIdx
	}
	return idx
}

// keyToMultiField is the reverse of lookup.
func (m fieldMapper) keyToMultiField(key int) []string {
	if len(m.fields) == 0 {
		return nil
	}
	values := make([]string, len(m.fields))
	for i := len(m.fields) - 1; i >= 0; i-- {
		allowed := m.fields[i].allowedValues
		values[i] = allowed[key%len(allowed)]
		key /= len(allowed)
	}
	return values
}

// Uint64Metric encapsulates a uint64 that represents some kind of metric to be
// monitored. It is exported as a Prometheus counter.
type Uint64Metric struct {
	name        string
	description string

	// fields holds one counter per field-value combination.
	fields []atomic.Uint64

	// fieldMapper is used to generate index keys for the fields array (above)
	// based on field value combinations, and vice-versa.
	fieldMapper fieldMapper
}

// Info describes a registered metric.
type Info struct {
	Name        string
	Description string
	Fields      []string
}

// metricSet holds the registered metrics.
type metricSet struct {
	mu sync.Mutex

	// initialized indicates that all metrics are registered. The set is
	// immutable once initialized is true.
	initialized bool

	uint64Metrics map[string]*Uint64Metric
}

func makeMetricSet() *metricSet {
	return &metricSet{uint64Metrics: make(map[string]*Uint64Metric)}
}

// allMetrics are the registered metrics.
var allMetrics = makeMetricSet()

// Initialize marks registration as complete. Metrics created afterwards fail
// with ErrInitializationDone.
func Initialize() error {
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	if allMetrics.initialized {
		return errors.New("metric.Initialize called twice")
	}
	allMetrics.initialized = true
	return nil
}

// NewUint64Metric creates and registers a new cumulative metric with the given
// name.
//
// Metrics must be statically defined (i.e., at init).
func NewUint64Metric(name string, description string, fields ...Field) (*Uint64Metric, error) {
	f, err := newFieldMapper(fields...)
	if err != nil {
		return nil, err
	}
	m := &Uint64Metric{
		name:        name,
		description: description,
		fields:      make([]atomic.Uint64, f.numFieldCombinations),
		fieldMapper: f,
	}

	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	if allMetrics.initialized {
		return nil, ErrInitializationDone
	}
	if _, ok := allMetrics.uint64Metrics[name]; ok {
		return nil, ErrNameInUse
	}
	allMetrics.uint64Metrics[name] = m
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

// Name returns the metric's registered name.
func (m *Uint64Metric) Name() string { return m.name }

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

// sortedMetrics returns the registered metrics ordered by name.
func sortedMetrics() []*Uint64Metric {
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	ms := make([]*Uint64Metric, 0, len(allMetrics.uint64Metrics))
	for _, m := range allMetrics.uint64Metrics {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].name < ms[j].name })
	return ms
}

// Registered returns a description of every registered metric, sorted by
// name.
func Registered() []Info {
	var infos []Info
	for _, m := range sortedMetrics() {
		info := Info{Name: m.name, Description: m.description}
		for _, f := range m.fieldMapper.fields {
			info.Fields = append(info.Fields, f.name)
		}
		infos = append(infos, info)
	}
	return infos
}
