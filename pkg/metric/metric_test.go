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

package metric

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/common/expfmt"
)

func resetTest() {
	allMetrics = makeMetricSet()
}

func TestRegisterAndIncrement(t *testing.T) {
	resetTest()
	m, err := NewUint64Metric("/frames/evicted", "Frames evicted.")
	if err != nil {
		t.Fatalf("NewUint64Metric got err %v want nil", err)
	}
	m.Increment()
	m.IncrementBy(4)
	if got := m.Value(); got != 5 {
		t.Errorf("m.Value() = %d, want 5", got)
	}
	if _, err := NewUint64Metric("/frames/evicted", "again"); err != ErrNameInUse {
		t.Errorf("duplicate NewUint64Metric got err %v want %v", err, ErrNameInUse)
	}
}

func TestInitializeFreezesRegistration(t *testing.T) {
	resetTest()
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize(): %v", err)
	}
	if _, err := NewUint64Metric("/late", "too late"); err != ErrInitializationDone {
		t.Errorf("NewUint64Metric after Initialize got err %v want %v", err, ErrInitializationDone)
	}
	if err := Initialize(); err == nil {
		t.Errorf("second Initialize succeeded")
	}
}

func TestFields(t *testing.T) {
	resetTest()
	if _, err := NewUint64Metric("/empty", "x", NewField("f", nil)); err != ErrFieldHasNoAllowedValues {
		t.Errorf("NewUint64Metric with empty field got err %v want %v", err, ErrFieldHasNoAllowedValues)
	}
	m := MustCreateNewUint64Metric("/syscalls", "Syscalls.",
		NewField("name", []string{"read", "write"}),
		NewField("result", []string{"ok", "error"}))
	m.Increment("write", "error")
	m.Increment("write", "error")
	m.Increment("read", "ok")
	if got := m.Value("write", "error"); got != 2 {
		t.Errorf("Value(write, error) = %d, want 2", got)
	}
	if got := m.Value("write", "ok"); got != 0 {
		t.Errorf("Value(write, ok) = %d, want 0", got)
	}
	for key := 0; key < 4; key++ {
		if got := m.fieldMapper.lookup(m.fieldMapper.keyToMultiField(key)...); got != key {
			t.Errorf("lookup(keyToMultiField(%d)) = %d", key, got)
		}
	}
}

func TestDisallowedFieldPanics(t *testing.T) {
	resetTest()
	m := MustCreateNewUint64Metric("/f", "x", NewField("name", []string{"a"}))
	defer func() {
		if recover() == nil {
			t.Errorf("Increment with a disallowed value did not panic")
		}
	}()
	m.Increment("b")
}

func TestWritePrometheus(t *testing.T) {
	resetTest()
	a := MustCreateNewUint64Metric("/frames/allocated", "Frames allocated.")
	s := MustCreateNewUint64Metric("/syscalls", "Syscalls.", NewField("name", []string{"open", "close"}))
	a.IncrementBy(7)
	s.Increment("close")

	var buf bytes.Buffer
	if err := WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	parsed, err := (&expfmt.TextParser{}).TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("cannot parse exported data: %v", err)
	}
	got := make(map[string]float64)
	for name, mf := range parsed {
		for _, m := range mf.GetMetric() {
			key := name
			for _, l := range m.GetLabel() {
				key += "{" + l.GetName() + "=" + l.GetValue() + "}"
			}
			got[key] = m.GetCounter().GetValue()
		}
	}
	want := map[string]float64{
		"teachos_frames_allocated":     7,
		"teachos_syscalls{name=open}":  0,
		"teachos_syscalls{name=close}": 1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("exported metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistered(t *testing.T) {
	resetTest()
	MustCreateNewUint64Metric("/b", "B.", NewField("kind", []string{"x"}))
	MustCreateNewUint64Metric("/a", "A.")
	want := []Info{
		{Name: "/a", Description: "A."},
		{Name: "/b", Description: "B.", Fields: []string{"kind"}},
	}
	if diff := cmp.Diff(want, Registered()); diff != "" {
		t.Errorf("Registered() mismatch (-want +got):\n%s", diff)
	}
}
