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
	"fmt"
	"io"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// prometheusPrefix is prepended to every exported metric name.
const prometheusPrefix = "teachos"

// PrometheusName converts a metric name such as "/frames/evicted" into a
// valid Prometheus name such as "teachos_frames_evicted".
func PrometheusName(name string) string {
	return prometheusPrefix + strings.ReplaceAll(name, "/", "_")
}

// family builds the Prometheus representation of m.
func (m *Uint64Metric) family() *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(PrometheusName(m.name)),
		Help: proto.String(m.description),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for key := range m.fields {
		metric := &dto.Metric{
			Counter: &dto.Counter{Value: proto.Float64(float64(m.fields[key].Load()))},
		}
		values := m.fieldMapper.keyToMultiField(key)
		for i, f := range m.fieldMapper.fields {
			metric.Label = append(metric.Label, &dto.LabelPair{
				Name:  proto.String(f.name),
				Value: proto.String(values[i]),
			})
		}
		mf.Metric = append(mf.Metric, metric)
	}
	return mf
}

// WritePrometheus writes a snapshot of every registered metric to w in the
// Prometheus text exposition format.
func WritePrometheus(w io.Writer) error {
	for _, m := range sortedMetrics() {
		if _, err := expfmt.MetricFamilyToText(w, m.family()); err != nil {
			return fmt.Errorf("writing metric %q: %w", m.name, err)
		}
	}
	return nil
}
