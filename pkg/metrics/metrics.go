/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelVersion       = "version"
	LabelPlatform      = "platform"
	LabelComponent     = "component"
	LabelComponentName = "component_name"
	LabelSequencer     = "sequencer"
	LabelSourceType    = "source_type"
	LabelReason        = "reason"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant value '1', labeled by multistream binary version, platform, and other information",
	}, []string{LabelComponent, LabelComponentName, LabelVersion, LabelPlatform})
)

// Generic source metrics
var (
	// SourceReadCount is used to indicate the number of units delivered by the concrete sources
	SourceReadCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "source",
		Name:      "read_total",
		Help:      "Total number of units read from sources",
	}, []string{LabelSourceType})

	// SourceReadBytesCount is to indicate the number of bytes delivered by the concrete sources
	SourceReadBytesCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "source",
		Name:      "read_bytes_total",
		Help:      "Total number of bytes read from sources",
	}, []string{LabelSourceType})

	// SourceErrorCount is used to indicate the number of failures of the concrete sources
	SourceErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "source",
		Name:      "error_total",
		Help:      "Total number of source failures",
	}, []string{LabelSourceType})
)
