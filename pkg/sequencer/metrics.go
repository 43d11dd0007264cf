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

package sequencer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/multistream/pkg/metrics"
)

// sourcesActivated is used to indicate the number of sources that became the current one
var sourcesActivated = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sequencer",
	Name:      "sources_activated_total",
	Help:      "Total number of sources activated",
}, []string{metrics.LabelSequencer})

// unitsForwarded is used to indicate the number of units forwarded to the output
var unitsForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sequencer",
	Name:      "forwarded_total",
	Help:      "Total number of units forwarded",
}, []string{metrics.LabelSequencer})

// bytesForwarded is to indicate the number of bytes forwarded in byte mode
var bytesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sequencer",
	Name:      "forwarded_bytes_total",
	Help:      "Total number of bytes forwarded",
}, []string{metrics.LabelSequencer})

// sourceErrors is used to indicate the number of errors reported by sources
var sourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sequencer",
	Name:      "source_error_total",
	Help:      "Total number of source errors",
}, []string{metrics.LabelSequencer})

// sourcesSkipped is used to indicate the number of failed sources skipped by the error handler
var sourcesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sequencer",
	Name:      "source_skipped_total",
	Help:      "Total number of failed sources skipped",
}, []string{metrics.LabelSequencer})

// destroyedCount is used to indicate the number of chains destroyed, by reason
var destroyedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sequencer",
	Name:      "destroyed_total",
	Help:      "Total number of destroyed chains",
}, []string{metrics.LabelSequencer, metrics.LabelReason})
