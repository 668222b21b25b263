// Copyright 2025 The Kube Resource Orchestrator Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"). You may
// not use this file except in compliance with the License. A copy of the
// License is located at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// or in the "license" file accompanying this file. This file is distributed
// on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either
// express or implied. See the License for the specific language governing
// permissions and limitations under the License.

package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	// MetricOperationsTotal counts provider operations per kind, operation
	// and result.
	MetricOperationsTotal = "stackgraph_operations_total"
	// MetricOperationDuration tracks the duration of provider operations,
	// readiness polling included.
	MetricOperationDuration = "stackgraph_operation_duration_seconds"
	// MetricRetriesTotal counts retried operations.
	MetricRetriesTotal = "stackgraph_operation_retries_total"
	// MetricBlockedTotal counts steps that didn't start.
	MetricBlockedTotal = "stackgraph_steps_blocked_total"
	// MetricInFlight is the number of provider operations in flight.
	MetricInFlight = "stackgraph_operations_in_flight"
	// MetricRunDuration tracks the duration of whole runs.
	MetricRunDuration = "stackgraph_run_duration_seconds"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricOperationsTotal,
			Help: "Total number of resource operations by kind, operation and result",
		},
		[]string{"kind", "operation", "result"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: MetricOperationDuration,
			Help: "Duration of resource operations, readiness included",
			// Cloud resources take minutes to converge.
			Buckets: []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"kind", "operation"},
	)
	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricRetriesTotal,
			Help: "Total number of retried resource operations by kind",
		},
		[]string{"kind"},
	)
	blockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: MetricBlockedTotal,
			Help: "Total number of steps that were not started",
		},
	)
	inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricInFlight,
			Help: "Number of resource operations currently running",
		},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricRunDuration,
			Help:    "Duration of runs by mode",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"mode"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		operationsTotal,
		operationDuration,
		retriesTotal,
		blockedTotal,
		inFlight,
		runDuration,
	)
}

func recordOperation(kind, operation string, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	operationsTotal.WithLabelValues(kind, operation, result).Inc()
}
