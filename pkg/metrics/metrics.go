/*
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

// Package metrics adapts the teacher's per-subsystem CounterVec/HistogramVec
// convention (this file's original NodesCreatedCounter/MachinesCreatedCounter
// shape) from pod/node/machine lifecycle labels to request/provider-dispatch
// labels. The teacher registers against controller-runtime's shared registry
// (sigs.k8s.io/controller-runtime/pkg/metrics); that dependency is dropped
// here (see DESIGN.md) since this process has no controller-manager to share
// a registry with, so Registry is this package's own
// prometheus.NewRegistry().
package metrics

import "github.com/prometheus/client_golang/prometheus"

const Namespace = "host_factory_controlplane"

const (
	requestSubsystem  = "requests"
	providerSubsystem = "provider"
	breakerSubsystem  = "circuit_breaker"
)

// label names shared across the vectors below.
const (
	TemplateIDLabel  = "template_id"
	ProviderAPILabel = "provider_api"
	StatusLabel      = "status"
	ServiceLabel     = "service"
	OperationLabel   = "operation"
	StateLabel       = "state"
)

var (
	RequestsCreatedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: requestSubsystem,
			Name:      "created_total",
			Help:      "Number of machine requests created, labeled by template and provider API.",
		},
		[]string{TemplateIDLabel, ProviderAPILabel},
	)
	RequestsCompletedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: requestSubsystem,
			Name:      "completed_total",
			Help:      "Number of machine requests reaching a terminal status, labeled by final status.",
		},
		[]string{StatusLabel},
	)
	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: providerSubsystem,
			Name:      "call_duration_seconds",
			Help:      "Duration of cloud provider API calls, labeled by service and operation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{ServiceLabel, OperationLabel},
	)
	ProviderCallErrorsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: providerSubsystem,
			Name:      "call_errors_total",
			Help:      "Number of failed cloud provider API calls, labeled by service and operation.",
		},
		[]string{ServiceLabel, OperationLabel},
	)
	BreakerStateChangesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: breakerSubsystem,
			Name:      "state_changes_total",
			Help:      "Number of circuit breaker state transitions, labeled by service, operation, and new state.",
		},
		[]string{ServiceLabel, OperationLabel, StateLabel},
	)
)

// Registry is this package's own collector registry — deliberately not the
// default global registry, so cmd/controlplane decides whether/how to
// expose it over HTTP.
var Registry = prometheus.NewRegistry()

func MustRegister() {
	Registry.MustRegister(
		RequestsCreatedCounter,
		RequestsCompletedCounter,
		ProviderCallDuration,
		ProviderCallErrorsCounter,
		BreakerStateChangesCounter,
	)
}
