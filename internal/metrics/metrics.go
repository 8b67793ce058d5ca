// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	WaiterTask          = "task"
	WaiterVMDown        = "vm_down"
	WaiterDomain        = "storage_domain"
	WaiterEngineHealth  = "engine_health"
	WaiterApplianceLine = "appliance_line"

	HealthResultUp   = "up"
	HealthResultDown = "down"
)

var (
	PollAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_attempts_total",
		Help: "Total number of status polls issued per waiter",
	}, []string{"waiter"})

	PollErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_errors_total",
		Help: "Total number of polls which ended the wait with an error",
	}, []string{"waiter"})

	WaitDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: "wait_duration_seconds",
		Help: "Length of time per completed wait",
	}, []string{"waiter"})

	ChannelConnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channel_connect_attempts_total",
		Help: "Total number of attempts to connect to the appliance channel",
	})

	HealthChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "health_checks_total",
		Help: "Total number of engine health probes per verdict",
	}, []string{"result"})

	OperationDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: "operation_duration_seconds",
		Help: "Length of time per operation",
	}, []string{"operation"})

	OperationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "operation_errors_total",
		Help: "Total number of errors which affect main logic of operation",
	}, []string{"operation"})
)

func init() {
	prometheus.MustRegister(PollAttempts)
	prometheus.MustRegister(PollErrors)
	prometheus.MustRegister(WaitDuration)
	prometheus.MustRegister(ChannelConnectAttempts)
	prometheus.MustRegister(HealthChecks)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(OperationErrors)
}
