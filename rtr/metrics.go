// Copyright 2026 The Routeguard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rtr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtr_expired_entries_total",
		Help: "Number of attestation set entries removed by the expiration sweep.",
	})
	metricReconfigs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtr_reconfigurations_total",
		Help: "Number of committed reconfigurations.",
	})
	metricRecalcs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtr_recalculations_total",
		Help: "Number of broadcasts of the recomputed attestation sets.",
	})
	metricBroadcastMsgs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtr_broadcast_messages_total",
		Help: "Number of messages emitted on the consumer channel.",
	})
	metricSupervisorMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtr_supervisor_messages_total",
		Help: "Number of control messages received from the supervisor.",
	}, []string{"type"})
	metricConsumerDown = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtr_consumer_channel_failures_total",
		Help: "Number of times the consumer channel was torn down.",
	})
)
