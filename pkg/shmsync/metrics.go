/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shmsync

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by robust mutexes, condition
// variables and semaphores. A nil *Metrics records nothing.
type Metrics struct {
	OwnerDeaths    prometheus.Counter
	Recoveries     *prometheus.CounterVec
	NotRecoverable prometheus.Counter
	Waits          *prometheus.CounterVec
	WaitTimeouts   prometheus.Counter
	OpenSemaphores prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OwnerDeaths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shmsync",
			Name:      "owner_deaths_total",
			Help:      "Robust mutex holders found dead by a locker.",
		}),
		Recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shmsync",
			Name:      "recoveries_total",
			Help:      "Recovery callbacks run after an owner died, by result.",
		}, []string{"result"}),
		NotRecoverable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shmsync",
			Name:      "not_recoverable_total",
			Help:      "Lock attempts rejected because the mutex is not recoverable.",
		}),
		Waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shmsync",
			Name:      "condvar_waits_total",
			Help:      "Condition variable waits, by strategy.",
		}, []string{"strategy"}),
		WaitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shmsync",
			Name:      "condvar_wait_timeouts_total",
			Help:      "Timed condition variable waits that expired.",
		}),
		OpenSemaphores: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shmsync",
			Name:      "open_semaphores",
			Help:      "Named semaphores currently mapped by this process.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.OwnerDeaths, m.Recoveries, m.NotRecoverable,
			m.Waits, m.WaitTimeouts, m.OpenSemaphores)
	}
	return m
}

func (m *Metrics) ownerDied() {
	if m != nil {
		m.OwnerDeaths.Inc()
	}
}

func (m *Metrics) recovered(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Recoveries.WithLabelValues("ok").Inc()
	} else {
		m.Recoveries.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) notRecoverable() {
	if m != nil {
		m.NotRecoverable.Inc()
	}
}

func (m *Metrics) waited(s Strategy) {
	if m != nil {
		m.Waits.WithLabelValues(s.String()).Inc()
	}
}

func (m *Metrics) timedOut() {
	if m != nil {
		m.WaitTimeouts.Inc()
	}
}

func (m *Metrics) semaphoreOpened(delta float64) {
	if m != nil {
		m.OpenSemaphores.Add(delta)
	}
}
