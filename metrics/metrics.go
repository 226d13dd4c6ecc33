// Package metrics counts what happens to the machine, per outcome, for
// scraping by Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/the-lightning-land/theracd/control"
)

const namespace = "theracd"

type Recorder struct {
	registry       *prometheus.Registry
	setups         *prometheus.CounterVec
	modeChanges    *prometheus.CounterVec
	fires          *prometheus.CounterVec
	edits          prometheus.Counter
	emergencyStops prometheus.Counter
	sessions       prometheus.Counter
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		setups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setups_total",
			Help:      "Treatment setups by outcome.",
		}, []string{"result"}),
		modeChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_changes_total",
			Help:      "Beam mode changes and turntable completions by outcome.",
		}, []string{"result"}),
		fires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beam_fires_total",
			Help:      "Beam fire attempts by result.",
		}, []string{"result"}),
		edits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_edits_total",
			Help:      "Treatment fields edited during operation.",
		}),
		emergencyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emergency_stops_total",
			Help:      "Emergency stops.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Control module sessions started, including resets.",
		}),
	}

	r.registry.MustRegister(
		r.setups,
		r.modeChanges,
		r.fires,
		r.edits,
		r.emergencyStops,
		r.sessions,
	)

	return r
}

// Observe counts a single control event.
func (r *Recorder) Observe(event *control.Event) {
	switch event.Kind {
	case control.EventSetupAccepted:
		r.setups.WithLabelValues("accepted").Inc()
	case control.EventSetupRejected:
		r.setups.WithLabelValues("rejected").Inc()
	case control.EventSafetyBypassed:
		r.setups.WithLabelValues("bypassed").Inc()
	case control.EventModeChanged:
		r.modeChanges.WithLabelValues("requested").Inc()
	case control.EventTurntableMoved:
		r.modeChanges.WithLabelValues("moved").Inc()
	case control.EventHardwareTimeout:
		r.modeChanges.WithLabelValues("timeout").Inc()
	case control.EventHardwareFault:
		r.modeChanges.WithLabelValues("fault").Inc()
	case control.EventFieldEdited:
		r.edits.Inc()
	case control.EventFired, control.EventAccident, control.EventSafetyAbort:
		r.fires.WithLabelValues(event.Result.String()).Inc()
	case control.EventEmergencyStop:
		r.emergencyStops.Inc()
	}
}

func (r *Recorder) SessionStarted() {
	r.sessions.Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
