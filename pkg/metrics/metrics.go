package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the alarm clock collectors. A nil *Registry records nothing.
type Registry struct {
	Gatherer prometheus.Gatherer

	Fires             *prometheus.CounterVec
	Stops             *prometheus.CounterVec
	Snoozes           prometheus.Counter
	Rejected          prometheus.Counter
	Queued            prometheus.Counter
	RescheduleErrors  prometheus.Counter
	OperationErrors   *prometheus.CounterVec
	HousekeepRepaired prometheus.Counter
}

// New registers collectors on a fresh registry. pending reports the number of
// registered timers and alarms the number of stored alarms; either may be nil.
func New(pending, alarms func() float64) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	r := &Registry{Gatherer: reg}

	r.Fires = f.NewCounterVec(prometheus.CounterOpts{
		Name: "alarm_clock_fires_total",
		Help: "Timer callbacks delivered, by outcome",
	}, []string{"outcome"})

	r.Stops = f.NewCounterVec(prometheus.CounterOpts{
		Name: "alarm_clock_stops_total",
		Help: "Ringing alarms stopped, by kind",
	}, []string{"kind"})

	r.Snoozes = f.NewCounter(prometheus.CounterOpts{
		Name: "alarm_clock_snoozes_total",
		Help: "Ringing alarms snoozed",
	})

	r.Rejected = f.NewCounter(prometheus.CounterOpts{
		Name: "alarm_clock_rejected_fires_total",
		Help: "Fires dropped because another alarm was ringing",
	})

	r.Queued = f.NewCounter(prometheus.CounterOpts{
		Name: "alarm_clock_queued_fires_total",
		Help: "Fires queued behind a ringing alarm",
	})

	r.RescheduleErrors = f.NewCounter(prometheus.CounterOpts{
		Name: "alarm_clock_reschedule_errors_total",
		Help: "Alarms that failed to reschedule during boot recovery",
	})

	r.OperationErrors = f.NewCounterVec(prometheus.CounterOpts{
		Name: "alarm_clock_operation_errors_total",
		Help: "Failed engine operations, by operation",
	}, []string{"op"})

	r.HousekeepRepaired = f.NewCounter(prometheus.CounterOpts{
		Name: "alarm_clock_housekeeping_repaired_total",
		Help: "Missing timers re-registered by housekeeping",
	})

	if pending != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "alarm_clock_pending_timers",
			Help: "Timers currently registered",
		}, pending)
	}
	if alarms != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "alarm_clock_alarms",
			Help: "Alarms currently stored",
		}, alarms)
	}

	return r
}

func (r *Registry) Fired(outcome string) {
	if r == nil {
		return
	}
	r.Fires.WithLabelValues(outcome).Inc()
}

func (r *Registry) Stopped(repeating bool) {
	if r == nil {
		return
	}
	kind := "once"
	if repeating {
		kind = "repeating"
	}
	r.Stops.WithLabelValues(kind).Inc()
}

func (r *Registry) Snoozed() {
	if r == nil {
		return
	}
	r.Snoozes.Inc()
}

func (r *Registry) FireRejected() {
	if r == nil {
		return
	}
	r.Rejected.Inc()
}

func (r *Registry) FireQueued() {
	if r == nil {
		return
	}
	r.Queued.Inc()
}

func (r *Registry) RescheduleFailed() {
	if r == nil {
		return
	}
	r.RescheduleErrors.Inc()
}

func (r *Registry) OperationFailed(op string) {
	if r == nil {
		return
	}
	r.OperationErrors.WithLabelValues(op).Inc()
}

func (r *Registry) Repaired(n int) {
	if r == nil || n == 0 {
		return
	}
	r.HousekeepRepaired.Add(float64(n))
}
