package metrics

import (
	"context"

	login "github.com/goliatone/go-login"
	"github.com/goliatone/go-login/activitymap"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink counts login activity events in Prometheus.
type Sink struct {
	events *prometheus.CounterVec
	thefts prometheus.Counter
	denied prometheus.Counter
}

var _ login.ActivitySink = (*Sink)(nil)

// NewSink creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	s := &Sink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "login",
			Name:      "activity_events_total",
			Help:      "Total number of login activity events",
		}, []string{"event", "outcome"}),
		thefts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "login",
			Name:      "rememberme_theft_total",
			Help:      "Total number of remember-me cookies presented with a mismatching token",
		}),
		denied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "login",
			Name:      "access_denied_total",
			Help:      "Total number of requests denied by page access rules",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{s.events, s.thefts, s.denied} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return s, nil
}

// Record implements login.ActivitySink.
func (s *Sink) Record(_ context.Context, event login.ActivityEvent) error {
	s.events.WithLabelValues(string(event.EventType), activitymap.Outcome(event.EventType)).Inc()

	switch event.EventType {
	case login.ActivityEventRememberMeTheft:
		s.thefts.Inc()
	case login.ActivityEventAccessDenied:
		s.denied.Inc()
	}
	return nil
}
