package authapi

import (
	"context"
	"log/slog"
	"net"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// auditor writes security events to the structured log and counts them.
type auditor struct {
	log    *slog.Logger
	events *prometheus.CounterVec
}

func newAuditor(log *slog.Logger, reg prometheus.Registerer) *auditor {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "basecampy",
		Subsystem: "auth",
		Name:      "events_total",
		Help:      "Count of authentication events by outcome",
	}, []string{"event", "outcome"})

	if reg != nil {
		if err := reg.Register(events); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					events = existing
				}
			} else {
				log.Warn("auth.audit.metrics.register.fail", "err", err)
			}
		}
	}

	return &auditor{log: log, events: events}
}

type auditEvent struct {
	Name       string
	Outcome    string
	IdentityID string
	Reason     string
	IP         net.IP
	UserAgent  string
}

func (a *auditor) record(ctx context.Context, ev auditEvent) {
	if a == nil {
		return
	}
	name := strings.TrimSpace(ev.Name)
	if name == "" {
		return
	}

	a.events.WithLabelValues(name, ev.Outcome).Inc()

	attrs := []any{"event", name, "outcome", ev.Outcome}
	if ev.IdentityID != "" {
		attrs = append(attrs, "identity_id", ev.IdentityID)
	}
	if ev.Reason != "" {
		attrs = append(attrs, "reason", ev.Reason)
	}
	if ev.IP != nil {
		attrs = append(attrs, "ip", ev.IP.String())
	}
	if ua := strings.TrimSpace(ev.UserAgent); ua != "" {
		attrs = append(attrs, "user_agent", ua)
	}

	level := slog.LevelInfo
	if ev.Outcome == outcomeFailure {
		level = slog.LevelWarn
	}
	a.log.Log(ctx, level, "auth.audit", attrs...)
}
