package sink

import (
	"log"

	"github.com/you/echo-relay/internal/core"
)

type broadcaster interface {
	Broadcast(core.AuditEvent)
}

type errorCounter interface {
	IncDBWriteErrors()
}

// Auditor fans one audit event out to the persistent writer and the live
// feed. Write errors are logged and counted, never returned to the router.
type Auditor struct {
	base    Writer
	api     broadcaster
	metrics errorCounter
}

func WithAPI(base Writer, api broadcaster, metrics errorCounter) *Auditor {
	return &Auditor{base: base, api: api, metrics: metrics}
}

func (a *Auditor) Record(ev core.AuditEvent) {
	if a == nil {
		return
	}
	if a.base != nil {
		if err := a.base.Write(ev); err != nil {
			log.Printf("sink: audit write failed: %v", err)
			if a.metrics != nil {
				a.metrics.IncDBWriteErrors()
			}
		}
	}
	if a.api != nil {
		a.api.Broadcast(ev)
	}
}
