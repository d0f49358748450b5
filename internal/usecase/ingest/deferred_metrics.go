package ingest

import (
	"sync"
	"time"

	"rpkimon/internal/ports"
)

// deferredMetrics holds the counters of an atomic run until it commits.
// Batch durations pass straight through: the time was spent either way.
type deferredMetrics struct {
	next ports.IngestMetrics

	mu  sync.Mutex
	ops []func(ports.IngestMetrics)
}

var _ ports.IngestMetrics = (*deferredMetrics)(nil)

func newDeferredMetrics(next ports.IngestMetrics) *deferredMetrics {
	return &deferredMetrics{next: next}
}

func (d *deferredMetrics) IncrementUpdatesCreated() {
	d.add(func(m ports.IngestMetrics) { m.IncrementUpdatesCreated() })
}

func (d *deferredMetrics) IncrementRecord(kind, outcome string) {
	d.add(func(m ports.IngestMetrics) { m.IncrementRecord(kind, outcome) })
}

func (d *deferredMetrics) IncrementCreated(entity string, created bool) {
	d.add(func(m ports.IngestMetrics) { m.IncrementCreated(entity, created) })
}

func (d *deferredMetrics) ObserveBatch(kind string, start time.Time) {
	d.next.ObserveBatch(kind, start)
}

func (d *deferredMetrics) add(op func(ports.IngestMetrics)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops = append(d.ops, op)
}

// flush replays the held counters. Call it once the run has committed.
func (d *deferredMetrics) flush() {
	d.mu.Lock()
	ops := d.ops
	d.ops = nil
	d.mu.Unlock()

	for _, op := range ops {
		op(d.next)
	}
}
