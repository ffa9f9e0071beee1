// Package stats aggregates lines-processed notifications from monitors into
// periodic per-resource rollups.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensoc/runwatch/internal/domain/analysis"
	"github.com/opensoc/runwatch/pkg/common/logger"
)

var _ analysis.StatsNotifier = (*Collector)(nil)

const (
	notifyBufferSize = 256
	flushInterval    = time.Minute
)

type notification struct {
	resourceID     uuid.UUID
	linesProcessed int64
}

// Collector receives one-way lines-processed notifications without blocking
// the caller and flushes per-resource high-water marks on a fixed interval.
// Notifications arriving while the buffer is full are dropped; the next one
// carries a fresher cumulative value anyway.
type Collector struct {
	notifyCh chan notification
	done     chan struct{}
	stopOnce sync.Once
	logger   *logger.Logger
}

// NewCollector creates and starts a collector.
func NewCollector(log *logger.Logger) *Collector {
	c := &Collector{
		notifyCh: make(chan notification, notifyBufferSize),
		done:     make(chan struct{}),
		logger:   log.With("component", "stats_collector"),
	}
	go c.loop()
	return c
}

// RecordLinesProcessed accepts a cumulative lines-processed reading for the
// resource. It never blocks.
func (c *Collector) RecordLinesProcessed(resourceID uuid.UUID, linesProcessed int64) {
	select {
	case c.notifyCh <- notification{resourceID: resourceID, linesProcessed: linesProcessed}:
	default:
	}
}

// Stop halts the collector after a final flush.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Collector) loop() {
	ctx := context.Background()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	totals := make(map[uuid.UUID]int64)

	for {
		select {
		case n := <-c.notifyCh:
			// Counters are cumulative; keep the high-water mark so an
			// out-of-order notification cannot roll a total back.
			if n.linesProcessed > totals[n.resourceID] {
				totals[n.resourceID] = n.linesProcessed
			}
		case <-ticker.C:
			c.flush(ctx, totals)
		case <-c.done:
			c.flush(ctx, totals)
			return
		}
	}
}

func (c *Collector) flush(ctx context.Context, totals map[uuid.UUID]int64) {
	for resourceID, lines := range totals {
		c.logger.Info(ctx, "Lines processed rollup",
			"resource_id", resourceID.String(),
			"lines_processed", lines,
		)
	}
}
