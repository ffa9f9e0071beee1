package analysis

import "time"

// ledgerCapacity bounds the number of completed-batch records retained for
// rate and ETA display.
const ledgerCapacity = 5

// BatchRecord captures one completed batch. It feeds rate/ETA estimation
// only and is not authoritative run state.
type BatchRecord struct {
	BatchNumber    int           `json:"batch_number"`
	CompletedAt    time.Time     `json:"completed_at"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// RecentBatchLedger is a bounded, ordered sequence of the most recently
// completed batches. Appending beyond capacity evicts the oldest entry.
type RecentBatchLedger struct {
	records []BatchRecord
}

// NewRecentBatchLedger creates an empty ledger.
func NewRecentBatchLedger() *RecentBatchLedger {
	return &RecentBatchLedger{records: make([]BatchRecord, 0, ledgerCapacity)}
}

// Append records a completed batch, evicting the oldest record once the
// ledger holds more than its capacity.
func (l *RecentBatchLedger) Append(rec BatchRecord) {
	l.records = append(l.records, rec)
	if len(l.records) > ledgerCapacity {
		l.records = l.records[len(l.records)-ledgerCapacity:]
	}
}

// Records returns a copy of the retained records, oldest first.
func (l *RecentBatchLedger) Records() []BatchRecord {
	out := make([]BatchRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of retained records.
func (l *RecentBatchLedger) Len() int { return len(l.records) }

// Reset drops all retained records.
func (l *RecentBatchLedger) Reset() { l.records = l.records[:0] }

// AverageProcessingTime returns the mean processing time across retained
// records, or zero when the ledger is empty.
func (l *RecentBatchLedger) AverageProcessingTime() time.Duration {
	if len(l.records) == 0 {
		return 0
	}
	var total time.Duration
	for _, r := range l.records {
		total += r.ProcessingTime
	}
	return total / time.Duration(len(l.records))
}

// EstimateRemaining projects how long the given number of outstanding
// batches will take at the recent average rate. Zero when no rate is known.
func (l *RecentBatchLedger) EstimateRemaining(remainingBatches int) time.Duration {
	if remainingBatches <= 0 {
		return 0
	}
	avg := l.AverageProcessingTime()
	if avg <= 0 {
		return 0
	}
	return avg * time.Duration(remainingBatches)
}
