package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecentBatchLedgerEviction(t *testing.T) {
	t.Parallel()

	ledger := NewRecentBatchLedger()
	for i := 1; i <= 8; i++ {
		ledger.Append(BatchRecord{
			BatchNumber:    i,
			ProcessingTime: time.Duration(i) * time.Second,
		})
	}

	records := ledger.Records()
	assert.Equal(t, 5, ledger.Len())
	assert.Len(t, records, 5)
	assert.Equal(t, 4, records[0].BatchNumber, "oldest retained record")
	assert.Equal(t, 8, records[4].BatchNumber, "newest retained record")
}

func TestRecentBatchLedgerRecordsAreACopy(t *testing.T) {
	t.Parallel()

	ledger := NewRecentBatchLedger()
	ledger.Append(BatchRecord{BatchNumber: 1, ProcessingTime: time.Second})

	records := ledger.Records()
	records[0].BatchNumber = 99

	assert.Equal(t, 1, ledger.Records()[0].BatchNumber)
}

func TestRecentBatchLedgerAverageProcessingTime(t *testing.T) {
	t.Parallel()

	ledger := NewRecentBatchLedger()
	assert.Zero(t, ledger.AverageProcessingTime())

	ledger.Append(BatchRecord{BatchNumber: 1, ProcessingTime: 2 * time.Second})
	ledger.Append(BatchRecord{BatchNumber: 2, ProcessingTime: 4 * time.Second})

	assert.Equal(t, 3*time.Second, ledger.AverageProcessingTime())
}

func TestRecentBatchLedgerEstimateRemaining(t *testing.T) {
	t.Parallel()

	ledger := NewRecentBatchLedger()
	assert.Zero(t, ledger.EstimateRemaining(10), "no rate known yet")

	ledger.Append(BatchRecord{BatchNumber: 1, ProcessingTime: 2 * time.Second})
	ledger.Append(BatchRecord{BatchNumber: 2, ProcessingTime: 2 * time.Second})

	assert.Equal(t, 20*time.Second, ledger.EstimateRemaining(10))
	assert.Zero(t, ledger.EstimateRemaining(0))
	assert.Zero(t, ledger.EstimateRemaining(-3))
}

func TestRecentBatchLedgerReset(t *testing.T) {
	t.Parallel()

	ledger := NewRecentBatchLedger()
	ledger.Append(BatchRecord{BatchNumber: 1, ProcessingTime: time.Second})
	ledger.Append(BatchRecord{BatchNumber: 2, ProcessingTime: time.Second})

	ledger.Reset()

	assert.Zero(t, ledger.Len())
	assert.Zero(t, ledger.AverageProcessingTime())
}
