package stats

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensoc/runwatch/pkg/common/logger"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCollectorFlushesHighWaterMark(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	c := NewCollector(logger.New(out, logger.LevelInfo, "test", nil))

	resourceID := uuid.New()
	c.RecordLinesProcessed(resourceID, 3000)
	c.RecordLinesProcessed(resourceID, 5000)
	// Stale cumulative reading must not roll the total back.
	c.RecordLinesProcessed(resourceID, 4000)

	// Stop forces a final flush once the buffered notifications drain.
	require.Eventually(t, func() bool { return len(c.notifyCh) == 0 }, time.Second, 5*time.Millisecond)
	c.Stop()

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte(`"lines_processed":5000`))
	}, time.Second, 5*time.Millisecond)
	assert.NotContains(t, out.String(), `"lines_processed":4000`)
}

func TestCollectorNeverBlocks(t *testing.T) {
	t.Parallel()

	c := NewCollector(logger.New(&syncBuffer{}, logger.LevelInfo, "test", nil))
	c.Stop()

	// The loop has exited; an overfull buffer must still not block callers.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < notifyBufferSize*2; i++ {
			c.RecordLinesProcessed(uuid.New(), int64(i))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RecordLinesProcessed blocked")
	}
}

func TestCollectorStopIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewCollector(logger.New(&syncBuffer{}, logger.LevelInfo, "test", nil))
	c.Stop()
	c.Stop()
}
