package monitor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkloadStatsConcurrent(t *testing.T) {
	ws := NewWorkloadStats()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ws.RecordInsert()
				ws.RecordQuery()
				if j%2 == 0 {
					ws.RecordHit()
				}
			}
		}()
	}
	wg.Wait()
	ws.RecordShardFailure()

	s := ws.Snapshot()
	assert.Equal(t, uint64(800), s.Inserts)
	assert.Equal(t, uint64(800), s.Queries)
	assert.Equal(t, uint64(400), s.Hits)
	assert.Equal(t, uint64(1), s.ShardFailures)
	assert.InDelta(t, 0.5, s.HitRatio(), 1e-9)
	assert.InDelta(t, 1.0, s.QueryInsertRatio(), 1e-9)
}

func TestSnapshotRatiosWithoutTraffic(t *testing.T) {
	assert.Equal(t, 0.0, Snapshot{}.HitRatio())
	assert.Equal(t, 0.0, Snapshot{}.QueryInsertRatio())
	assert.Equal(t, 100.0, Snapshot{Queries: 3}.QueryInsertRatio())
}
