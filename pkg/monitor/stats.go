package monitor

import (
	"go.uber.org/atomic"
)

// WorkloadStats counts index traffic. All methods are safe for concurrent use.
type WorkloadStats struct {
	inserts       atomic.Uint64
	queries       atomic.Uint64
	hits          atomic.Uint64
	shardFailures atomic.Uint64
}

// Snapshot is a point-in-time copy of WorkloadStats.
type Snapshot struct {
	Inserts       uint64
	Queries       uint64
	Hits          uint64
	ShardFailures uint64
}

func NewWorkloadStats() *WorkloadStats {
	return &WorkloadStats{}
}

func (ws *WorkloadStats) RecordInsert() {
	ws.inserts.Inc()
}

func (ws *WorkloadStats) RecordQuery() {
	ws.queries.Inc()
}

// RecordHit counts a query that returned at least one payload.
func (ws *WorkloadStats) RecordHit() {
	ws.hits.Inc()
}

func (ws *WorkloadStats) RecordShardFailure() {
	ws.shardFailures.Inc()
}

func (ws *WorkloadStats) Snapshot() Snapshot {
	return Snapshot{
		Inserts:       ws.inserts.Load(),
		Queries:       ws.queries.Load(),
		Hits:          ws.hits.Load(),
		ShardFailures: ws.shardFailures.Load(),
	}
}

func (s Snapshot) HitRatio() float64 {
	if s.Queries == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Queries)
}

// QueryInsertRatio mirrors a read/write ratio: queries per insert.
func (s Snapshot) QueryInsertRatio() float64 {
	if s.Inserts == 0 {
		if s.Queries > 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(s.Queries) / float64(s.Inserts)
}
