package core

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"seqindex/pkg/common"
	"seqindex/pkg/config"
	"seqindex/pkg/monitor"
	"seqindex/pkg/storage"
)

// ShardedIndex spreads records over independently built shards and fans a
// query out to all of them.
//
// Inserts must finish before queries start. Searches may run concurrently
// with each other; each shard is only read during a search.
type ShardedIndex struct {
	shards  []Index
	workers int
	timeout time.Duration
	stats   *monitor.WorkloadStats
	logger  *zap.Logger
}

type ShardOption func(*ShardedIndex)

// WithWorkers bounds how many shard searches run at once.
func WithWorkers(n int) ShardOption {
	return func(s *ShardedIndex) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueryTimeout bounds each Search; 0 disables it.
func WithQueryTimeout(d time.Duration) ShardOption {
	return func(s *ShardedIndex) { s.timeout = d }
}

func WithLogger(logger *zap.Logger) ShardOption {
	return func(s *ShardedIndex) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSharded(shards []Index, opts ...ShardOption) (*ShardedIndex, error) {
	if len(shards) == 0 {
		return nil, errors.NotValidf("empty shard list")
	}
	s := &ShardedIndex{
		shards:  shards,
		workers: len(shards),
		stats:   monitor.NewWorkloadStats(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewShardedFromConfig creates cfg.Shards.Count empty shards of the
// configured strategy.
func NewShardedFromConfig(cfg *config.Config, logger *zap.Logger) (*ShardedIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	shards := make([]Index, cfg.Shards.Count)
	for i := range shards {
		idx, err := New(cfg, logger.With(zap.Int("shard", i)))
		if err != nil {
			return nil, errors.Annotatef(err, "shard %d", i)
		}
		shards[i] = idx
	}
	return NewSharded(shards,
		WithWorkers(cfg.Shards.Workers),
		WithQueryTimeout(cfg.Shards.QueryTimeout),
		WithLogger(logger))
}

func (s *ShardedIndex) shardFor(label string) int {
	return int(xxhash.Sum64String(label) % uint64(len(s.shards)))
}

// Insert routes rec to a shard by the hash of its label.
func (s *ShardedIndex) Insert(rec common.Record) error {
	shard := s.shardFor(rec.Label)
	if err := s.shards[shard].Insert(rec); err != nil {
		return errors.Annotatef(err, "shard %d insert %s", shard, rec.Label)
	}
	s.stats.RecordInsert()
	return nil
}

// Load inserts every record of src and returns how many were inserted.
func (s *ShardedIndex) Load(ctx context.Context, src storage.Source) (int, error) {
	n := 0
	err := src.Each(ctx, func(label string, rec common.Record) error {
		rec.Label = label
		if err := s.Insert(rec); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, errors.Annotate(err, "load source")
	}
	s.logger.Info("source loaded", zap.Int("records", n), zap.Int("shards", len(s.shards)))
	return n, nil
}

type shardResult struct {
	shard   int
	records []common.Record
	err     error
}

// Search asks every shard for its k best records and returns their union,
// deduplicated, in shard order.
//
// A shard that errors or panics is logged and skipped. The call fails only
// when every shard failed. If ctx is done or the query timeout expires before
// all shards answer, the records gathered so far are returned with the
// context error.
func (s *ShardedIndex) Search(ctx context.Context, query common.Record, k int) ([]common.Record, error) {
	s.stats.RecordQuery()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// one slot per shard so late senders never block
	results := make(chan shardResult, len(s.shards))
	go func() {
		var g errgroup.Group
		g.SetLimit(s.workers)
		for i, shard := range s.shards {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				records, err := s.searchShard(shard, query, k)
				results <- shardResult{shard: i, records: records, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	perShard := make([][]common.Record, len(s.shards))
	received, failed := 0, 0
	done := false
	for !done && received < len(s.shards) {
		select {
		case r, ok := <-results:
			if !ok {
				done = true
				break
			}
			received++
			if r.err != nil {
				failed++
				s.stats.RecordShardFailure()
				s.logger.Warn("shard search failed", zap.Int("shard", r.shard), zap.Error(r.err))
				continue
			}
			perShard[r.shard] = r.records
		case <-ctx.Done():
			done = true
		}
	}

	merged := mergeShards(perShard)
	if received < len(s.shards) {
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		s.logger.Warn("search stopped before all shards answered",
			zap.Int("answered", received), zap.Int("shards", len(s.shards)), zap.Error(err))
		return merged, errors.Annotatef(err, "%d of %d shards answered", received, len(s.shards))
	}
	if failed == len(s.shards) {
		return nil, errors.Annotatef(ErrAllShardsFailed, "%d shards", failed)
	}
	if len(merged) > 0 {
		s.stats.RecordHit()
	}
	return merged, nil
}

func (s *ShardedIndex) searchShard(shard Index, query common.Record, k int) (records []common.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("shard panicked: %v", r)
		}
	}()
	records, err = shard.Search(query, k)
	return records, errors.Trace(err)
}

func mergeShards(perShard [][]common.Record) []common.Record {
	seen := mapset.NewThreadUnsafeSet[common.Record]()
	var out []common.Record
	for _, records := range perShard {
		for _, rec := range records {
			if seen.Add(rec) {
				out = append(out, rec)
			}
		}
	}
	return out
}

// Len returns the number of records across all shards.
func (s *ShardedIndex) Len() int {
	return lo.SumBy(s.shards, func(shard Index) int { return shard.Len() })
}

func (s *ShardedIndex) Shards() int { return len(s.shards) }

func (s *ShardedIndex) Type() string { return "sharded/" + s.shards[0].Type() }

func (s *ShardedIndex) Stats() monitor.Snapshot { return s.stats.Snapshot() }
