package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"seqindex/pkg/common"
	"seqindex/pkg/storage"
)

type stubIndex struct {
	records []common.Record
	err     error
	panics  bool
	delay   time.Duration
}

func (s *stubIndex) Insert(rec common.Record) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *stubIndex) Search(query common.Record, k int) ([]common.Record, error) {
	time.Sleep(s.delay)
	if s.panics {
		panic("corrupt shard")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func (s *stubIndex) Len() int     { return len(s.records) }
func (s *stubIndex) Type() string { return "stub" }

func rec(label string) common.Record {
	return common.Record{Label: label, Sequence: "ACGT"}
}

func TestShardedMergeDeduplicates(t *testing.T) {
	s, err := NewSharded([]Index{
		&stubIndex{records: []common.Record{rec("a"), rec("b")}},
		&stubIndex{records: []common.Record{rec("b"), rec("c")}},
	})
	require.NoError(t, err)

	got, err := s.Search(context.Background(), rec("q"), 2)
	require.NoError(t, err)
	assert.Equal(t, []common.Record{rec("a"), rec("b"), rec("c")}, got)
	assert.Equal(t, "sharded/stub", s.Type())
	assert.Equal(t, uint64(1), s.Stats().Hits)
}

func TestShardedIsolatesFailures(t *testing.T) {
	s, err := NewSharded([]Index{
		&stubIndex{err: errors.New("boom")},
		&stubIndex{panics: true},
		&stubIndex{records: []common.Record{rec("c")}},
	}, WithWorkers(1))
	require.NoError(t, err)

	got, err := s.Search(context.Background(), rec("q"), 1)
	require.NoError(t, err)
	assert.Equal(t, []common.Record{rec("c")}, got)
	assert.Equal(t, uint64(2), s.Stats().ShardFailures)
}

func TestShardedAllFailed(t *testing.T) {
	s, err := NewSharded([]Index{
		&stubIndex{err: errors.New("boom")},
		&stubIndex{panics: true},
	})
	require.NoError(t, err)

	_, err = s.Search(context.Background(), rec("q"), 1)
	assert.ErrorIs(t, err, ErrAllShardsFailed)
}

func TestShardedTimeoutReturnsPartial(t *testing.T) {
	s, err := NewSharded([]Index{
		&stubIndex{records: []common.Record{rec("fast")}},
		&stubIndex{records: []common.Record{rec("slow")}, delay: time.Second},
	}, WithQueryTimeout(100*time.Millisecond))
	require.NoError(t, err)

	got, err := s.Search(context.Background(), rec("q"), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []common.Record{rec("fast")}, got)
}

func TestShardedCancelledContext(t *testing.T) {
	s, err := NewSharded([]Index{&stubIndex{records: []common.Record{rec("a")}}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Search(ctx, rec("q"), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewShardedRejectsEmpty(t *testing.T) {
	_, err := NewSharded(nil)
	assert.Error(t, err)
}

func TestShardedLoadAndSearch(t *testing.T) {
	cfg := testConfig(StrategyOrdered)
	cfg.Shards.Count = 4
	cfg.Shards.Workers = 2
	s, err := NewShardedFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Shards())

	var src storage.SliceSource
	for i := 0; i < 40; i++ {
		src = append(src, common.Record{
			Label:    fmt.Sprintf("seq-%02d", i),
			Sequence: fmt.Sprintf("ACGT%dTTGA%d", i, i*7),
		})
	}
	n, err := s.Load(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
	assert.Equal(t, 40, s.Len())
	assert.Equal(t, uint64(40), s.Stats().Inserts)

	for _, r := range src {
		owned, err := s.shards[s.shardFor(r.Label)].Search(r, 2)
		require.NoError(t, err)
		assert.Contains(t, owned, r, "%s not in its routed shard", r.Label)
		got, err := s.Search(context.Background(), r, 2)
		require.NoError(t, err)
		assert.Contains(t, got, r)
	}
	assert.Equal(t, uint64(40), s.Stats().Queries)
}
