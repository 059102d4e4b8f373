package ordered

import (
	"math"

	"github.com/google/btree"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"seqindex/pkg/encoder"
)

// Epsilon is the slack under which two neighbour distances count as a tie.
const Epsilon = 1e-7

const defaultDegree = 32

// Entry is one key of the index with every payload stored under it, in
// insertion order.
type Entry[K, P any] struct {
	Key      K
	Payloads []P
}

// Index is an ordered similarity index. Keys are kept sorted by the
// comparator's Order function inside a B-tree; neighbours are ranked by its
// Distance function.
//
// Index is not safe for concurrent mutation. Concurrent queries are safe once
// all inserts have finished, since btree read operations do not modify the
// tree.
type Index[K, P any] struct {
	tree   *btree.BTreeG[*Entry[K, P]]
	enc    encoder.KeyEncoder[P, K]
	cmp    encoder.Comparator[K]
	count  int
	logger *zap.Logger
}

type options struct {
	degree int
	logger *zap.Logger
}

type Option func(*options)

// WithDegree sets the B-tree degree.
func WithDegree(degree int) Option {
	return func(o *options) {
		if degree >= 2 {
			o.degree = degree
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func New[K, P any](enc encoder.KeyEncoder[P, K], cmp encoder.Comparator[K], opts ...Option) *Index[K, P] {
	o := options{degree: defaultDegree, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	less := func(a, b *Entry[K, P]) bool {
		return cmp.Order(a.Key, b.Key) < 0
	}
	return &Index[K, P]{
		tree:   btree.NewG(o.degree, less),
		enc:    enc,
		cmp:    cmp,
		logger: o.logger,
	}
}

// Insert encodes payload and appends it to the entry at its key.
func (idx *Index[K, P]) Insert(payload P) error {
	key, err := idx.enc.Encode(payload)
	if err != nil {
		return errors.Annotate(err, "encode payload")
	}
	idx.InsertKey(key, payload)
	return nil
}

// InsertKey appends payload under key. Payloads sharing a key are never
// overwritten.
func (idx *Index[K, P]) InsertKey(key K, payload P) {
	if e, ok := idx.tree.Get(&Entry[K, P]{Key: key}); ok {
		e.Payloads = append(e.Payloads, payload)
	} else {
		idx.tree.ReplaceOrInsert(&Entry[K, P]{Key: key, Payloads: []P{payload}})
	}
	idx.count++
}

// Len returns the number of distinct keys.
func (idx *Index[K, P]) Len() int {
	return idx.tree.Len()
}

// Count returns the number of stored payloads.
func (idx *Index[K, P]) Count() int {
	return idx.count
}

// Entries returns every entry in ascending key order.
func (idx *Index[K, P]) Entries() []Entry[K, P] {
	out := make([]Entry[K, P], 0, idx.tree.Len())
	idx.tree.Ascend(func(e *Entry[K, P]) bool {
		out = append(out, Entry[K, P]{Key: e.Key, Payloads: clonePayloads(e.Payloads)})
		return true
	})
	return out
}

func (idx *Index[K, P]) Exact(query P) ([]P, bool, error) {
	key, err := idx.enc.Encode(query)
	if err != nil {
		return nil, false, errors.Annotate(err, "encode query")
	}
	payloads, ok := idx.ExactKey(key)
	return payloads, ok, nil
}

func (idx *Index[K, P]) ExactKey(key K) ([]P, bool) {
	e, ok := idx.tree.Get(&Entry[K, P]{Key: key})
	if !ok {
		return nil, false
	}
	return clonePayloads(e.Payloads), true
}

func (idx *Index[K, P]) Nearest(query P, includeExact bool) ([]P, bool, error) {
	key, err := idx.enc.Encode(query)
	if err != nil {
		return nil, false, errors.Annotate(err, "encode query")
	}
	return idx.NearestKey(key, includeExact)
}

// NearestKey returns the payloads of the key closest to key. With
// includeExact an exact match wins outright. Otherwise the immediate lower and
// upper neighbours are compared by distance; equal distances return both.
func (idx *Index[K, P]) NearestKey(key K, includeExact bool) ([]P, bool, error) {
	if includeExact {
		if payloads, ok := idx.ExactKey(key); ok {
			return payloads, true, nil
		}
	}
	lower := idx.lower(key, 1)
	upper := idx.upper(key, 1)
	switch {
	case len(lower) == 0 && len(upper) == 0:
		return nil, false, nil
	case len(lower) == 0:
		return clonePayloads(upper[0].Payloads), true, nil
	case len(upper) == 0:
		return clonePayloads(lower[0].Payloads), true, nil
	}
	dl, err := idx.cmp.Distance(key, lower[0].Key)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	du, err := idx.cmp.Distance(key, upper[0].Key)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	switch {
	case math.Abs(dl-du) <= Epsilon:
		out := clonePayloads(lower[0].Payloads)
		return append(out, upper[0].Payloads...), true, nil
	case dl < du:
		return clonePayloads(lower[0].Payloads), true, nil
	default:
		return clonePayloads(upper[0].Payloads), true, nil
	}
}

func (idx *Index[K, P]) KNearest(query P, includeExact bool, k int) ([]P, error) {
	key, err := idx.enc.Encode(query)
	if err != nil {
		return nil, errors.Annotate(err, "encode query")
	}
	return idx.KNearestKey(key, includeExact, k)
}

// KNearestKey walks outward from key with one cursor over strictly lower keys
// and one over strictly higher keys. k budgets keys, not payloads: every
// payload of a consumed key is returned, and a distance tie consumes both
// cursors at once, so the result may hold more than k payloads. A tie met
// with a single key of budget left still takes both keys, so up to k+1 keys
// can be consumed.
func (idx *Index[K, P]) KNearestKey(key K, includeExact bool, k int) ([]P, error) {
	if k <= 0 || idx.tree.Len() == 0 {
		return nil, nil
	}
	k = min(k, idx.tree.Len())

	var out []P
	if includeExact {
		if e, ok := idx.tree.Get(&Entry[K, P]{Key: key}); ok {
			out = append(out, e.Payloads...)
			k--
		}
	}
	if k <= 0 {
		return out, nil
	}

	// neither cursor can advance more than k times
	lower := idx.lower(key, k)
	upper := idx.upper(key, k)
	i, j := 0, 0
	for k > 0 && (i < len(lower) || j < len(upper)) {
		switch {
		case i == len(lower):
			out = append(out, upper[j].Payloads...)
			j++
			k--
		case j == len(upper):
			out = append(out, lower[i].Payloads...)
			i++
			k--
		default:
			dl, err := idx.cmp.Distance(key, lower[i].Key)
			if err != nil {
				return nil, errors.Trace(err)
			}
			du, err := idx.cmp.Distance(key, upper[j].Key)
			if err != nil {
				return nil, errors.Trace(err)
			}
			switch {
			case math.Abs(dl-du) <= Epsilon:
				out = append(out, lower[i].Payloads...)
				out = append(out, upper[j].Payloads...)
				i++
				j++
				k -= 2
			case dl < du:
				out = append(out, lower[i].Payloads...)
				i++
				k--
			default:
				out = append(out, upper[j].Payloads...)
				j++
				k--
			}
		}
	}
	idx.logger.Debug("k-nearest walk finished",
		zap.Int("lower_consumed", i),
		zap.Int("upper_consumed", j),
		zap.Int("payloads", len(out)))
	return out, nil
}

// lower collects up to n entries strictly below key, nearest first.
func (idx *Index[K, P]) lower(key K, n int) []*Entry[K, P] {
	var out []*Entry[K, P]
	idx.tree.DescendLessOrEqual(&Entry[K, P]{Key: key}, func(e *Entry[K, P]) bool {
		if idx.cmp.Order(e.Key, key) == 0 {
			return true
		}
		out = append(out, e)
		return len(out) < n
	})
	return out
}

// upper collects up to n entries strictly above key, nearest first.
func (idx *Index[K, P]) upper(key K, n int) []*Entry[K, P] {
	var out []*Entry[K, P]
	idx.tree.AscendGreaterOrEqual(&Entry[K, P]{Key: key}, func(e *Entry[K, P]) bool {
		if idx.cmp.Order(e.Key, key) == 0 {
			return true
		}
		out = append(out, e)
		return len(out) < n
	})
	return out
}

func clonePayloads[P any](payloads []P) []P {
	return append([]P(nil), payloads...)
}
