package inverted

import (
	"math"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/btree"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"seqindex/pkg/encoder"
)

// Policy decides what an empty intermediate intersection means.
type Policy int

const (
	// PolicyStrict treats an empty intermediate intersection as no match.
	PolicyStrict Policy = iota
	// PolicyLenient falls back to the last non-empty intermediate set.
	PolicyLenient
)

func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicyLenient:
		return "lenient"
	}
	return "unknown"
}

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "strict":
		return PolicyStrict, nil
	case "lenient":
		return PolicyLenient, nil
	}
	return PolicyStrict, errors.NotValidf("intersection policy %q", s)
}

const defaultDegree = 16

// bucket is one entry of a frequency map: every payload id whose vector has
// value at this dimension, in insertion order.
type bucket struct {
	value int64
	ids   []int
}

func bucketLess(a, b *bucket) bool {
	return a.value < b.value
}

// Index is a tolerance-bounded inverted index over fixed-length integer
// feature vectors. Each dimension has its own ordered frequency map; a query
// takes a symmetric window per dimension and intersects the hits.
//
// Queries only read the frequency maps and may run concurrently once
// building is done.
type Index[P any] struct {
	enc      encoder.VectorEncoder[P]
	dims     []*btree.BTreeG[*bucket]
	payloads []P
	vectors  [][]int64
	policy   Policy
	refine   bool
	degree   int
	logger   *zap.Logger
}

type Option func(*options)

type options struct {
	policy Policy
	refine bool
	degree int
	logger *zap.Logger
}

func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithDistanceRefinement drops candidates whose L1 distance to the query
// exceeds the tolerance window after intersection.
func WithDistanceRefinement() Option {
	return func(o *options) { o.refine = true }
}

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

func New[P any](enc encoder.VectorEncoder[P], opts ...Option) *Index[P] {
	o := options{policy: PolicyStrict, degree: defaultDegree, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Index[P]{
		enc:    enc,
		policy: o.policy,
		refine: o.refine,
		degree: o.degree,
		logger: o.logger,
	}
}

func (idx *Index[P]) Len() int { return len(idx.payloads) }

// Dimensions returns the vector length fixed by the first insert, or 0.
func (idx *Index[P]) Dimensions() int { return len(idx.dims) }

func (idx *Index[P]) Policy() Policy { return idx.policy }

func (idx *Index[P]) Insert(payload P) error {
	vec, err := idx.enc.EncodeVector(payload)
	if err != nil {
		return errors.Annotate(err, "encode payload")
	}
	return idx.InsertVector(vec, payload)
}

// InsertVector records vec[i] -> payload in the frequency map of every
// dimension i. All vectors must have the same length.
func (idx *Index[P]) InsertVector(vec []int64, payload P) error {
	if idx.dims == nil {
		idx.dims = make([]*btree.BTreeG[*bucket], len(vec))
	} else if len(vec) != len(idx.dims) {
		return errors.Annotatef(encoder.ErrEncodingLengthMismatch, "insert %d != %d", len(vec), len(idx.dims))
	}
	id := len(idx.payloads)
	for i, v := range vec {
		fm := idx.dims[i]
		if fm == nil {
			fm = btree.NewG(idx.degree, bucketLess)
			idx.dims[i] = fm
		}
		if b, ok := fm.Get(&bucket{value: v}); ok {
			b.ids = append(b.ids, id)
		} else {
			fm.ReplaceOrInsert(&bucket{value: v, ids: []int{id}})
		}
	}
	idx.payloads = append(idx.payloads, payload)
	idx.vectors = append(idx.vectors, slices.Clone(vec))
	return nil
}

func (idx *Index[P]) Matches(query P, tolerance int64) ([]P, error) {
	vec, err := idx.enc.EncodeVector(query)
	if err != nil {
		return nil, errors.Annotate(err, "encode query")
	}
	return idx.MatchesVector(vec, tolerance)
}

// MatchesVector returns the payloads whose stored value lies within
// WindowSize()+tolerance of vec at every populated dimension.
func (idx *Index[P]) MatchesVector(vec []int64, tolerance int64) ([]P, error) {
	eps := idx.enc.WindowSize() + tolerance
	if eps < 0 {
		return nil, errors.NotValidf("tolerance window %d", eps)
	}
	return idx.match(vec, eps, idx.policy)
}

// ExactMatches runs a zero-width strict query regardless of the configured
// policy.
func (idx *Index[P]) ExactMatches(query P) ([]P, error) {
	vec, err := idx.enc.EncodeVector(query)
	if err != nil {
		return nil, errors.Annotate(err, "encode query")
	}
	return idx.match(vec, 0, PolicyStrict)
}

// match intersects the per-dimension hits. Every frequency map is created by
// the first insert, so dimensions are either all populated or, for
// zero-length vectors, absent; with no dimension to consult the result is
// empty.
func (idx *Index[P]) match(vec []int64, eps int64, policy Policy) ([]P, error) {
	if len(idx.payloads) == 0 {
		return nil, nil
	}
	if len(vec) != len(idx.dims) {
		return nil, errors.Annotatef(encoder.ErrEncodingLengthMismatch, "query %d != %d", len(vec), len(idx.dims))
	}

	var current mapset.Set[int]
	for i, fm := range idx.dims {
		if fm == nil || fm.Len() == 0 {
			continue
		}
		hits := rangeLookup(fm, vec[i], eps)
		if current == nil {
			current = hits
		} else {
			next := current.Intersect(hits)
			if next.Cardinality() == 0 && policy == PolicyLenient {
				idx.logger.Debug("intersection emptied, keeping last candidates",
					zap.Int("dimension", i), zap.Int("candidates", current.Cardinality()))
				break
			}
			current = next
		}
		if current.Cardinality() == 0 {
			return nil, nil
		}
	}
	if current == nil {
		return nil, nil
	}

	ids := current.ToSlice()
	slices.Sort(ids)
	out := make([]P, 0, len(ids))
	for _, id := range ids {
		if idx.refine {
			d, err := encoder.L1(idx.vectors[id], vec)
			if err != nil {
				return nil, errors.Trace(err)
			}
			if d > float64(eps) {
				continue
			}
		}
		out = append(out, idx.payloads[id])
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// rangeLookup collects every id stored under [v-eps, v+eps].
func rangeLookup(fm *btree.BTreeG[*bucket], v, eps int64) mapset.Set[int] {
	lo, hi := saturatingSub(v, eps), saturatingAdd(v, eps)
	hits := mapset.NewThreadUnsafeSet[int]()
	fm.AscendGreaterOrEqual(&bucket{value: lo}, func(b *bucket) bool {
		if b.value > hi {
			return false
		}
		hits.Append(b.ids...)
		return true
	})
	return hits
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func saturatingSub(a, b int64) int64 {
	if b > 0 && a < math.MinInt64+b {
		return math.MinInt64
	}
	return a - b
}
