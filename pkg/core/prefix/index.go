package prefix

import (
	"bytes"

	iradix "github.com/hashicorp/go-immutable-radix/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"seqindex/pkg/core/structure"
	"seqindex/pkg/encoder"
)

const (
	defaultBloomKeys = 1 << 16
	defaultBloomFP   = 0.01
)

// Entry is one serialized key with every payload stored under it.
type Entry[P any] struct {
	Key      []byte
	Payloads []P
}

// Index is a compressed radix tree over serialized keys. Exact lookups go
// through a bloom filter first; Select and KNearest fall back to the
// neighbouring keys in trie order.
//
// Every insert produces a new immutable tree snapshot. Queries are safe to
// run concurrently once building is done.
type Index[P any] struct {
	tree   *iradix.Tree[[]P]
	bloom  *structure.BloomFilter
	enc    encoder.BitEncoder[P]
	count  int
	logger *zap.Logger
}

type Option func(*options)

type options struct {
	bloomKeys uint
	bloomFP   float64
	logger    *zap.Logger
}

// WithBloom sizes the exact-lookup bloom filter for n keys at rate p.
func WithBloom(n uint, p float64) Option {
	return func(o *options) {
		o.bloomKeys, o.bloomFP = n, p
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an empty index. enc is only needed by InsertPayload and may be
// nil when callers supply keys themselves.
func New[P any](enc encoder.BitEncoder[P], opts ...Option) *Index[P] {
	o := options{bloomKeys: defaultBloomKeys, bloomFP: defaultBloomFP, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Index[P]{
		tree:   iradix.New[[]P](),
		bloom:  structure.NewBloomFilter(o.bloomKeys, o.bloomFP),
		enc:    enc,
		logger: o.logger,
	}
}

// Len returns the number of distinct keys.
func (idx *Index[P]) Len() int { return idx.tree.Len() }

// Count returns the number of stored payloads.
func (idx *Index[P]) Count() int { return idx.count }

func (idx *Index[P]) Insert(key []byte, payload P) {
	old, _ := idx.tree.Get(key)
	// 不修改旧快照中的切片
	payloads := append(old[:len(old):len(old)], payload)
	idx.tree, _, _ = idx.tree.Insert(key, payloads)
	idx.bloom.Add(key)
	idx.count++
}

func (idx *Index[P]) InsertPayload(payload P) error {
	if idx.enc == nil {
		return errors.New("prefix index has no bit encoder")
	}
	key, err := idx.enc.EncodeBits(payload)
	if err != nil {
		return errors.Annotate(err, "encode payload")
	}
	idx.Insert(key, payload)
	return nil
}

func (idx *Index[P]) Exact(key []byte) ([]P, bool) {
	if !idx.bloom.Contains(key) {
		return nil, false
	}
	payloads, ok := idx.tree.Get(key)
	if !ok {
		idx.logger.Debug("bloom filter false positive", zap.Binary("key", key))
		return nil, false
	}
	return clonePayloads(payloads), true
}

// Select returns the entry at key, or the existing key that shares the
// longest bit prefix with it among its two trie-order neighbours. Equal
// prefixes prefer the preceding key.
func (idx *Index[P]) Select(key []byte) (Entry[P], bool) {
	if payloads, ok := idx.Exact(key); ok {
		return Entry[P]{Key: bytes.Clone(key), Payloads: payloads}, true
	}
	if idx.tree.Len() == 0 {
		return Entry[P]{}, false
	}
	prevKey, prevVal, hasPrev := idx.predecessor(key)
	nextKey, nextVal, hasNext := idx.successor(key)
	switch {
	case hasPrev && hasNext:
		if encoder.CommonPrefixBits(key, nextKey) > encoder.CommonPrefixBits(key, prevKey) {
			return newEntry(nextKey, nextVal), true
		}
		return newEntry(prevKey, prevVal), true
	case hasPrev:
		return newEntry(prevKey, prevVal), true
	case hasNext:
		return newEntry(nextKey, nextVal), true
	}
	return Entry[P]{}, false
}

// KNearest starts from Select(key) and alternately takes the previous and
// next key in trie order until k keys are collected or both directions run
// out.
func (idx *Index[P]) KNearest(key []byte, k int) []Entry[P] {
	if k <= 0 {
		return nil
	}
	start, ok := idx.Select(key)
	if !ok {
		return nil
	}
	out := []Entry[P]{start}

	rev := idx.tree.Root().ReverseIterator()
	rev.SeekReverseLowerBound(start.Key)
	fwd := idx.tree.Root().Iterator()
	fwd.SeekLowerBound(start.Key)
	prev := func() (Entry[P], bool) {
		for {
			ek, ev, ok := rev.Previous()
			if !ok {
				return Entry[P]{}, false
			}
			if !bytes.Equal(ek, start.Key) {
				return newEntry(ek, ev), true
			}
		}
	}
	next := func() (Entry[P], bool) {
		for {
			ek, ev, ok := fwd.Next()
			if !ok {
				return Entry[P]{}, false
			}
			if !bytes.Equal(ek, start.Key) {
				return newEntry(ek, ev), true
			}
		}
	}

	prevDone, nextDone := false, false
	for len(out) < k && !(prevDone && nextDone) {
		if !prevDone {
			if e, ok := prev(); ok {
				out = append(out, e)
			} else {
				prevDone = true
			}
		}
		if len(out) >= k {
			break
		}
		if !nextDone {
			if e, ok := next(); ok {
				out = append(out, e)
			} else {
				nextDone = true
			}
		}
	}
	return out
}

// Entries returns every key in trie order.
func (idx *Index[P]) Entries() []Entry[P] {
	out := make([]Entry[P], 0, idx.tree.Len())
	it := idx.tree.Root().Iterator()
	for k, v, ok := it.Next(); ok; k, v, ok = it.Next() {
		out = append(out, newEntry(k, v))
	}
	return out
}

func (idx *Index[P]) predecessor(key []byte) ([]byte, []P, bool) {
	it := idx.tree.Root().ReverseIterator()
	it.SeekReverseLowerBound(key)
	for {
		k, v, ok := it.Previous()
		if !ok {
			return nil, nil, false
		}
		if bytes.Compare(k, key) < 0 {
			return k, v, true
		}
	}
}

func (idx *Index[P]) successor(key []byte) ([]byte, []P, bool) {
	it := idx.tree.Root().Iterator()
	it.SeekLowerBound(key)
	for {
		k, v, ok := it.Next()
		if !ok {
			return nil, nil, false
		}
		if bytes.Compare(k, key) > 0 {
			return k, v, true
		}
	}
}

func newEntry[P any](key []byte, payloads []P) Entry[P] {
	return Entry[P]{Key: bytes.Clone(key), Payloads: clonePayloads(payloads)}
}

func clonePayloads[P any](payloads []P) []P {
	out := make([]P, len(payloads))
	copy(out, payloads)
	return out
}
