package narytree

import (
	"container/heap"

	"github.com/juju/errors"
	"go.uber.org/zap"
	"seqindex/pkg/encoder"
)

type nodeKind uint8

const (
	leafNode nodeKind = iota
	indexNode
)

const noNode int32 = -1

// node is a tagged variant: a leaf holds one payload, an index node holds
// between 2 and B child handles. key is the key of the payload that created
// the node and is what descent distances are measured against.
type node[K, P any] struct {
	kind     nodeKind
	key      K
	payload  P
	seq      uint64
	children []int32
}

// Tree is a self-splitting n-ary similarity tree. Nodes live in an arena and
// refer to their children by handle.
//
// Search is greedy and never backtracks, so Nearest may miss the true
// nearest neighbour when an early branch choice is wrong. This is accepted in
// exchange for logarithmic descent.
//
// Tree is not safe for concurrent mutation; queries only read the arena and
// may run concurrently once building is done.
type Tree[K, P any] struct {
	nodes     []node[K, P]
	root      int32
	branching int
	enc       encoder.KeyEncoder[P, K]
	cmp       encoder.Comparator[K]
	seq       uint64
	logger    *zap.Logger
}

type Option func(*options)

type options struct {
	logger *zap.Logger
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a tree whose index nodes hold at most branching children.
func New[K, P any](branching int, enc encoder.KeyEncoder[P, K], cmp encoder.Comparator[K], opts ...Option) (*Tree[K, P], error) {
	if branching < 2 {
		return nil, errors.NotValidf("branching factor %d", branching)
	}
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Tree[K, P]{
		root:      noNode,
		branching: branching,
		enc:       enc,
		cmp:       cmp,
		logger:    o.logger,
	}, nil
}

// Len returns the number of stored payloads.
func (t *Tree[K, P]) Len() int {
	return int(t.seq)
}

func (t *Tree[K, P]) Branching() int {
	return t.branching
}

func (t *Tree[K, P]) newLeaf(key K, payload P, seq uint64) int32 {
	t.nodes = append(t.nodes, node[K, P]{kind: leafNode, key: key, payload: payload, seq: seq})
	return int32(len(t.nodes) - 1)
}

func (t *Tree[K, P]) Insert(payload P) error {
	key, err := t.enc.Encode(payload)
	if err != nil {
		return errors.Annotate(err, "encode payload")
	}
	return t.InsertKey(key, payload)
}

// InsertKey stores payload under key. A leaf that receives a second item is
// replaced by an index node holding both; a full index node forwards the item
// to its closest child.
func (t *Tree[K, P]) InsertKey(key K, payload P) error {
	seq := t.seq
	if t.root == noNode {
		t.root = t.newLeaf(key, payload, seq)
		t.seq++
		return nil
	}
	cur := t.root
	for {
		switch t.nodes[cur].kind {
		case leafNode:
			old := t.nodes[cur]
			moved := t.newLeaf(old.key, old.payload, old.seq)
			fresh := t.newLeaf(key, payload, seq)
			t.nodes[cur] = node[K, P]{
				kind:     indexNode,
				key:      old.key,
				seq:      old.seq,
				children: []int32{moved, fresh},
			}
			t.seq++
			return nil
		case indexNode:
			if len(t.nodes[cur].children) < t.branching {
				child := t.newLeaf(key, payload, seq)
				t.nodes[cur].children = append(t.nodes[cur].children, child)
				t.seq++
				return nil
			}
			next, _, err := t.closestChild(cur, key)
			if err != nil {
				return errors.Trace(err)
			}
			cur = next
		}
	}
}

// closestChild returns the first child minimising the distance to key.
func (t *Tree[K, P]) closestChild(parent int32, key K) (int32, float64, error) {
	best, bestDist := noNode, 0.0
	for _, child := range t.nodes[parent].children {
		d, err := t.cmp.Distance(key, t.nodes[child].key)
		if err != nil {
			return noNode, 0, err
		}
		if best == noNode || d < bestDist {
			best, bestDist = child, d
		}
	}
	return best, bestDist, nil
}

func (t *Tree[K, P]) Nearest(query P) (P, bool, error) {
	key, err := t.enc.Encode(query)
	if err != nil {
		var zero P
		return zero, false, errors.Annotate(err, "encode query")
	}
	return t.NearestKey(key)
}

// NearestKey descends from the root into the closest child until it reaches a
// leaf.
func (t *Tree[K, P]) NearestKey(key K) (P, bool, error) {
	var zero P
	if t.root == noNode {
		return zero, false, nil
	}
	cur := t.root
	depth := 0
	for t.nodes[cur].kind == indexNode {
		next, _, err := t.closestChild(cur, key)
		if err != nil {
			return zero, false, errors.Trace(err)
		}
		cur = next
		depth++
	}
	t.logger.Debug("greedy descent reached leaf", zap.Int("depth", depth))
	return t.nodes[cur].payload, true, nil
}

func (t *Tree[K, P]) KNearest(query P, k int) ([]P, error) {
	key, err := t.enc.Encode(query)
	if err != nil {
		return nil, errors.Annotate(err, "encode query")
	}
	return t.KNearestKey(key, k)
}

// KNearestKey expands nodes best-first by the summed step distance of their
// ancestor chain and returns the payloads of the first k leaves reached.
// Equal costs prefer the earlier inserted node.
func (t *Tree[K, P]) KNearestKey(key K, k int) ([]P, error) {
	if k <= 0 || t.root == noNode {
		return nil, nil
	}
	d, err := t.cmp.Distance(key, t.nodes[t.root].key)
	if err != nil {
		return nil, errors.Trace(err)
	}
	frontier := &candidates{{node: t.root, cost: d, seq: t.nodes[t.root].seq}}
	var out []P
	for frontier.Len() > 0 && len(out) < k {
		c := heap.Pop(frontier).(candidate)
		n := &t.nodes[c.node]
		if n.kind == leafNode {
			out = append(out, n.payload)
			continue
		}
		for _, child := range n.children {
			step, err := t.cmp.Distance(key, t.nodes[child].key)
			if err != nil {
				return nil, errors.Trace(err)
			}
			heap.Push(frontier, candidate{node: child, cost: c.cost + step, seq: t.nodes[child].seq})
		}
	}
	return out, nil
}

// Depth returns the number of levels below the root.
func (t *Tree[K, P]) Depth() int {
	if t.root == noNode {
		return 0
	}
	var walk func(n int32) int
	walk = func(n int32) int {
		deepest := 0
		for _, child := range t.nodes[n].children {
			deepest = max(deepest, 1+walk(child))
		}
		return deepest
	}
	return walk(t.root)
}

type candidate struct {
	node int32
	cost float64
	seq  uint64
}

type candidates []candidate

func (c candidates) Len() int { return len(c) }
func (c candidates) Less(i, j int) bool {
	if c[i].cost != c[j].cost {
		return c[i].cost < c[j].cost
	}
	return c[i].seq < c[j].seq
}
func (c candidates) Swap(i, j int)       { c[i], c[j] = c[j], c[i] }
func (c *candidates) Push(x interface{}) { *c = append(*c, x.(candidate)) }
func (c *candidates) Pop() interface{} {
	old := *c
	n := len(old)
	x := old[n-1]
	*c = old[:n-1]
	return x
}
