package core

import (
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"seqindex/pkg/common"
	"seqindex/pkg/config"
	"seqindex/pkg/core/inverted"
	"seqindex/pkg/core/narytree"
	"seqindex/pkg/core/ordered"
	"seqindex/pkg/core/prefix"
	"seqindex/pkg/encoder"
)

const (
	StrategyOrdered  = "ordered"
	StrategyNary     = "nary"
	StrategyInverted = "inverted"
	StrategyPrefix   = "prefix"
)

var (
	ErrUnknownStrategy = errors.New("unknown index strategy")
	ErrAllShardsFailed = errors.New("all shards failed")
)

// Index 抽象接口，屏蔽四种相似度索引的差异
type Index interface {
	Insert(rec common.Record) error
	Search(query common.Record, k int) ([]common.Record, error)
	Len() int
	Type() string // "ordered", "nary", "inverted", "prefix"
}

// New builds one empty index of the strategy named in cfg.Index, encoding
// records with the k-mer encoder described by cfg.Encoder.
func New(cfg *config.Config, logger *zap.Logger) (Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kmer, err := encoder.NewKmerEncoder(cfg.Encoder.K, cfg.Encoder.Dims, cfg.Encoder.Window)
	if err != nil {
		return nil, errors.Trace(err)
	}
	logger = logger.With(zap.String("strategy", cfg.Index.Strategy))

	switch cfg.Index.Strategy {
	case StrategyOrdered:
		return newOrderedIndex(kmer, cfg.Index, logger), nil
	case StrategyNary:
		return newNaryIndex(kmer, cfg.Index, logger)
	case StrategyInverted:
		return newInvertedIndex(kmer, cfg.Index, logger)
	case StrategyPrefix:
		return newPrefixIndex(kmer, cfg.Index, logger), nil
	}
	return nil, errors.Annotatef(ErrUnknownStrategy, "%q", cfg.Index.Strategy)
}

type orderedIndex struct {
	idx *ordered.Index[encoder.MortonKey, common.Record]
}

func newOrderedIndex(kmer *encoder.KmerEncoder, cfg config.IndexConfig, logger *zap.Logger) *orderedIndex {
	return &orderedIndex{
		idx: ordered.New[encoder.MortonKey, common.Record](
			encoder.MortonKeys{Kmer: kmer},
			encoder.MortonComparator(),
			ordered.WithDegree(cfg.Degree),
			ordered.WithLogger(logger)),
	}
}

func (o *orderedIndex) Insert(rec common.Record) error {
	return o.idx.Insert(rec)
}

func (o *orderedIndex) Search(query common.Record, k int) ([]common.Record, error) {
	return o.idx.KNearest(query, true, k)
}

func (o *orderedIndex) Len() int     { return o.idx.Count() }
func (o *orderedIndex) Type() string { return StrategyOrdered }

type naryIndex struct {
	tree *narytree.Tree[[]int64, common.Record]
}

func newNaryIndex(kmer *encoder.KmerEncoder, cfg config.IndexConfig, logger *zap.Logger) (*naryIndex, error) {
	tree, err := narytree.New[[]int64, common.Record](cfg.Branching,
		kmer.Records(), encoder.VectorComparator(), narytree.WithLogger(logger))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &naryIndex{tree: tree}, nil
}

func (n *naryIndex) Insert(rec common.Record) error {
	return n.tree.Insert(rec)
}

func (n *naryIndex) Search(query common.Record, k int) ([]common.Record, error) {
	return n.tree.KNearest(query, k)
}

func (n *naryIndex) Len() int     { return n.tree.Len() }
func (n *naryIndex) Type() string { return StrategyNary }

type invertedIndex struct {
	idx       *inverted.Index[common.Record]
	tolerance int64
}

func newInvertedIndex(kmer *encoder.KmerEncoder, cfg config.IndexConfig, logger *zap.Logger) (*invertedIndex, error) {
	policy, err := inverted.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, errors.Trace(err)
	}
	opts := []inverted.Option{inverted.WithPolicy(policy), inverted.WithLogger(logger)}
	if cfg.Refine {
		opts = append(opts, inverted.WithDistanceRefinement())
	}
	return &invertedIndex{
		idx:       inverted.New[common.Record](kmer.Records(), opts...),
		tolerance: cfg.Tolerance,
	}, nil
}

func (i *invertedIndex) Insert(rec common.Record) error {
	return i.idx.Insert(rec)
}

// Search returns at most k matches within the configured tolerance, in
// insertion order.
func (i *invertedIndex) Search(query common.Record, k int) ([]common.Record, error) {
	if k <= 0 {
		return nil, nil
	}
	matches, err := i.idx.Matches(query, i.tolerance)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (i *invertedIndex) Len() int     { return i.idx.Len() }
func (i *invertedIndex) Type() string { return StrategyInverted }

type prefixIndex struct {
	idx *prefix.Index[common.Record]
	enc encoder.RecordVectors
}

func newPrefixIndex(kmer *encoder.KmerEncoder, cfg config.IndexConfig, logger *zap.Logger) *prefixIndex {
	enc := kmer.Records()
	return &prefixIndex{
		idx: prefix.New[common.Record](enc,
			prefix.WithBloom(cfg.BloomSize, cfg.BloomFalseProb),
			prefix.WithLogger(logger)),
		enc: enc,
	}
}

func (p *prefixIndex) Insert(rec common.Record) error {
	return p.idx.InsertPayload(rec)
}

func (p *prefixIndex) Search(query common.Record, k int) ([]common.Record, error) {
	key, err := p.enc.EncodeBits(query)
	if err != nil {
		return nil, errors.Annotate(err, "encode query")
	}
	return lo.FlatMap(p.idx.KNearest(key, k), func(e prefix.Entry[common.Record], _ int) []common.Record {
		return e.Payloads
	}), nil
}

func (p *prefixIndex) Len() int     { return p.idx.Count() }
func (p *prefixIndex) Type() string { return StrategyPrefix }
