package encoder

import "seqindex/pkg/common"

// KeyEncoder turns a payload into the key an index orders or hashes by.
type KeyEncoder[P, K any] interface {
	Encode(payload P) (K, error)
}

// KeyEncoderFunc adapts a plain function to KeyEncoder.
type KeyEncoderFunc[P, K any] func(payload P) (K, error)

func (f KeyEncoderFunc[P, K]) Encode(payload P) (K, error) {
	return f(payload)
}

// VectorEncoder produces a fixed-length integer feature vector. WindowSize is
// a property of the encoding and widens every tolerance window by that much.
type VectorEncoder[P any] interface {
	EncodeVector(payload P) ([]int64, error)
	WindowSize() int64
}

// BitEncoder serializes a payload into a byte string for prefix indexing.
type BitEncoder[P any] interface {
	EncodeBits(payload P) ([]byte, error)
}

type BitEncoderFunc[P any] func(payload P) ([]byte, error)

func (f BitEncoderFunc[P]) EncodeBits(payload P) ([]byte, error) {
	return f(payload)
}

// Comparator keeps ordering and ranking apart: an index may be sorted by
// Order and still pick neighbours by Distance.
type Comparator[K any] struct {
	Order    func(a, b K) int
	Distance func(a, b K) (float64, error)
}

// RecordVectors adapts a KmerEncoder to the Record payload.
type RecordVectors struct {
	Kmer *KmerEncoder
}

func (r RecordVectors) EncodeVector(rec common.Record) ([]int64, error) {
	return r.Kmer.Vector(rec.Sequence), nil
}

func (r RecordVectors) WindowSize() int64 {
	return r.Kmer.WindowSize()
}

// Encode makes RecordVectors usable as a KeyEncoder over raw vectors.
func (r RecordVectors) Encode(rec common.Record) ([]int64, error) {
	return r.Kmer.Vector(rec.Sequence), nil
}

// EncodeBits serializes the k-mer vector with SerializeVector.
func (r RecordVectors) EncodeBits(rec common.Record) ([]byte, error) {
	return SerializeVector(r.Kmer.Vector(rec.Sequence)), nil
}
