package encoder

import (
	"github.com/cespare/xxhash/v2"
	"github.com/juju/errors"
)

// KmerEncoder hashes every k-length window of a sequence into one of Dims
// buckets and counts occurrences. Window is the encoding's slack: it is added
// to every query tolerance by the inverted index.
type KmerEncoder struct {
	K      int
	Dims   int
	Window int64
}

func NewKmerEncoder(k, dims int, window int64) (*KmerEncoder, error) {
	if k < 1 {
		return nil, errors.NotValidf("k-mer width %d", k)
	}
	if dims < 1 {
		return nil, errors.NotValidf("dimension count %d", dims)
	}
	if window < 0 {
		return nil, errors.NotValidf("window size %d", window)
	}
	return &KmerEncoder{K: k, Dims: dims, Window: window}, nil
}

// Vector returns the k-mer frequency vector of seq. A sequence shorter than K
// is counted as a single window covering the whole input.
func (e *KmerEncoder) Vector(seq string) []int64 {
	vec := make([]int64, e.Dims)
	if len(seq) == 0 {
		return vec
	}
	if len(seq) < e.K {
		vec[e.bucket(seq)]++
		return vec
	}
	for i := 0; i+e.K <= len(seq); i++ {
		vec[e.bucket(seq[i:i+e.K])]++
	}
	return vec
}

func (e *KmerEncoder) bucket(window string) int {
	return int(xxhash.Sum64String(window) % uint64(e.Dims))
}

func (e *KmerEncoder) WindowSize() int64 {
	return e.Window
}

// Records binds the encoder to the Record payload.
func (e *KmerEncoder) Records() RecordVectors {
	return RecordVectors{Kmer: e}
}
