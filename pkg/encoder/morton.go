package encoder

import (
	"cmp"

	"github.com/juju/errors"
	"seqindex/pkg/common"
)

const mortonAxisMax = 1023

func spreadBits(n uint32) uint64 {
	x := uint64(n)
	x &= 0x000003ff
	x = (x ^ (x << 16)) & 0xff0000ff
	x = (x ^ (x << 8)) & 0x0300f00f
	x = (x ^ (x << 4)) & 0x030c30c3
	x = (x ^ (x << 2)) & 0x09249249
	return x
}

func compactBits(x uint64) uint32 {
	x &= 0x09249249
	x = (x ^ (x >> 2)) & 0x030c30c3
	x = (x ^ (x >> 4)) & 0x0300f00f
	x = (x ^ (x >> 8)) & 0xff0000ff
	x = (x ^ (x >> 16)) & 0x000003ff
	return uint32(x)
}

// Encode3D interleaves three 10-bit coordinates into a Z-order code.
func Encode3D(x, y, z uint32) (int64, error) {
	if x > mortonAxisMax || y > mortonAxisMax || z > mortonAxisMax {
		return 0, errors.NotValidf("coordinate (%d, %d, %d) out of bounds (max %d)", x, y, z, mortonAxisMax)
	}
	res := spreadBits(z)<<2 | spreadBits(y)<<1 | spreadBits(x)
	return int64(res), nil
}

func Decode3D(code int64) (uint32, uint32, uint32) {
	k := uint64(code)
	return compactBits(k), compactBits(k >> 1), compactBits(k >> 2)
}

// MortonKey orders a feature vector by the Z-order code of its first three
// components while keeping the full vector for distance ranking.
type MortonKey struct {
	Code   int64
	Vector []int64
}

func NewMortonKey(vec []int64) MortonKey {
	var axes [3]uint32
	for i := 0; i < len(axes) && i < len(vec); i++ {
		axes[i] = uint32(min(max(vec[i], 0), mortonAxisMax))
	}
	// axes are clamped, Encode3D cannot fail here
	code, _ := Encode3D(axes[0], axes[1], axes[2])
	return MortonKey{Code: code, Vector: vec}
}

// MortonComparator orders by Z-order code (vector order breaks code ties) and
// ranks by L1 distance of the full vectors.
func MortonComparator() Comparator[MortonKey] {
	return Comparator[MortonKey]{
		Order: func(a, b MortonKey) int {
			if c := cmp.Compare(a.Code, b.Code); c != 0 {
				return c
			}
			return compareVectors(a.Vector, b.Vector)
		},
		Distance: func(a, b MortonKey) (float64, error) {
			return L1(a.Vector, b.Vector)
		},
	}
}

// MortonKeys encodes records into MortonKey through a KmerEncoder.
type MortonKeys struct {
	Kmer *KmerEncoder
}

func (m MortonKeys) Encode(rec common.Record) (MortonKey, error) {
	return NewMortonKey(m.Kmer.Vector(rec.Sequence)), nil
}
