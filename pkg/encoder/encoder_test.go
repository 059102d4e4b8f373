package encoder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"seqindex/pkg/common"
)

func TestL1LengthMismatch(t *testing.T) {
	d, err := L1([]int64{1, 2, 3}, []int64{1, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)

	_, err = L1([]int64{1, 2}, []int64{1, 2, 3})
	assert.ErrorIs(t, err, ErrEncodingLengthMismatch)
	_, err = L2([]float64{1}, nil)
	assert.ErrorIs(t, err, ErrEncodingLengthMismatch)
}

func TestDistancesAtExtremes(t *testing.T) {
	d, err := L1([]int64{math.MaxInt64, 0}, []int64{math.MinInt64, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2*float64(math.MaxInt64), d, 1e6)

	c := Int64Comparator()
	assert.Equal(t, -1, c.Order(math.MinInt64, math.MaxInt64))
	assert.Equal(t, 0, c.Order(7, 7))
	d, err = c.Distance(math.MinInt64, math.MaxInt64)
	require.NoError(t, err)
	assert.InDelta(t, 2*float64(math.MaxInt64), d, 1e6)
	d, err = c.Distance(3, -4)
	require.NoError(t, err)
	assert.Equal(t, 7.0, d)
}

func TestL2(t *testing.T) {
	d, err := L2([]float64{0, 0}, []float64{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-9)
}

func TestKmerVector(t *testing.T) {
	enc, err := NewKmerEncoder(3, 16, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), enc.WindowSize())

	vec := enc.Vector("ACGTACGT")
	assert.Len(t, vec, 16)
	var total int64
	for _, v := range vec {
		total += v
	}
	// 8 characters, 6 windows of width 3
	assert.Equal(t, int64(6), total)
	assert.Equal(t, vec, enc.Vector("ACGTACGT"))
}

func TestKmerShortInputIsOneUnit(t *testing.T) {
	enc, err := NewKmerEncoder(5, 8, 0)
	require.NoError(t, err)
	vec := enc.Vector("AC")
	var total int64
	for _, v := range vec {
		total += v
	}
	assert.Equal(t, int64(1), total)
	assert.Equal(t, make([]int64, 8), enc.Vector(""))
}

func TestNewKmerEncoderValidation(t *testing.T) {
	_, err := NewKmerEncoder(0, 8, 0)
	assert.Error(t, err)
	_, err = NewKmerEncoder(3, 0, 0)
	assert.Error(t, err)
	_, err = NewKmerEncoder(3, 8, -1)
	assert.Error(t, err)
}

func TestMortonRoundTrip(t *testing.T) {
	code, err := Encode3D(5, 1023, 77)
	require.NoError(t, err)
	x, y, z := Decode3D(code)
	assert.Equal(t, []uint32{5, 1023, 77}, []uint32{x, y, z})

	_, err = Encode3D(1024, 0, 0)
	assert.Error(t, err)
}

func TestMortonComparator(t *testing.T) {
	c := MortonComparator()
	a := NewMortonKey([]int64{1, 0, 0, 9})
	b := NewMortonKey([]int64{1, 0, 0, 3})
	assert.Equal(t, a.Code, b.Code)
	assert.Equal(t, 1, c.Order(a, b))
	assert.Equal(t, 0, c.Order(a, a))
	d, err := c.Distance(a, b)
	require.NoError(t, err)
	assert.Equal(t, 6.0, d)

	// negative and oversized components are clamped into the code
	k := NewMortonKey([]int64{-4, 5000})
	x, y, z := Decode3D(k.Code)
	assert.Equal(t, []uint32{0, 1023, 0}, []uint32{x, y, z})
}

func TestSerializeVector(t *testing.T) {
	assert.Equal(t, []byte{0, 3, 255}, SerializeVector([]int64{-1, 3, 300}))
}

func TestCommonPrefixBits(t *testing.T) {
	assert.Equal(t, 16, CommonPrefixBits([]byte{1, 2}, []byte{1, 2}))
	assert.Equal(t, 8+6, CommonPrefixBits([]byte{1, 0b00000010}, []byte{1, 0b00000001}))
	assert.Equal(t, 0, CommonPrefixBits([]byte{0x80}, []byte{0x00}))
	assert.Equal(t, 8, CommonPrefixBits([]byte{7}, []byte{7, 1}))
}

func TestRecordVectors(t *testing.T) {
	enc, err := NewKmerEncoder(2, 32, 2)
	require.NoError(t, err)
	rv := enc.Records()
	rec := common.Record{Label: "r1", Sequence: "GATTACA"}

	vec, err := rv.EncodeVector(rec)
	require.NoError(t, err)
	assert.Equal(t, enc.Vector("GATTACA"), vec)
	assert.Equal(t, int64(2), rv.WindowSize())

	bits, err := rv.EncodeBits(rec)
	require.NoError(t, err)
	assert.Equal(t, SerializeVector(vec), bits)

	key, err := MortonKeys{Kmer: enc}.Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, vec, key.Vector)
}
