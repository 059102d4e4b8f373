package narytree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"seqindex/pkg/encoder"
)

type item struct {
	ID    int
	Value float64
}

func newItemTree(t *testing.T, branching int) *Tree[float64, item] {
	t.Helper()
	tree, err := New[float64, item](branching,
		encoder.KeyEncoderFunc[item, float64](func(it item) (float64, error) { return it.Value, nil }),
		encoder.Float64Comparator())
	require.NoError(t, err)
	return tree
}

func insertValues(t *testing.T, tree *Tree[float64, item], values ...float64) {
	t.Helper()
	for i, v := range values {
		require.NoError(t, tree.Insert(item{ID: i, Value: v}))
	}
}

func TestNewRejectsSmallBranching(t *testing.T) {
	for _, b := range []int{-1, 0, 1} {
		_, err := New[float64, item](b, nil, encoder.Float64Comparator())
		assert.ErrorContains(t, err, "not valid")
	}
}

func TestEmptyTree(t *testing.T) {
	tree := newItemTree(t, 4)
	_, ok, err := tree.Nearest(item{Value: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := tree.KNearest(item{Value: 1}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, tree.Depth())
	assert.Equal(t, 0, tree.Len())
}

func TestSingleLeafRoot(t *testing.T) {
	tree := newItemTree(t, 2)
	insertValues(t, tree, 42)
	got, ok, err := tree.Nearest(item{Value: -100})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42.0, got.Value)
	assert.Equal(t, 0, tree.Depth())
}

func TestInsertSplitsAndDescends(t *testing.T) {
	tree := newItemTree(t, 2)
	// 0 and 10 split the root; 1 goes under 0, 9 under 10
	insertValues(t, tree, 0, 10, 1, 9)
	assert.Equal(t, 4, tree.Len())
	assert.Equal(t, 2, tree.Depth())

	root := tree.nodes[tree.root]
	require.Equal(t, indexNode, root.kind)
	require.Len(t, root.children, 2)
	for _, child := range root.children {
		assert.Equal(t, indexNode, tree.nodes[child].kind)
		assert.Len(t, tree.nodes[child].children, 2)
	}

	got, ok, err := tree.Nearest(item{Value: 8})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9.0, got.Value)

	got, _, err = tree.Nearest(item{Value: 0.4})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Value)
}

func TestIndexNodeChildBounds(t *testing.T) {
	const branching = 3
	tree := newItemTree(t, branching)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		require.NoError(t, tree.Insert(item{ID: i, Value: rng.Float64() * 100}))
	}
	leaves := 0
	for _, n := range tree.nodes {
		switch n.kind {
		case indexNode:
			assert.GreaterOrEqual(t, len(n.children), 2)
			assert.LessOrEqual(t, len(n.children), branching)
		case leafNode:
			assert.Empty(t, n.children)
			leaves++
		}
	}
	assert.Equal(t, 300, leaves)
}

func TestNearestFirstMinimalChildWins(t *testing.T) {
	tree := newItemTree(t, 3)
	insertValues(t, tree, 5, 3, 7)
	got, _, err := tree.Nearest(item{Value: 4})
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Value)

	got, _, err = tree.Nearest(item{Value: 6})
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Value)
}

func TestNearestIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	values := make([]float64, 200)
	for i := range values {
		values[i] = math.Round(rng.Float64()*1000) / 10
	}
	a := newItemTree(t, 4)
	b := newItemTree(t, 4)
	insertValues(t, a, values...)
	insertValues(t, b, values...)

	for i := 0; i < 100; i++ {
		q := item{Value: rng.Float64() * 100}
		ga, _, err := a.Nearest(q)
		require.NoError(t, err)
		gb, _, err := b.Nearest(q)
		require.NoError(t, err)
		assert.Equal(t, ga, gb)
	}
}

func TestKNearestBestFirst(t *testing.T) {
	tree := newItemTree(t, 2)
	insertValues(t, tree, 0, 10, 1, 9)

	got, err := tree.KNearest(item{Value: 8}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 9.0, got[0].Value)
	assert.Equal(t, 10.0, got[1].Value)

	all, err := tree.KNearest(item{Value: 8}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestKNearestTiePrefersEarlierInsert(t *testing.T) {
	tree := newItemTree(t, 3)
	insertValues(t, tree, 5, 3, 7)

	got, err := tree.KNearest(item{Value: 5}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{got[0].ID, got[1].ID, got[2].ID})

	got, err = tree.KNearest(item{Value: 5}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDistanceErrorSurfaces(t *testing.T) {
	tree, err := New[[]int64, []int64](2,
		encoder.KeyEncoderFunc[[]int64, []int64](func(v []int64) ([]int64, error) { return v, nil }),
		encoder.VectorComparator())
	require.NoError(t, err)
	require.NoError(t, tree.Insert([]int64{1, 2}))
	require.NoError(t, tree.Insert([]int64{3, 4}))

	_, _, err = tree.Nearest([]int64{1})
	assert.ErrorIs(t, err, encoder.ErrEncodingLengthMismatch)
	_, err = tree.KNearest([]int64{1}, 2)
	assert.ErrorIs(t, err, encoder.ErrEncodingLengthMismatch)
}
