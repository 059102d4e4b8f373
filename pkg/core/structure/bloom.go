package structure

import (
	"math"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
)

// BloomFilter answers "definitely absent" for byte keys.
type BloomFilter struct {
	bits  *bitset.BitSet
	k     uint
	m     uint
	count uint
	lock  sync.RWMutex
}

// NewBloomFilter sizes the filter for n expected keys at false-positive rate p.
func NewBloomFilter(n uint, p float64) *BloomFilter {
	if n == 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	// m = -(n * ln(p)) / (ln(2)^2)
	// k = (m / n) * ln(2)
	m := uint(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	k := uint(math.Ceil(float64(m) / float64(n) * math.Ln2))
	return &BloomFilter{
		bits: bitset.New(m),
		k:    max(k, 1),
		m:    m,
	}
}

// 双重哈希：h1 + i*h2
func (bf *BloomFilter) positions(key []byte, fn func(pos uint) bool) {
	sum := xxhash.Sum64(key)
	h1, h2 := uint32(sum), uint32(sum>>32)|1
	for i := uint(0); i < bf.k; i++ {
		pos := uint(h1+uint32(i)*h2) % bf.m
		if !fn(pos) {
			return
		}
	}
}

func (bf *BloomFilter) Add(key []byte) {
	bf.lock.Lock()
	defer bf.lock.Unlock()
	bf.positions(key, func(pos uint) bool {
		bf.bits.Set(pos)
		return true
	})
	bf.count++
}

func (bf *BloomFilter) Contains(key []byte) bool {
	bf.lock.RLock()
	defer bf.lock.RUnlock()
	found := true
	bf.positions(key, func(pos uint) bool {
		found = bf.bits.Test(pos)
		return found
	})
	return found
}

func (bf *BloomFilter) Stats() map[string]interface{} {
	bf.lock.RLock()
	defer bf.lock.RUnlock()
	return map[string]interface{}{
		"bloom_bits_size": bf.m,
		"bloom_bits_set":  bf.bits.Count(),
		"bloom_hashes":    bf.k,
		"bloom_count":     bf.count,
	}
}
