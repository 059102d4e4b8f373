package encoder

import "math/bits"

// SerializeVector packs a vector into one byte per component, saturating at
// 0 and 255, so that lexicographic byte order follows component order.
func SerializeVector(vec []int64) []byte {
	out := make([]byte, len(vec))
	for i, v := range vec {
		out[i] = byte(min(max(v, 0), 255))
	}
	return out
}

// CommonPrefixBits counts the leading bits a and b share.
func CommonPrefixBits(a, b []byte) int {
	n := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if x := a[i] ^ b[i]; x != 0 {
			return n + bits.LeadingZeros8(x)
		}
		n += 8
	}
	return n
}
