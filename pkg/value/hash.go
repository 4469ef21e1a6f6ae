package value

// Mix64 is a splitmix64-style bit mixer, used by the VM's default hash
// operator to hash a value's raw bit pattern (spec.md §4.7). Murmur2Bytes
// below does not use it; it has its own finishing mix.
func Mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// Murmur2Bytes computes a 64-bit Murmur2-style hash of data with the given
// seed. This is koji's string content hash (spec.md §4.3, §4.7): strings
// hash their bytes rather than their object identity, which is what lets
// table keys compare strings by content. (The compiler's constant
// interning keys on the Go string itself, not on this hash.)
func Murmur2Bytes(data []byte, seed uint64) uint64 {
	const m = 0xc6a4a7935bd1e995
	const r = 47

	h := seed ^ (uint64(len(data)) * m)

	for len(data) >= 8 {
		k := uint64(data[0]) | uint64(data[1])<<8 | uint64(data[2])<<16 |
			uint64(data[3])<<24 | uint64(data[4])<<32 | uint64(data[5])<<40 |
			uint64(data[6])<<48 | uint64(data[7])<<56

		k *= m
		k ^= k >> r
		k *= m

		h ^= k
		h *= m

		data = data[8:]
	}

	if len(data) > 0 {
		var k uint64
		for i := len(data) - 1; i >= 0; i-- {
			k = k<<8 | uint64(data[i])
		}
		h ^= k
		h *= m
	}

	h ^= h >> r
	h *= m
	h ^= h >> r

	return h
}
