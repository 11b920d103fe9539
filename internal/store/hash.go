package store

// hashKey is djb2: h = h*33 + c over the key's bytes, wrapping on overflow.
func hashKey(key string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(key); i++ {
		h = (h << 5) + h + uint64(key[i])
	}
	return h
}
