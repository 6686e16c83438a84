package index

// Doc id sets are 64-bit roaring bitmaps of unsigned keys. Flipping the
// sign bit maps int64 ids onto uint64 keys without changing their order,
// so iterating a bitmap yields ids in ascending order.

const signBit = uint64(1) << 63

// Key converts an external document id into its bitmap key.
func Key(id int64) uint64 { return uint64(id) ^ signBit }

// ID is the inverse of Key.
func ID(key uint64) int64 { return int64(key ^ signBit) }
