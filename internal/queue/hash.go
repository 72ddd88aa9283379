package queue

import "github.com/graydnsapconet/tgbot/internal/types"

// finalize mixes a SenderID into a well-distributed 64-bit value so that
// bucket assignment does not cluster on platforms that hand out sequential
// or otherwise low-entropy identifiers. Two rounds of xor-shift-multiply,
// the murmur3 fmix64 finalizer.
func finalize(id types.SenderID) uint64 {
	x := uint64(id)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

func bucketFor(id types.SenderID) int {
	return int(finalize(id) & uint64(bucketMask))
}
