package safecore

import "math/big"

// SequenceNonces returns start, start+1, ..., start+count-1.
func SequenceNonces(start *big.Int, count int) []*big.Int {
	if count <= 0 {
		return nil
	}
	out := make([]*big.Int, count)
	for i := range out {
		out[i] = new(big.Int).Add(start, big.NewInt(int64(i)))
	}
	return out
}
