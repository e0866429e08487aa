package smt

import "github.com/ethereum/go-ethereum/common"

// ProofParts returns the uncompiled sibling path for a single key: a
// 256-bit bitmap marking which levels (0 = root-adjacent, 255 =
// leaf-adjacent) carry a non-zero sibling, and the non-zero sibling
// hashes themselves in depth order. This is the form the RPC layer's
// no1_merge_value computation and any external verifier that wants the
// raw path (rather than the pruned CompiledProof) consume.
func (e *Engine[V]) ProofParts(key common.Hash) (bitmap [32]byte, siblings []common.Hash, err error) {
	leaves, err := e.snapshotLeaves()
	if err != nil {
		return bitmap, nil, err
	}
	var sibs [Depth]common.Hash
	fillSiblings(leaves, key, 0, &sibs)
	for d := 0; d < Depth; d++ {
		if sibs[d] == (common.Hash{}) {
			continue
		}
		bitmap[d/8] |= 1 << uint(7-(d%8))
		siblings = append(siblings, sibs[d])
	}
	return bitmap, siblings, nil
}

// NoFirstMergeValue returns the first non-zero sibling encountered walking
// from the leaf up to the root, expressed as (zeroCount, zeroBits): the
// number of all-zero levels skipped before it, and the sibling hash
// itself. It returns (255, zero hash) when every level is zero, i.e. the
// key's whole sibling path is empty.
func (e *Engine[V]) NoFirstMergeValue(key common.Hash) (zeroCount uint8, zeroBits common.Hash, err error) {
	leaves, err := e.snapshotLeaves()
	if err != nil {
		return 0, common.Hash{}, err
	}
	var sibs [Depth]common.Hash
	fillSiblings(leaves, key, 0, &sibs)
	count := 0
	for d := Depth - 1; d >= 0; d-- {
		if sibs[d] != (common.Hash{}) {
			return uint8(count), sibs[d], nil
		}
		count++
	}
	return 255, common.Hash{}, nil
}

// fillSiblings walks the bit-path of key from the root downward, recording
// the sibling subtree hash at every level and returning key's own leaf
// hash (zero if unset).
func fillSiblings(leaves []leaf, key common.Hash, depth int, sibs *[Depth]common.Hash) common.Hash {
	if depth == Depth {
		for _, l := range leaves {
			if l.key == key {
				return l.hash
			}
		}
		return common.Hash{}
	}
	left, right := partition(leaves, depth)
	if bitAt(key, depth) == 0 {
		mine := fillSiblings(left, key, depth+1, sibs)
		sibs[depth] = fullRoot(right, depth+1)
		return combine(depth, mine, sibs[depth])
	}
	mine := fillSiblings(right, key, depth+1, sibs)
	sibs[depth] = fullRoot(left, depth+1)
	return combine(depth, sibs[depth], mine)
}
