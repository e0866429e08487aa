package smt

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// proof node tags, used by the compiled proof's binary encoding.
const (
	tagFixed    byte = 0
	tagSlot     byte = 1
	tagInternal byte = 2
)

// proofNode is one node of the pruned Merkle tree that a compiled proof
// encodes: a "fixed" node caches the hash of a subtree containing none of
// the proof's keys, a "slot" node marks the exact path of one of the
// proof's keys, and an "internal" node is a genuine branch point between
// two subtrees that both matter to the proof.
type proofNode struct {
	tag    byte
	fixed  common.Hash
	keyIdx int
	left   *proofNode
	right  *proofNode
}

// CompiledProof is the opaque, serializable proof produced by Proof and
// consumed by Verify and FutureRoot.
type CompiledProof struct {
	Keys []common.Hash
	root *proofNode
}

// Proof builds a compiled proof covering the given keys against the
// engine's current state. The proof records, for every branch the keys
// touch, the sibling hash of whichever side holds none of the requested
// keys, pruning everything else.
func (e *Engine[V]) Proof(keys []common.Hash) (CompiledProof, error) {
	leaves, err := e.snapshotLeaves()
	if err != nil {
		return CompiledProof{}, err
	}
	idx := make(map[common.Hash]int, len(keys))
	for i, k := range keys {
		idx[k] = i
	}
	_, node := buildProof(leaves, keys, idx, 0)
	return CompiledProof{Keys: keys, root: node}, nil
}

// buildProof simultaneously computes the subtree hash and, when the
// subtree contains at least one of the requested keys, the pruned proof
// node for it. Subtrees with none of the requested keys return a nil node:
// the caller folds the hash in as a tagFixed leaf of the parent.
func buildProof(leaves []leaf, requested []common.Hash, idx map[common.Hash]int, depth int) (common.Hash, *proofNode) {
	if len(requested) == 0 {
		return fullRoot(leaves, depth), nil
	}
	if depth == Depth {
		var h common.Hash
		if len(leaves) > 0 {
			h = leaves[0].hash
		}
		return h, &proofNode{tag: tagSlot, keyIdx: idx[requested[0]]}
	}
	leftLeaves, rightLeaves := partition(leaves, depth)
	leftReq, rightReq := partitionKeys(requested, depth)

	lh, lnode := buildProof(leftLeaves, leftReq, idx, depth+1)
	rh, rnode := buildProof(rightLeaves, rightReq, idx, depth+1)
	if lnode == nil {
		lnode = &proofNode{tag: tagFixed, fixed: lh}
	}
	if rnode == nil {
		rnode = &proofNode{tag: tagFixed, fixed: rh}
	}
	return combine(depth, lh, rh), &proofNode{tag: tagInternal, left: lnode, right: rnode}
}

func partitionKeys(keys []common.Hash, depth int) (left, right []common.Hash) {
	for _, k := range keys {
		if bitAt(k, depth) == 0 {
			left = append(left, k)
		} else {
			right = append(right, k)
		}
	}
	return
}

// FutureRoot computes the root the engine would have after UpdateAll(batch)
// were applied, using proof (which must cover exactly batch's key set)
// instead of touching the stored tree. It does not mutate engine state.
func (e *Engine[V]) FutureRoot(proof CompiledProof, batch map[common.Hash]V) (common.Hash, error) {
	leafHashes := make([]common.Hash, len(proof.Keys))
	for i, k := range proof.Keys {
		v, ok := batch[k]
		if !ok {
			return common.Hash{}, fmt.Errorf("smt: future_root: key %s not present in batch", k)
		}
		if !e.codec.IsZero(v) {
			leafHashes[i] = leafHashOf(e.codec, v)
		}
	}
	return evalDepthAware(proof.root, leafHashes, 0), nil
}

// Verify reports whether proof is the canonical proof for its key set
// against the engine's current root: it recomputes the root the proof
// implies using the values currently stored for each key and compares it
// to the live Root().
func (e *Engine[V]) Verify(proof CompiledProof) (bool, error) {
	leafHashes := make([]common.Hash, len(proof.Keys))
	for i, k := range proof.Keys {
		v, err := e.Get(k)
		if err != nil {
			return false, err
		}
		if !e.codec.IsZero(v) {
			leafHashes[i] = leafHashOf(e.codec, v)
		}
	}
	root, err := e.Root()
	if err != nil {
		return false, err
	}
	return evalDepthAware(proof.root, leafHashes, 0) == root, nil
}

func leafHashOf[V any](codec Codec[V], v V) common.Hash {
	return hashEncoded(codec.Encode(v))
}

// evalDepthAware walks the pruned tree top-down, tracking depth so
// internal nodes can reproduce the exact combine(depth, ...) calls used at
// proof-build time.
func evalDepthAware(n *proofNode, leafHashes []common.Hash, depth int) common.Hash {
	switch n.tag {
	case tagFixed:
		return n.fixed
	case tagSlot:
		return leafHashes[n.keyIdx]
	default:
		l := evalDepthAware(n.left, leafHashes, depth+1)
		r := evalDepthAware(n.right, leafHashes, depth+1)
		return combine(depth, l, r)
	}
}

// Marshal serializes the proof to its opaque compiled-proof byte form.
func (p CompiledProof) Marshal() []byte {
	var buf bytes.Buffer
	var nkeys [4]byte
	binary.BigEndian.PutUint32(nkeys[:], uint32(len(p.Keys)))
	buf.Write(nkeys[:])
	for _, k := range p.Keys {
		buf.Write(k[:])
	}
	encodeNode(&buf, p.root)
	return buf.Bytes()
}

func encodeNode(buf *bytes.Buffer, n *proofNode) {
	buf.WriteByte(n.tag)
	switch n.tag {
	case tagFixed:
		buf.Write(n.fixed[:])
	case tagSlot:
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], uint32(n.keyIdx))
		buf.Write(idx[:])
	case tagInternal:
		encodeNode(buf, n.left)
		encodeNode(buf, n.right)
	}
}

// Unmarshal decodes a compiled proof produced by Marshal.
func Unmarshal(data []byte) (CompiledProof, error) {
	if len(data) < 4 {
		return CompiledProof{}, fmt.Errorf("smt: proof too short")
	}
	nkeys := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	keys := make([]common.Hash, nkeys)
	for i := range keys {
		if len(data) < 32 {
			return CompiledProof{}, fmt.Errorf("smt: truncated proof keys")
		}
		copy(keys[i][:], data[:32])
		data = data[32:]
	}
	node, rest, err := decodeNode(data)
	if err != nil {
		return CompiledProof{}, err
	}
	if len(rest) != 0 {
		return CompiledProof{}, fmt.Errorf("smt: trailing bytes in proof")
	}
	return CompiledProof{Keys: keys, root: node}, nil
}

func decodeNode(data []byte) (*proofNode, []byte, error) {
	if len(data) < 1 {
		return nil, nil, fmt.Errorf("smt: truncated proof node")
	}
	tag := data[0]
	data = data[1:]
	switch tag {
	case tagFixed:
		if len(data) < 32 {
			return nil, nil, fmt.Errorf("smt: truncated fixed node")
		}
		var h common.Hash
		copy(h[:], data[:32])
		return &proofNode{tag: tagFixed, fixed: h}, data[32:], nil
	case tagSlot:
		if len(data) < 4 {
			return nil, nil, fmt.Errorf("smt: truncated slot node")
		}
		idx := binary.BigEndian.Uint32(data[:4])
		return &proofNode{tag: tagSlot, keyIdx: int(idx)}, data[4:], nil
	case tagInternal:
		left, rest, err := decodeNode(data)
		if err != nil {
			return nil, nil, err
		}
		right, rest2, err := decodeNode(rest)
		if err != nil {
			return nil, nil, err
		}
		return &proofNode{tag: tagInternal, left: left, right: right}, rest2, nil
	default:
		return nil, nil, fmt.Errorf("smt: unknown proof node tag %d", tag)
	}
}
