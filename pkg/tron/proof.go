// Copyright 2025 Certen Protocol

package tron

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/untron/intent-solver/pkg/merkle"
	"github.com/untron/intent-solver/pkg/tron/protocol"
)

// InclusionProof20 is the 20-block packed-header + Merkle inclusion proof
// the hub's reader contract verifies, matching hub.TronProof's shape
// (Blocks [20][]byte, EncodedTx, Proof [][32]byte, Index).
//
// The packed block header's full field layout beyond two documented byte
// ranges (digest over [2:107], the 65-byte recoverable producer signature
// at [109:174]) is not pinned down here. Rather than guess the remaining
// field layout, this builder treats "packed header" as an opaque blob
// obtained directly from NodeClient.GetBlockByNum2/GetNowBlock2's second
// return value — the seam where a packed-header-aware node implementation
// plugs in — and only touches the two documented ranges when it needs them.
type InclusionProof20 struct {
	Blocks    [20][]byte
	EncodedTx []byte
	Proof     [][32]byte
	Index     int64
}

const (
	packedHeaderSize      = 174
	packedHeaderDigestLo  = 2
	packedHeaderDigestHi  = 107
	packedHeaderSigOffset = 109
)

// BuildInclusionProof fetches the block containing txid plus the 19 blocks
// after it (the "20-block" confirmation depth), and a Merkle sibling-path
// proof of txid's position within its own block's transaction trie.
func (c *Client) BuildInclusionProof(ctx context.Context, blockNum int64, txid []byte, encodedTx []byte) (*InclusionProof20, error) {
	var proof InclusionProof20
	proof.EncodedTx = encodedTx

	block, header, err := c.Node.GetBlockByNum2(ctx, blockNum)
	if err != nil {
		return nil, fmt.Errorf("tron: inclusion proof: get block %d: %w", blockNum, err)
	}
	if len(header) != packedHeaderSize {
		return nil, fmt.Errorf("tron: inclusion proof: block %d packed header is %d bytes, want %d", blockNum, len(header), packedHeaderSize)
	}
	proof.Blocks[0] = header

	for i := 1; i < 20; i++ {
		_, h, err := c.Node.GetBlockByNum2(ctx, blockNum+int64(i))
		if err != nil {
			return nil, fmt.Errorf("tron: inclusion proof: get block %d: %w", blockNum+int64(i), err)
		}
		if len(h) != packedHeaderSize {
			return nil, fmt.Errorf("tron: inclusion proof: block %d packed header is %d bytes, want %d", blockNum+int64(i), len(h), packedHeaderSize)
		}
		proof.Blocks[i] = h
	}

	leaves := block.TxIDs
	index := -1
	for i, id := range leaves {
		if hex.EncodeToString(id) == hex.EncodeToString(txid) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("tron: inclusion proof: txid %x not found in block %d", txid, blockNum)
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return nil, fmt.Errorf("tron: inclusion proof: build tree for block %d: %w", blockNum, err)
	}
	incl, err := tree.GenerateProof(index)
	if err != nil {
		return nil, fmt.Errorf("tron: inclusion proof: generate proof for block %d: %w", blockNum, err)
	}

	proof.Index = int64(index)
	proof.Proof = make([][32]byte, len(incl.Path))
	for i, node := range incl.Path {
		raw, err := hex.DecodeString(node.Hash)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("tron: inclusion proof: malformed sibling hash at depth %d", i)
		}
		copy(proof.Proof[i][:], raw)
	}

	return &proof, nil
}

// packedHeaderDigest returns the signed-over byte range of a packed header,
// per the documented [2:107] offset.
func packedHeaderDigest(header []byte) []byte {
	return header[packedHeaderDigestLo:packedHeaderDigestHi]
}

// packedHeaderSignature returns the 65-byte recoverable producer signature,
// per the documented [109:174] offset.
func packedHeaderSignature(header []byte) []byte {
	return header[packedHeaderSigOffset:packedHeaderSize]
}

// RawDataBytes extracts the raw_data submessage (field 1) out of a marshaled
// core.Transaction, i.e. what hub.TronProof.EncodedTx needs. It works on
// any full signed-tx wire encoding regardless of who produced it: a locally
// signed protocol.Transaction (signedTx.Tx.Marshal()), or the bytes of a
// transaction the node returns from GetTransactionById, signed by a rental
// provider's own key.
func RawDataBytes(txBytes []byte) ([]byte, error) {
	fields, err := protocol.ParseFields(txBytes)
	if err != nil {
		return nil, fmt.Errorf("tron: decode signed tx: %w", err)
	}
	f, ok := protocol.First(fields, 1)
	if !ok {
		return nil, fmt.Errorf("tron: signed tx missing raw_data field")
	}
	return f.Bytes, nil
}
