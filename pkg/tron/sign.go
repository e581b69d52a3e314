// Copyright 2025 Certen Protocol

package tron

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/untron/intent-solver/pkg/tron/protocol"
)

// SignedTronTx is the result of building and signing one Tron transaction:
// the wire message, its txid, and the sizing inputs the fee policy needs.
type SignedTronTx struct {
	Tx             *protocol.Transaction
	Txid           [32]byte
	FeeLimitSun    int64
	EnergyRequired int64
	TxSizeBytes    int
}

// signRawWithFeeLimit sets raw.FeeLimit, marshals raw_data, computes
// txid = sha256(raw_data), signs that digest with the active key using
// recoverable ECDSA, and assembles the final Transaction. The recovery id
// is folded into the last signature byte as recid+27 (not the Ethereum
// convention of recid alone), matching the Rust sender's
// `sign_digest_recoverable` + `rec_sig.to_bytes() + (recid + 27)` construction.
func signRawWithFeeLimit(raw *protocol.RawTransaction, key *ecdsa.PrivateKey, feeLimitSun int64) (*SignedTronTx, error) {
	raw.FeeLimit = feeLimitSun
	rawBytes := raw.Marshal()
	digest := sha256.Sum256(rawBytes)

	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, fmt.Errorf("tron: sign raw_data: %w", err)
	}
	// crypto.Sign returns [R(32) || S(32) || V(1)] with V in {0,1}.
	sig[64] += 27

	tx := &protocol.Transaction{RawData: raw, Signature: [][]byte{sig}}
	encoded := tx.Marshal()

	return &SignedTronTx{
		Tx:          tx,
		Txid:        digest,
		FeeLimitSun: feeLimitSun,
		TxSizeBytes: len(encoded),
	}, nil
}
