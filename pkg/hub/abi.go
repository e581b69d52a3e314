// Copyright 2025 Certen Protocol

package hub

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func mustType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("hub: bad abi type %q: %v", t, err))
	}
	return ty
}

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		args[i] = abi.Argument{Type: mustType(t)}
	}
	return args
}

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

var (
	claimIntentArgs = abi.Arguments{{Type: mustType("bytes32")}}
	claimIntentSel  = selector("claimIntent(bytes32)")

	proveIntentFillArgs = abi.Arguments{
		{Type: mustType("bytes32")},
		{Type: mustType("bytes[20]")},
		{Type: mustType("bytes")},
		{Type: mustType("bytes32[]")},
		{Type: mustType("uint256")},
	}
	proveIntentFillSel = selector("proveIntentFill(bytes32,bytes[20],bytes,bytes32[],uint256)")

	approveArgs = abi.Arguments{{Type: mustType("address")}, {Type: mustType("uint256")}}
	approveSel  = selector("approve(address,uint256)")

	allowanceArgs   = abi.Arguments{{Type: mustType("address")}, {Type: mustType("address")}}
	allowanceReturn = abi.Arguments{{Type: mustType("uint256")}}
	allowanceSel    = selector("allowance(address,address)")
)

// TronProof is the wire shape proveIntentFill expects: exactly 20 packed
// Tron block headers, the target tx's raw_data bytes, its Merkle sibling
// path, and its index within the block. Component F (pkg/tron) builds this;
// component I threads it through to a Backend unchanged.
type TronProof struct {
	Blocks    [20][]byte
	EncodedTx []byte
	Proof     [][32]byte
	Index     *big.Int
}

func buildClaimIntentData(intentID [32]byte) []byte {
	packed, err := claimIntentArgs.Pack(intentID)
	if err != nil {
		panic(fmt.Sprintf("hub: pack claimIntent: %v", err))
	}
	return append(append([]byte{}, claimIntentSel...), packed...)
}

func buildProveIntentFillData(intentID [32]byte, proof TronProof) []byte {
	blocks := make([][]byte, 20)
	copy(blocks, proof.Blocks[:])
	packed, err := proveIntentFillArgs.Pack(intentID, blocks, proof.EncodedTx, proof.Proof, proof.Index)
	if err != nil {
		panic(fmt.Sprintf("hub: pack proveIntentFill: %v", err))
	}
	return append(append([]byte{}, proveIntentFillSel...), packed...)
}

func buildApproveData(spender common.Address, amount *big.Int) []byte {
	packed, err := approveArgs.Pack(spender, amount)
	if err != nil {
		panic(fmt.Sprintf("hub: pack approve: %v", err))
	}
	return append(append([]byte{}, approveSel...), packed...)
}

func buildAllowanceData(owner, spender common.Address) []byte {
	packed, err := allowanceArgs.Pack(owner, spender)
	if err != nil {
		panic(fmt.Sprintf("hub: pack allowance: %v", err))
	}
	return append(append([]byte{}, allowanceSel...), packed...)
}

func unpackAllowance(out []byte) (*big.Int, error) {
	values, err := allowanceReturn.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("hub: unpack allowance result: %w", err)
	}
	return values[0].(*big.Int), nil
}
