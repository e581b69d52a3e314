// Copyright 2025 Certen Protocol

package tron

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
)

// addressPrefix is Tron mainnet's address version byte (0x41), prepended to
// the 20-byte Keccak hash that also serves as the address's EVM form.
const addressPrefix = 0x41

// Address is a Tron account address, carried in its 21-byte prefixed form
// (0x41 + 20 bytes) so every representation — base58check, hex41, and the
// raw EVM 20 bytes used inside TriggerSmartContract calldata and the
// rental-provider placeholder set — derives from one value.
type Address struct {
	prefixed [21]byte
}

// FromPublicKey derives a Tron address the same way an EVM address is
// derived: Keccak256 of the uncompressed public key's X||Y bytes, last 20
// bytes, prefixed with 0x41. Tron and Ethereum addresses are the same
// 20-byte value; only the wire encoding (base58check vs. 0x-hex) differs.
func FromPublicKey(pub *ecdsa.PublicKey) Address {
	evm := crypto.PubkeyToAddress(*pub)
	return FromEVM(evm.Bytes())
}

// FromEVM builds a Tron address from a 20-byte EVM-style address.
func FromEVM(evm20 []byte) Address {
	var a Address
	a.prefixed[0] = addressPrefix
	copy(a.prefixed[1:], evm20)
	return a
}

// FromPrefixedBytes builds a Tron address from its 21-byte (0x41-prefixed) form.
func FromPrefixedBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != 21 || b[0] != addressPrefix {
		return a, fmt.Errorf("tron: not a 21-byte 0x41-prefixed address: %x", b)
	}
	copy(a.prefixed[:], b)
	return a, nil
}

// FromBase58Check decodes a base58check Tron address ("T...").
func FromBase58Check(s string) (Address, error) {
	var a Address
	decoded, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("tron: base58 decode %q: %w", s, err)
	}
	if len(decoded) != 25 {
		return a, fmt.Errorf("tron: address %q decodes to %d bytes, want 25", s, len(decoded))
	}
	payload, checksum := decoded[:21], decoded[21:]
	if !checksumMatches(payload, checksum) {
		return a, fmt.Errorf("tron: bad base58check checksum for %q", s)
	}
	return FromPrefixedBytes(payload)
}

// PrefixedBytes returns the 21-byte (0x41-prefixed) form used in protobuf
// owner_address/to_address/receiver_address/contract_address fields.
func (a Address) PrefixedBytes() []byte {
	out := make([]byte, 21)
	copy(out, a.prefixed[:])
	return out
}

// EVM returns the 20-byte address without the Tron version byte, the form
// used as TRC20 calldata arguments and the hub pool's receiver_evm columns.
func (a Address) EVM() []byte {
	out := make([]byte, 20)
	copy(out, a.prefixed[1:])
	return out
}

// Base58Check renders the canonical "T..." user-facing address.
func (a Address) Base58Check() string {
	payload := a.prefixed[:]
	checksum := doubleSha256(payload)[:4]
	full := append(append([]byte{}, payload...), checksum...)
	return base58.Encode(full)
}

func checksumMatches(payload, checksum []byte) bool {
	want := doubleSha256(payload)[:4]
	if len(checksum) != 4 {
		return false
	}
	for i := range checksum {
		if checksum[i] != want[i] {
			return false
		}
	}
	return true
}

func doubleSha256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}
