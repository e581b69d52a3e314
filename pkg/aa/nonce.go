// Copyright 2025 Certen Protocol

package aa

import "math/big"

// NextNonceFloor implements the chain-nonce discipline from the spec:
// current_nonce = max(cached_nonce, EntryPoint.getNonce(sender, 0)).
func NextNonceFloor(cached, chainNonce *big.Int) *big.Int {
	if cached == nil || cached.Cmp(chainNonce) < 0 {
		return new(big.Int).Set(chainNonce)
	}
	return new(big.Int).Set(cached)
}

// RecoverFromAA25 computes the new nonce floor after a bundler rejects a
// submission with "AA25 invalid account nonce". opNonce is what we tried to
// submit; chainNonce is EntryPoint.getNonce(sender, 0) read fresh. This
// matters most after a restart, where a previously-submitted-but-uncounted
// op occupies a nonce slot invisible to a plain getNonce call.
func RecoverFromAA25(opNonce, chainNonce *big.Int) *big.Int {
	switch opNonce.Cmp(chainNonce) {
	case -1: // op.nonce < chain_nonce
		return new(big.Int).Set(chainNonce)
	case 0: // op.nonce == chain_nonce
		return new(big.Int).Add(chainNonce, big.NewInt(1))
	default: // op.nonce > chain_nonce
		return new(big.Int).Set(chainNonce)
	}
}
