// Copyright 2025 Certen Protocol

package hub

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/untron/intent-solver/pkg/config"
)

// minTipWei is the floor for maxPriorityFeePerGas, so a quiet mempool
// never lets the tip collapse to zero.
var minTipWei = big.NewInt(1_000_000_000) // 1 Gwei

type eoaBackend struct {
	client  *ethclient.Client
	chainID *big.Int
	privKey *ecdsa.PrivateKey
	address common.Address

	poolAddr common.Address
	usdtAddr common.Address

	txReceiptWait time.Duration
}

func newEOABackend(cfg config.HubConfig) (*eoaBackend, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("hub: dial %s: %w", cfg.RPCURL, err)
	}

	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerPrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("hub: parse HUB_SIGNER_PRIVATE_KEY_HEX: %w", err)
	}
	pub, ok := privKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("hub: signer public key is not ECDSA")
	}
	address := crypto.PubkeyToAddress(*pub)

	ctx := context.Background()
	discovered, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("hub: eth_chainId: %w", err)
	}
	if cfg.ChainID != 0 && discovered.Int64() != cfg.ChainID {
		return nil, fmt.Errorf("hub: configured HUB_CHAIN_ID=%d does not match discovered chain id %s", cfg.ChainID, discovered)
	}

	if !common.IsHexAddress(cfg.PoolAddress) {
		return nil, fmt.Errorf("hub: bad HUB_POOL_ADDRESS %q", cfg.PoolAddress)
	}

	b := &eoaBackend{
		client:  client,
		chainID: discovered,
		privKey: privKey,
		address: address,

		poolAddr:      common.HexToAddress(cfg.PoolAddress),
		txReceiptWait: cfg.TxReceiptWait,
	}
	if cfg.USDTAddress != "" {
		if !common.IsHexAddress(cfg.USDTAddress) {
			return nil, fmt.Errorf("hub: bad HUB_USDT_ADDRESS %q", cfg.USDTAddress)
		}
		b.usdtAddr = common.HexToAddress(cfg.USDTAddress)
	}

	logger.Printf("✅ eoa backend ready solver=%s chain_id=%s pool=%s", address.Hex(), discovered, b.poolAddr.Hex())
	return b, nil
}

func (b *eoaBackend) SolverAddress() common.Address { return b.address }
func (b *eoaBackend) PoolUSDT() common.Address      { return b.usdtAddr }

// feeCap samples eth_feeHistory for a base-fee trend and derives
// (maxFeePerGas, maxPriorityFeePerGas), clamped to a non-zero floor. On any
// failure it falls back to eth_gasPrice × 2, matching the Safe4337 gas
// estimation sequence's documented fallback.
func (b *eoaBackend) feeCap(ctx context.Context) (maxFeePerGas, maxPriorityFeePerGas *big.Int, err error) {
	history, err := b.client.FeeHistory(ctx, 10, nil, []float64{50})
	if err == nil && len(history.BaseFee) > 0 {
		latestBaseFee := history.BaseFee[len(history.BaseFee)-1]
		tip := minTipWei
		if len(history.Reward) > 0 && len(history.Reward[len(history.Reward)-1]) > 0 {
			sampled := history.Reward[len(history.Reward)-1][0]
			if sampled.Cmp(tip) > 0 {
				tip = sampled
			}
		}
		maxFee := new(big.Int).Add(new(big.Int).Mul(latestBaseFee, big.NewInt(2)), tip)
		return maxFee, tip, nil
	}

	gasPrice, gpErr := b.client.SuggestGasPrice(ctx)
	if gpErr != nil {
		return nil, nil, fmt.Errorf("hub: eth_feeHistory failed (%v) and eth_gasPrice fallback failed: %w", err, gpErr)
	}
	fallback := new(big.Int).Mul(gasPrice, big.NewInt(2))
	if fallback.Cmp(minTipWei) < 0 {
		fallback = minTipWei
	}
	return fallback, minTipWei, nil
}

func (b *eoaBackend) sendAndWait(ctx context.Context, to common.Address, data []byte) (*types.Receipt, common.Hash, error) {
	nonce, err := b.client.PendingNonceAt(ctx, b.address)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("hub: nonce: %w", err)
	}

	maxFeePerGas, maxPriorityFeePerGas, err := b.feeCap(ctx)
	if err != nil {
		return nil, common.Hash{}, err
	}

	gasLimit, err := b.client.EstimateGas(ctx, ethereum.CallMsg{
		From: b.address,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("hub: estimate gas: %w", err)
	}
	gasLimit = gasLimit + gasLimit/5 // 20% headroom

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   b.chainID,
		Nonce:     nonce,
		GasTipCap: maxPriorityFeePerGas,
		GasFeeCap: maxFeePerGas,
		Gas:       gasLimit,
		To:        &to,
		Data:      data,
	})

	signer := types.LatestSignerForChainID(b.chainID)
	signedTx, err := types.SignTx(tx, signer, b.privKey)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("hub: sign tx: %w", err)
	}

	if err := b.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, common.Hash{}, classifyEOASendError(err)
	}

	waitCtx := ctx
	if b.txReceiptWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, b.txReceiptWait)
		defer cancel()
	}
	receipt, err := waitMined(waitCtx, b.client, signedTx.Hash())
	if err != nil {
		return nil, signedTx.Hash(), fmt.Errorf("hub: wait for receipt: %w", err)
	}
	return receipt, signedTx.Hash(), nil
}

// waitMined polls for a receipt until ctx is done, equivalent to
// accounts/abi/bind.WaitMined without pulling in that package for one call.
func waitMined(ctx context.Context, client *ethclient.Client, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *eoaBackend) EnsureERC20Allowance(ctx context.Context, token, spender common.Address, min *big.Int) error {
	out, err := b.client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: buildAllowanceData(b.address, spender),
	}, nil)
	if err != nil {
		return fmt.Errorf("hub: eth_call allowance: %w", err)
	}
	current, err := unpackAllowance(out)
	if err != nil {
		return err
	}
	if current.Cmp(min) >= 0 {
		return nil
	}

	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	_, txHash, err := b.sendAndWait(ctx, token, buildApproveData(spender, maxUint256))
	if err != nil {
		return fmt.Errorf("hub: approve: %w", err)
	}
	logger.Printf("✅ approved token=%s spender=%s tx=%s", token.Hex(), spender.Hex(), txHash.Hex())
	return nil
}

func (b *eoaBackend) ClaimIntent(ctx context.Context, _ int64, intentID [32]byte) (*TxOutcome, error) {
	receipt, txHash, err := b.sendAndWait(ctx, b.poolAddr, buildClaimIntentData(intentID))
	if err != nil {
		if isAlreadyClaimed(err) {
			return &TxOutcome{Fatal: true, FatalReason: "AlreadyClaimed"}, nil
		}
		return nil, err
	}
	return receiptOutcome(txHash, receipt), nil
}

func (b *eoaBackend) ProveIntentFill(ctx context.Context, _ int64, intentID [32]byte, proof TronProof) (*TxOutcome, error) {
	receipt, txHash, err := b.sendAndWait(ctx, b.poolAddr, buildProveIntentFillData(intentID, proof))
	if err != nil {
		return nil, err
	}
	return receiptOutcome(txHash, receipt), nil
}

func receiptOutcome(txHash common.Hash, receipt *types.Receipt) *TxOutcome {
	return &TxOutcome{
		TxHash:      txHash.Bytes(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}
}

func isAlreadyClaimed(err error) bool {
	return err != nil && strings.Contains(err.Error(), "AlreadyClaimed")
}

func classifyEOASendError(err error) error {
	return fmt.Errorf("hub: send tx: %w", err)
}
