// Copyright 2025 Certen Protocol

package hub

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/untron/intent-solver/pkg/aa"
	"github.com/untron/intent-solver/pkg/config"
	"github.com/untron/intent-solver/pkg/solverdb"
)

// Conservative placeholder gas limits used before the bundler's estimate
// comes back, per the spec's gas estimation sequence.
var (
	placeholderCallGasLimit         = big.NewInt(5_000_000)
	placeholderVerificationGasLimit = big.NewInt(6_000_000)
	placeholderPreVerificationGas   = big.NewInt(200_000)
)

type safe4337Backend struct {
	client  *ethclient.Client
	chainID *big.Int
	privKey *ecdsa.PrivateKey

	entryPoint common.Address
	safeAddr   common.Address
	poolAddr   common.Address
	usdtAddr   common.Address

	bundlers      []*aa.BundlerClient
	nextBundler   int
	submitMu      sync.Mutex // serializes bundler submits to avoid nonce races
	userOpWait    time.Duration

	db *solverdb.Db

	nonceMu    sync.Mutex
	nonceFloor *big.Int
}

func newSafe4337Backend(cfg config.HubConfig, db *solverdb.Db) (*safe4337Backend, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("hub: dial %s: %w", cfg.RPCURL, err)
	}
	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerPrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("hub: parse HUB_SIGNER_PRIVATE_KEY_HEX: %w", err)
	}

	ctx := context.Background()
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("hub: eth_chainId: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		return nil, fmt.Errorf("hub: configured HUB_CHAIN_ID=%d does not match discovered chain id %s", cfg.ChainID, chainID)
	}

	for _, addr := range []string{cfg.EntryPointAddress, cfg.Safe4337ModuleAddress, cfg.PoolAddress} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("hub: bad address %q", addr)
		}
	}
	if len(cfg.BundlerURLs) == 0 {
		return nil, fmt.Errorf("hub: HUB_BUNDLER_URLS is empty")
	}
	safeAddr := cfg.SafeAddress
	if safeAddr == "" {
		return nil, fmt.Errorf("hub: HUB_SAFE_ADDRESS is required in safe4337 mode")
	}
	if !common.IsHexAddress(safeAddr) {
		return nil, fmt.Errorf("hub: bad HUB_SAFE_ADDRESS %q", safeAddr)
	}

	bundlers := make([]*aa.BundlerClient, 0, len(cfg.BundlerURLs))
	for _, u := range cfg.BundlerURLs {
		bundlers = append(bundlers, aa.NewBundlerClient(u, cfg.RPCTimeout))
	}

	b := &safe4337Backend{
		client:     client,
		chainID:    chainID,
		privKey:    privKey,
		entryPoint: common.HexToAddress(cfg.EntryPointAddress),
		safeAddr:   common.HexToAddress(safeAddr),
		poolAddr:   common.HexToAddress(cfg.PoolAddress),
		bundlers:   bundlers,
		userOpWait: cfg.UserOpReceiptWait,
		db:         db,
	}
	if cfg.USDTAddress != "" {
		b.usdtAddr = common.HexToAddress(cfg.USDTAddress)
	}

	if len(cfg.Paymasters) > 0 {
		logger.Printf("⚠️ %d paymaster(s) configured but the safe4337 backend always self-pays; ignoring", len(cfg.Paymasters))
	}
	if err := b.preflightSelfPay(ctx); err != nil {
		logger.Printf("⚠️ preflight self-pay check: %v", err)
	}

	logger.Printf("✅ safe4337 backend ready safe=%s entrypoint=%s bundlers=%d", b.safeAddr.Hex(), b.entryPoint.Hex(), len(bundlers))
	return b, nil
}

// preflightSelfPay asserts the safe has either an EntryPoint deposit or a
// native balance to pay for gas, since no paymaster is wired up. It only
// ever warns — a zero balance is a deploy-time operator mistake, not
// something this backend can fix.
func (b *safe4337Backend) preflightSelfPay(ctx context.Context) error {
	balance, err := b.client.BalanceAt(ctx, b.safeAddr, nil)
	if err != nil {
		return fmt.Errorf("check safe native balance: %w", err)
	}
	if balance.Sign() > 0 {
		return nil
	}
	deposit, err := b.entryPointDeposit(ctx)
	if err != nil {
		return fmt.Errorf("check entrypoint deposit: %w", err)
	}
	if deposit.Sign() > 0 {
		return nil
	}
	logger.Printf("⚠️ safe %s has zero native balance and zero EntryPoint deposit; userops will fail to pay for gas", b.safeAddr.Hex())
	return nil
}

// entryPointBalanceOfArgs/Sel/Return call EntryPoint.balanceOf(account),
// which returns the account's current deposit — not an ERC-20 balance.
var entryPointBalanceOfArgs = mustArgs("address")
var entryPointBalanceOfReturn = mustArgs("uint256")
var entryPointBalanceOfSel = selector("balanceOf(address)")

func (b *safe4337Backend) entryPointDeposit(ctx context.Context) (*big.Int, error) {
	packed, err := entryPointBalanceOfArgs.Pack(b.safeAddr)
	if err != nil {
		return nil, err
	}
	data := append(append([]byte{}, entryPointBalanceOfSel...), packed...)
	out, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &b.entryPoint, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	values, err := entryPointBalanceOfReturn.Unpack(out)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

func (b *safe4337Backend) SolverAddress() common.Address { return b.safeAddr }
func (b *safe4337Backend) PoolUSDT() common.Address      { return b.usdtAddr }

func (b *safe4337Backend) EnsureERC20Allowance(ctx context.Context, token, spender common.Address, min *big.Int) error {
	out, err := b.client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: buildAllowanceData(b.safeAddr, spender),
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
	callData := aa.ExecuteUserOpWithErrorStringCallData(token, big.NewInt(0), buildApproveData(spender, maxUint256))
	outcome, err := b.runUserOp(ctx, 0, "approve", callData)
	if err != nil {
		return err
	}
	if outcome.Fatal || !outcome.Success {
		return fmt.Errorf("hub: approve userop failed: %s", outcome.FatalReason)
	}
	return nil
}

func (b *safe4337Backend) ClaimIntent(ctx context.Context, jobID int64, intentID [32]byte) (*TxOutcome, error) {
	callData := aa.ExecuteUserOpWithErrorStringCallData(b.poolAddr, big.NewInt(0), buildClaimIntentData(intentID))
	return b.runUserOp(ctx, jobID, solverdb.UserOpClaim, callData)
}

func (b *safe4337Backend) ProveIntentFill(ctx context.Context, jobID int64, intentID [32]byte, proof TronProof) (*TxOutcome, error) {
	callData := aa.ExecuteUserOpWithErrorStringCallData(b.poolAddr, big.NewInt(0), buildProveIntentFillData(intentID, proof))
	return b.runUserOp(ctx, jobID, solverdb.UserOpProve, callData)
}

// runUserOp drives one (job_id, kind) through the persisted userop state
// machine described in 4.4: prepared -> submitted -> included, idempotent
// across restarts. kind "approve" with jobID 0 never touches the DB — the
// allowance preflight doesn't have a job yet — and instead blocks until
// inclusion or failure in a single call.
func (b *safe4337Backend) runUserOp(ctx context.Context, jobID int64, kind solverdb.UserOpKind, callData []byte) (*TxOutcome, error) {
	if jobID == 0 {
		return b.runUnpersistedUserOp(ctx, callData)
	}

	existing, err := b.db.GetUserOp(ctx, jobID, kind)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.State == solverdb.UserOpIncluded {
		return includedOutcome(existing), nil
	}

	if existing != nil && existing.State == solverdb.UserOpSubmitted {
		outcome, polled, pollErr := b.pollReceipt(ctx, jobID, kind, existing.UserOpHash.String)
		if pollErr != nil {
			return nil, pollErr
		}
		if polled {
			return outcome, nil
		}
		// Not yet included; fall through and resubmit under the same op.
	}

	var op aa.UserOperation
	if existing != nil && existing.State == solverdb.UserOpPrepared {
		if err := json.Unmarshal(existing.UserOp, &opWireShape{&op}); err != nil {
			return nil, fmt.Errorf("hub: unmarshal prepared userop job=%d kind=%s: %w", jobID, kind, err)
		}
		chainNonce, nerr := aa.GetNonce(ctx, b.client, b.entryPoint, b.safeAddr, big.NewInt(0))
		if nerr != nil {
			return nil, fmt.Errorf("hub: getNonce: %w", nerr)
		}
		if op.Nonce.Cmp(chainNonce) < 0 {
			logger.Printf("⚠️ stale prepared userop job=%d kind=%s nonce=%s < chain_nonce=%s; rebuilding", jobID, kind, op.Nonce, chainNonce)
			if err := b.db.DeleteStalePrepared(ctx, jobID, kind); err != nil {
				return nil, err
			}
			existing = nil
		}
	}

	if existing == nil {
		built, err := b.buildUserOp(ctx, callData)
		if err != nil {
			return nil, err
		}
		op = *built
		opJSON, err := json.Marshal(op)
		if err != nil {
			return nil, fmt.Errorf("hub: marshal userop: %w", err)
		}
		if err := b.db.InsertPrepared(ctx, jobID, kind, opJSON); err != nil {
			return nil, err
		}
	}

	userOpHash, err := b.submit(ctx, op)
	if err != nil {
		if isAA25(err) {
			chainNonce, nerr := aa.GetNonce(ctx, b.client, b.entryPoint, b.safeAddr, big.NewInt(0))
			if nerr != nil {
				return nil, fmt.Errorf("hub: getNonce after AA25: %w", nerr)
			}
			newFloor := aa.RecoverFromAA25(op.Nonce, chainNonce)
			b.setNonceFloor(newFloor)
			if derr := b.db.DeleteStalePrepared(ctx, jobID, kind); derr != nil {
				return nil, derr
			}
			return nil, fmt.Errorf("hub: AA25 nonce rejection job=%d kind=%s, floor advanced to %s, retry next tick: %w", jobID, kind, newFloor, err)
		}
		if bumpErr := b.db.BumpUserOpAttempt(ctx, jobID, kind, err.Error()); bumpErr != nil {
			logger.Printf("⚠️ bump userop attempt job=%d kind=%s: %v", jobID, kind, bumpErr)
		}
		return nil, fmt.Errorf("hub: submit userop job=%d kind=%s: %w", jobID, kind, err)
	}
	if err := b.db.MarkSubmitted(ctx, jobID, kind, userOpHash); err != nil {
		return nil, err
	}

	outcome, polled, err := b.pollReceipt(ctx, jobID, kind, userOpHash)
	if err != nil {
		return nil, err
	}
	if !polled {
		return nil, fmt.Errorf("hub: userop job=%d kind=%s not yet included, retry next tick", jobID, kind)
	}
	return outcome, nil
}

// opWireShape lets json.Unmarshal target an aa.UserOperation whose field
// names don't match its MarshalJSON output one-to-one; it reuses the same
// hex parsing the bundler wire format defines.
type opWireShape struct{ op *aa.UserOperation }

func (w opWireShape) UnmarshalJSON(data []byte) error {
	var raw struct {
		Sender               string `json:"sender"`
		Nonce                string `json:"nonce"`
		InitCode             string `json:"initCode"`
		CallData             string `json:"callData"`
		CallGasLimit         string `json:"callGasLimit"`
		VerificationGasLimit string `json:"verificationGasLimit"`
		PreVerificationGas   string `json:"preVerificationGas"`
		MaxFeePerGas         string `json:"maxFeePerGas"`
		MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
		PaymasterAndData     string `json:"paymasterAndData"`
		Signature            string `json:"signature"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	w.op.Sender = common.HexToAddress(raw.Sender)
	w.op.Nonce = hexToBig(raw.Nonce)
	w.op.InitCode = common.FromHex(raw.InitCode)
	w.op.CallData = common.FromHex(raw.CallData)
	w.op.CallGasLimit = hexToBig(raw.CallGasLimit)
	w.op.VerificationGasLimit = hexToBig(raw.VerificationGasLimit)
	w.op.PreVerificationGas = hexToBig(raw.PreVerificationGas)
	w.op.MaxFeePerGas = hexToBig(raw.MaxFeePerGas)
	w.op.MaxPriorityFeePerGas = hexToBig(raw.MaxPriorityFeePerGas)
	w.op.PaymasterAndData = common.FromHex(raw.PaymasterAndData)
	w.op.Signature = common.FromHex(raw.Signature)
	return nil
}

func hexToBig(s string) *big.Int {
	v := new(big.Int)
	v.SetString(strings.TrimPrefix(s, "0x"), 16)
	return v
}

func (b *safe4337Backend) nonceFloorOrChain(chainNonce *big.Int) *big.Int {
	b.nonceMu.Lock()
	defer b.nonceMu.Unlock()
	floor := aa.NextNonceFloor(b.nonceFloor, chainNonce)
	b.nonceFloor = floor
	return floor
}

func (b *safe4337Backend) setNonceFloor(n *big.Int) {
	b.nonceMu.Lock()
	defer b.nonceMu.Unlock()
	b.nonceFloor = n
}

func (b *safe4337Backend) buildUserOp(ctx context.Context, callData []byte) (*aa.UserOperation, error) {
	chainNonce, err := aa.GetNonce(ctx, b.client, b.entryPoint, b.safeAddr, big.NewInt(0))
	if err != nil {
		return nil, fmt.Errorf("hub: getNonce: %w", err)
	}
	nonce := b.nonceFloorOrChain(chainNonce)

	maxFeePerGas, maxPriorityFeePerGas, err := feeCapFromHistory(ctx, b.client)
	if err != nil {
		return nil, err
	}

	op := &aa.UserOperation{
		Sender:               b.safeAddr,
		Nonce:                nonce,
		CallData:             callData,
		CallGasLimit:         placeholderCallGasLimit,
		VerificationGasLimit: placeholderVerificationGasLimit,
		PreVerificationGas:   placeholderPreVerificationGas,
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: maxPriorityFeePerGas,
	}
	b.sign(op)

	bundler := b.bundlers[0]
	est, err := bundler.EstimateUserOperationGas(ctx, *op, b.entryPoint.Hex())
	if err != nil {
		logger.Printf("⚠️ eth_estimateUserOperationGas failed, keeping placeholder limits: %v", err)
		return op, nil
	}
	op.CallGasLimit = bufferPPM(hexToBig(est.CallGasLimit), 100_000)
	op.VerificationGasLimit = bufferPPM(hexToBig(est.VerificationGasLimit), 100_000)
	op.PreVerificationGas = bufferPPM(hexToBig(est.PreVerificationGas), 100_000)
	b.sign(op)
	return op, nil
}

// bufferPPM adds headroomPPM parts-per-million to v (100_000 ppm = 10%).
func bufferPPM(v *big.Int, headroomPPM int64) *big.Int {
	buffered := new(big.Int).Mul(v, big.NewInt(1_000_000+headroomPPM))
	return buffered.Div(buffered, big.NewInt(1_000_000))
}

func (b *safe4337Backend) sign(op *aa.UserOperation) {
	hash := op.Hash(b.entryPoint, b.chainID)
	sig, err := crypto.Sign(hash.Bytes(), b.privKey)
	if err != nil {
		panic(fmt.Sprintf("hub: sign userop: %v", err))
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	op.Signature = sig
}

func (b *safe4337Backend) submit(ctx context.Context, op aa.UserOperation) (string, error) {
	b.submitMu.Lock()
	defer b.submitMu.Unlock()
	var lastErr error
	for i := 0; i < len(b.bundlers); i++ {
		c := b.bundlers[(b.nextBundler+i)%len(b.bundlers)]
		hash, err := c.SendUserOperation(ctx, op, b.entryPoint.Hex())
		if err == nil {
			b.nextBundler++
			return hash, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func isAA25(err error) bool {
	return err != nil && strings.Contains(err.Error(), "AA25")
}

// pollReceipt checks every bundler for a receipt; on timeout it falls back
// to scanning the EntryPoint's UserOperationEvent logs, since bundlers only
// retain receipts ephemerally.
func (b *safe4337Backend) pollReceipt(ctx context.Context, jobID int64, kind solverdb.UserOpKind, userOpHash string) (*TxOutcome, bool, error) {
	deadline := time.Now().Add(b.userOpWait)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		for _, c := range b.bundlers {
			receipt, err := c.GetUserOperationReceipt(ctx, userOpHash)
			if err != nil {
				continue
			}
			if receipt != nil {
				return b.persistIncluded(ctx, jobID, kind, receipt)
			}
		}

		if time.Now().After(deadline) {
			if outcome, ok, err := b.fallbackScanLogs(ctx, jobID, kind, userOpHash); err != nil || ok {
				return outcome, ok, err
			}
			return nil, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *safe4337Backend) fallbackScanLogs(ctx context.Context, jobID int64, kind solverdb.UserOpKind, userOpHash string) (*TxOutcome, bool, error) {
	head, err := b.client.BlockNumber(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("hub: eth_blockNumber for fallback scan: %w", err)
	}
	from := int64(0)
	if head > 5000 {
		from = int64(head - 5000)
	}
	topic := common.HexToHash(userOpHash)
	logs, err := b.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{b.entryPoint},
		Topics:    [][]common.Hash{{aa.UserOperationEventSignature}, {topic}},
	})
	if err != nil {
		return nil, false, fmt.Errorf("hub: eth_getLogs fallback scan: %w", err)
	}
	if len(logs) == 0 {
		return nil, false, nil
	}
	decoded, err := aa.DecodeUserOperationEvent(logs[0])
	if err != nil {
		return nil, false, err
	}
	receiptJSON, _ := json.Marshal(decoded)
	success := decoded.Success
	if err := b.db.MarkIncluded(ctx, jobID, kind, logs[0].TxHash.Bytes(), logs[0].BlockNumber, success,
		decoded.ActualGasCost.String(), decoded.ActualGasUsed.String(), receiptJSON); err != nil {
		return nil, false, err
	}
	return &TxOutcome{
		TxHash:      logs[0].TxHash.Bytes(),
		BlockNumber: logs[0].BlockNumber,
		Success:     success,
		Fatal:       !success,
		FatalReason: fatalReasonIfNotSuccess(success),
	}, true, nil
}

func (b *safe4337Backend) persistIncluded(ctx context.Context, jobID int64, kind solverdb.UserOpKind, receipt *aa.UserOperationReceipt) (*TxOutcome, bool, error) {
	blockNumber := hexToBig(receipt.Receipt.BlockNumber).Uint64()
	txHash := common.HexToHash(receipt.Receipt.TransactionHash)
	receiptJSON, _ := json.Marshal(receipt)
	if err := b.db.MarkIncluded(ctx, jobID, kind, txHash.Bytes(), blockNumber, receipt.Success,
		receipt.ActualGasCost, receipt.ActualGasUsed, receiptJSON); err != nil {
		return nil, false, err
	}
	return &TxOutcome{
		TxHash:      txHash.Bytes(),
		BlockNumber: blockNumber,
		Success:     receipt.Success,
		Fatal:       !receipt.Success,
		FatalReason: fatalReasonIfNotSuccess(receipt.Success),
	}, true, nil
}

func fatalReasonIfNotSuccess(success bool) string {
	if success {
		return ""
	}
	return "userop included with success=false"
}

func includedOutcome(u *solverdb.HubUserop) *TxOutcome {
	success := u.Success.Valid && u.Success.Bool
	return &TxOutcome{
		TxHash:      u.TxHash,
		BlockNumber: uint64(u.BlockNumber.Int64),
		Success:     success,
		Fatal:       !success,
		FatalReason: fatalReasonIfNotSuccess(success),
	}
}

// runUnpersistedUserOp drives the allowance-approval userop to completion
// in one call without touching solver.hub_userops — there is no job yet to
// key the row on, and approval isn't part of the per-job state machine.
func (b *safe4337Backend) runUnpersistedUserOp(ctx context.Context, callData []byte) (*TxOutcome, error) {
	op, err := b.buildUserOp(ctx, callData)
	if err != nil {
		return nil, err
	}
	userOpHash, err := b.submit(ctx, *op)
	if err != nil {
		return nil, fmt.Errorf("hub: submit approve userop: %w", err)
	}

	deadline := time.Now().Add(b.userOpWait)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		for _, c := range b.bundlers {
			receipt, rerr := c.GetUserOperationReceipt(ctx, userOpHash)
			if rerr != nil || receipt == nil {
				continue
			}
			return &TxOutcome{
				TxHash:      common.HexToHash(receipt.Receipt.TransactionHash).Bytes(),
				BlockNumber: hexToBig(receipt.Receipt.BlockNumber).Uint64(),
				Success:     receipt.Success,
				Fatal:       !receipt.Success,
				FatalReason: fatalReasonIfNotSuccess(receipt.Success),
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("hub: approve userop %s not included within %s", userOpHash, b.userOpWait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// feeCapFromHistory mirrors eoaBackend.feeCap but is free-standing so the
// safe4337 backend doesn't need an *eoaBackend to compute it.
func feeCapFromHistory(ctx context.Context, client *ethclient.Client) (maxFeePerGas, maxPriorityFeePerGas *big.Int, err error) {
	history, err := client.FeeHistory(ctx, 10, nil, []float64{50})
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

	gasPrice, gpErr := client.SuggestGasPrice(ctx)
	if gpErr != nil {
		return nil, nil, fmt.Errorf("hub: eth_feeHistory failed (%v) and eth_gasPrice fallback failed: %w", err, gpErr)
	}
	fallback := new(big.Int).Mul(gasPrice, big.NewInt(2))
	if fallback.Cmp(minTipWei) < 0 {
		fallback = minTipWei
	}
	return fallback, minTipWei, nil
}
