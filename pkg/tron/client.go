// Copyright 2025 Certen Protocol

package tron

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/untron/intent-solver/pkg/config"
	"github.com/untron/intent-solver/pkg/tron/protocol"
)

var logger = log.New(os.Stdout, "[tron] ", log.LstdFlags)

// NodeClient is every Tron full-node/wallet-gRPC method the solver calls. A
// real implementation invokes these as plain unary gRPC calls against the
// java-tron Wallet service, encoding/decoding request and response bytes
// with the hand-rolled codec in pkg/tron/protocol rather than a generated
// stub, since this repo never vendors the full core/Tron.proto surface —
// see pkg/tron/protocol's package doc for why.
type NodeClient interface {
	GetNowBlock2(ctx context.Context) (Block, []byte, error)
	GetBlockByNum2(ctx context.Context, num int64) (Block, []byte, error)
	GetTransactionInfoById(ctx context.Context, txid []byte) (TransactionInfo, error)
	GetAccount(ctx context.Context, addr Address) (Account, error)
	GetAccountResource(ctx context.Context, addr Address) (AccountResource, error)
	GetChainParameters(ctx context.Context) (map[string]int64, error)
	TriggerConstantContract(ctx context.Context, owner, contract Address, data []byte, callValueSun int64) (energyUsed int64, result []byte, err error)
	EstimateEnergy(ctx context.Context, owner, contract Address, data []byte, callValueSun int64) (int64, error)
	// BroadcastTransaction submits an already-marshaled signed transaction.
	// It takes raw wire bytes rather than *SignedTronTx so callers that only
	// have a persisted solver.tron_signed_txs row (tx_bytes column) — the
	// common case after a process restart — never need to reconstruct a
	// protocol.Transaction to rebroadcast one.
	BroadcastTransaction(ctx context.Context, txBytes []byte) error
	// GetTransactionByID returns the raw_data submessage bytes of a
	// confirmed transaction, letting the caller recover EncodedTx for a
	// transaction it did not itself sign (the delegate_resource resell
	// path, where a rental provider broadcasts on the solver's behalf).
	GetTransactionByID(ctx context.Context, txid []byte) ([]byte, error)
}

// grpcConn abstracts *grpc.ClientConn so tests can substitute a fake without
// standing up a real server.
type grpcConn interface {
	Invoke(ctx context.Context, method string, args, reply interface{}, opts ...grpc.CallOption) error
}

// wireInvoke calls a java-tron Wallet RPC passing/returning raw bytes,
// bypassing protoc-generated message types entirely: args and reply are
// both *protocol.RawMessage, carried by the "raw" codec registered in
// protocol/codec.go, which copies bytes across the wire unmodified.
func wireInvoke(ctx context.Context, conn grpcConn, method string, apiKey string, reqBytes []byte) ([]byte, error) {
	if apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "trx-key", apiKey)
	}
	reply := &protocol.RawMessage{}
	opts := []grpc.CallOption{grpc.CallContentSubtype(protocol.CodecName)}
	if err := conn.Invoke(ctx, method, &protocol.RawMessage{B: reqBytes}, reply, opts...); err != nil {
		return nil, err
	}
	return reply.B, nil
}

// grpcNodeClient is the production NodeClient, backed by a single
// wallet-service gRPC connection (TRON_GRPC_URL).
type grpcNodeClient struct {
	conn   grpcConn
	apiKey string
}

// NewGRPCNodeClient dials TRON_GRPC_URL and returns a NodeClient.
func NewGRPCNodeClient(cfg config.TronConfig) (NodeClient, error) {
	conn, err := grpc.NewClient(cfg.GRPCURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("tron: dial %s: %w", cfg.GRPCURL, err)
	}
	logger.Printf("🔗 connected to Tron node %s", cfg.GRPCURL)
	return &grpcNodeClient{conn: conn, apiKey: cfg.APIKey}, nil
}

func (g *grpcNodeClient) call(ctx context.Context, method string, reqBytes []byte) ([]byte, error) {
	return wireInvoke(ctx, g.conn, method, g.apiKey, reqBytes)
}

func (g *grpcNodeClient) GetNowBlock2(ctx context.Context) (Block, []byte, error) {
	raw, err := g.call(ctx, "/protocol.Wallet/GetNowBlock2", nil)
	if err != nil {
		return Block{}, nil, fmt.Errorf("tron: GetNowBlock2: %w", err)
	}
	return decodeBlockWithHeader(raw)
}

func (g *grpcNodeClient) GetBlockByNum2(ctx context.Context, num int64) (Block, []byte, error) {
	req := numberMessage(num).Marshal()
	raw, err := g.call(ctx, "/protocol.Wallet/GetBlockByNum2", req)
	if err != nil {
		return Block{}, nil, fmt.Errorf("tron: GetBlockByNum2(%d): %w", num, err)
	}
	return decodeBlockWithHeader(raw)
}

func (g *grpcNodeClient) GetTransactionInfoById(ctx context.Context, txid []byte) (TransactionInfo, error) {
	req := bytesMessage(txid).Marshal()
	raw, err := g.call(ctx, "/protocol.Wallet/GetTransactionInfoById", req)
	if err != nil {
		return TransactionInfo{}, fmt.Errorf("tron: GetTransactionInfoById: %w", err)
	}
	return decodeTransactionInfo(raw)
}

func (g *grpcNodeClient) GetAccount(ctx context.Context, addr Address) (Account, error) {
	req := bytesMessage(addr.PrefixedBytes()).Marshal()
	raw, err := g.call(ctx, "/protocol.Wallet/GetAccount", req)
	if err != nil {
		return Account{}, fmt.Errorf("tron: GetAccount(%s): %w", addr.Base58Check(), err)
	}
	return decodeAccount(raw)
}

func (g *grpcNodeClient) GetAccountResource(ctx context.Context, addr Address) (AccountResource, error) {
	req := bytesMessage(addr.PrefixedBytes()).Marshal()
	raw, err := g.call(ctx, "/protocol.Wallet/GetAccountResource", req)
	if err != nil {
		return AccountResource{}, fmt.Errorf("tron: GetAccountResource(%s): %w", addr.Base58Check(), err)
	}
	return decodeAccountResource(raw)
}

func (g *grpcNodeClient) GetChainParameters(ctx context.Context) (map[string]int64, error) {
	raw, err := g.call(ctx, "/protocol.Wallet/GetChainParameters", nil)
	if err != nil {
		return nil, fmt.Errorf("tron: GetChainParameters: %w", err)
	}
	return decodeChainParameters(raw)
}

func (g *grpcNodeClient) TriggerConstantContract(ctx context.Context, owner, contract Address, data []byte, callValueSun int64) (int64, []byte, error) {
	req := triggerContractRequest(owner, contract, data, callValueSun).Marshal()
	raw, err := g.call(ctx, "/protocol.Wallet/TriggerConstantContract", req)
	if err != nil {
		return 0, nil, fmt.Errorf("tron: TriggerConstantContract: %w", err)
	}
	return decodeTriggerResult(raw)
}

func (g *grpcNodeClient) EstimateEnergy(ctx context.Context, owner, contract Address, data []byte, callValueSun int64) (int64, error) {
	req := triggerContractRequest(owner, contract, data, callValueSun).Marshal()
	raw, err := g.call(ctx, "/protocol.Wallet/EstimateEnergy", req)
	if err != nil {
		return 0, fmt.Errorf("tron: EstimateEnergy: %w", err)
	}
	energy, _, err := decodeTriggerResult(raw)
	return energy, err
}

func (g *grpcNodeClient) BroadcastTransaction(ctx context.Context, txBytes []byte) error {
	raw, err := g.call(ctx, "/protocol.Wallet/BroadcastTransaction", txBytes)
	if err != nil {
		return classifyBroadcastError(err)
	}
	return parseBroadcastResult(raw)
}

// GetTransactionByID wraps java-tron's Wallet/GetTransactionById RPC, which
// returns a full protocol.Transaction; this client only needs the raw_data
// field out of it; see RawDataBytes.
func (g *grpcNodeClient) GetTransactionByID(ctx context.Context, txid []byte) ([]byte, error) {
	req := bytesMessage(txid).Marshal()
	raw, err := g.call(ctx, "/protocol.Wallet/GetTransactionById", req)
	if err != nil {
		return nil, fmt.Errorf("tron: GetTransactionById: %w", err)
	}
	return RawDataBytes(raw)
}

// classifyBroadcastError distinguishes retryable node-busy conditions from
// contract-level failures the breaker should count against a job (§7).
func classifyBroadcastError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "SERVER_BUSY") || strings.Contains(strings.ToUpper(msg), "UNAVAILABLE") {
		return fmt.Errorf("%w: %v", ErrNodeBusy, err)
	}
	return fmt.Errorf("tron: broadcast: %w", err)
}

// Client wraps a NodeClient with the cached chain-parameter fee rates,
// exposing the builder methods in builders.go; signing keys are passed to
// each builder call.
type Client struct {
	Node NodeClient

	energyFeeSun    int64
	bandwidthFeeSun int64
	refreshedAt     time.Time
	refBlockTTL     time.Duration
}

// NewClient wraps node with a fee-rate cache (refreshed at most once per
// refBlockTTL, mirroring the Rust sender's "chain parameters rarely change"
// assumption).
func NewClient(node NodeClient) *Client {
	return &Client{Node: node, refBlockTTL: 30 * time.Second}
}

func (c *Client) refreshFeeRates(ctx context.Context) error {
	if !c.refreshedAt.IsZero() && time.Since(c.refreshedAt) < c.refBlockTTL {
		return nil
	}
	params, err := c.Node.GetChainParameters(ctx)
	if err != nil {
		return fmt.Errorf("tron: refresh fee rates: %w", err)
	}
	if v, ok := params["getEnergyFee"]; ok {
		c.energyFeeSun = v
	}
	if v, ok := params["getTransactionFee"]; ok {
		c.bandwidthFeeSun = v
	}
	c.refreshedAt = time.Now()
	return nil
}

func (c *Client) refBlockNow(ctx context.Context) (refBlock, error) {
	if err := c.refreshFeeRates(ctx); err != nil {
		return refBlock{}, err
	}
	block, header, err := c.Node.GetNowBlock2(ctx)
	if err != nil {
		return refBlock{}, fmt.Errorf("tron: ref block: %w", err)
	}
	_ = header
	refBytes := make([]byte, 8)
	refBytes[6] = byte(block.Header.Number >> 8)
	refBytes[7] = byte(block.Header.Number)
	return refBlock{
		Bytes:  refBytes[6:8],
		Hash:   block.Header.ParentHash,
		Num:    block.Header.Number,
		Expiry: 60 * time.Second,
	}, nil
}

// EstimateEnergy delegates to the wrapped node, exposed on Client so
// builders.go can call it as c.EstimateEnergy(...).
func (c *Client) EstimateEnergy(ctx context.Context, owner, contract Address, data []byte, callValueSun int64) (int64, error) {
	return c.Node.EstimateEnergy(ctx, owner, contract, data, callValueSun)
}

// Broadcast signs nothing further; it just submits an already-signed tx.
func (c *Client) Broadcast(ctx context.Context, tx *SignedTronTx) error {
	return c.Node.BroadcastTransaction(ctx, tx.Tx.Marshal())
}

// BroadcastRaw resubmits a previously-signed, previously-marshaled
// transaction, e.g. one reloaded from solver.tron_signed_txs.tx_bytes after
// a process restart.
func (c *Client) BroadcastRaw(ctx context.Context, txBytes []byte) error {
	return c.Node.BroadcastTransaction(ctx, txBytes)
}
