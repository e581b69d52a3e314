// Copyright 2025 Certen Protocol

package aa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BundlerClient speaks the ERC-4337 bundler JSON-RPC dialect over HTTP.
type BundlerClient struct {
	url        string
	httpClient *http.Client
}

// NewBundlerClient wraps one bundler endpoint.
func NewBundlerClient(url string, timeout time.Duration) *BundlerClient {
	return &BundlerClient{url: url, httpClient: &http.Client{Timeout: timeout}}
}

func (c *BundlerClient) URL() string { return c.url }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("bundler rpc error %d: %s", e.Code, e.Message) }

func (c *BundlerClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("aa: marshal %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("aa: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("aa: %s request: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("aa: read %s response: %w", method, err)
	}
	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return fmt.Errorf("aa: decode %s response: %w (body=%s)", method, err, string(raw))
	}
	if rr.Error != nil {
		return rr.Error
	}
	if out != nil {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("aa: decode %s result: %w", method, err)
		}
	}
	return nil
}

// SendUserOperation submits a signed op, returning the userOpHash.
func (c *BundlerClient) SendUserOperation(ctx context.Context, op UserOperation, entryPoint string) (string, error) {
	var hash string
	err := c.call(ctx, "eth_sendUserOperation", []any{op, entryPoint}, &hash)
	return hash, err
}

// EstimateGasResult is the bundler's limit estimate for an unsigned op.
type EstimateGasResult struct {
	PreVerificationGas   string `json:"preVerificationGas"`
	VerificationGasLimit string `json:"verificationGasLimit"`
	CallGasLimit         string `json:"callGasLimit"`
}

func (c *BundlerClient) EstimateUserOperationGas(ctx context.Context, op UserOperation, entryPoint string) (*EstimateGasResult, error) {
	var out EstimateGasResult
	if err := c.call(ctx, "eth_estimateUserOperationGas", []any{op, entryPoint}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserOperationReceipt is the bundler's view of an included op.
type UserOperationReceipt struct {
	UserOpHash    string `json:"userOpHash"`
	Sender        string `json:"sender"`
	Success       bool   `json:"success"`
	ActualGasCost string `json:"actualGasCost"`
	ActualGasUsed string `json:"actualGasUsed"`
	Receipt       struct {
		TransactionHash string `json:"transactionHash"`
		BlockNumber     string `json:"blockNumber"`
	} `json:"receipt"`
}

// GetUserOperationReceipt returns nil, nil if the bundler doesn't have it yet
// (ephemeral retention — not every bundler keeps receipts indefinitely).
func (c *BundlerClient) GetUserOperationReceipt(ctx context.Context, userOpHash string) (*UserOperationReceipt, error) {
	var out *UserOperationReceipt
	if err := c.call(ctx, "eth_getUserOperationReceipt", []any{userOpHash}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]string, error) {
	var out []string
	err := c.call(ctx, "eth_supportedEntryPoints", nil, &out)
	return out, err
}
