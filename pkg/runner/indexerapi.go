// Copyright 2025 Certen Protocol

package runner

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/untron/intent-solver/pkg/policy"
)

// IndexerClient reads open intents off component B's read API
// (INDEXER_API_BASE_URL), rather than touching chainstore/projection
// tables directly — the solver and indexer are separate processes with
// separate databases in production, and this HTTP seam is the only
// contract between them.
type IndexerClient struct {
	baseURL string
	client  *http.Client
}

// NewIndexerClient builds a client against baseURL (e.g. a PostgREST
// instance fronting api.intent_versions).
func NewIndexerClient(baseURL string) *IndexerClient {
	return &IndexerClient{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: 15 * time.Second}}
}

// Healthy checks the read API is reachable, matching §6's "solver polls the
// indexer's health endpoint before trusting it for candidate discovery".
func (c *IndexerClient) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("runner: build health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("runner: indexer health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("runner: indexer health check: http %d", resp.StatusCode)
	}
	return nil
}

// intentRow mirrors one api.intent_versions row as the read API serializes
// it: hex strings for byte columns (0x-prefixed), a decimal string for the
// numeric escrow_amount, matching eventschema's own wire conventions.
type intentRow struct {
	ID                string `json:"id"`
	ValidFromSeq      int64  `json:"valid_from_seq"`
	Creator           string `json:"creator"`
	IntentType        int16  `json:"intent_type"`
	EscrowToken       string `json:"escrow_token"`
	EscrowAmount      string `json:"escrow_amount"`
	RefundBeneficiary string `json:"refund_beneficiary"`
	Deadline          int64  `json:"deadline"`
	IntentSpecs       string `json:"intent_specs"`
	Solver            string `json:"solver"`
	Solved            bool   `json:"solved"`
	Funded            bool   `json:"funded"`
	Settled           bool   `json:"settled"`
	Closed            bool   `json:"closed"`
}

// OpenIntents fetches up to limit currently-open intent versions
// (valid_to_seq is null), newest first, as policy Candidates ready for
// triage.
func (c *IndexerClient) OpenIntents(ctx context.Context, limit int) ([]policy.Candidate, error) {
	u := fmt.Sprintf("%s/pool_intents?%s", c.baseURL, url.Values{
		"valid_to_seq": {"is.null"},
		"order":        {"valid_from_seq.desc"},
		"limit":        {strconv.Itoa(limit)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("runner: build open-intents request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner: fetch open intents: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("runner: fetch open intents: http %d", resp.StatusCode)
	}

	var rows []intentRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("runner: decode open intents: %w", err)
	}

	out := make([]policy.Candidate, 0, len(rows))
	for _, r := range rows {
		cand, err := rowToCandidate(r)
		if err != nil {
			return nil, fmt.Errorf("runner: row %s: %w", r.ID, err)
		}
		out = append(out, cand)
	}
	return out, nil
}

// GetIntent re-fetches the single current projection row for intentID, used
// by the proved->done|proved_waiting_* transition to read back the
// funded/settled/closed flags the hub's own events drove the projection to
// after ProveIntentFill landed.
func (c *IndexerClient) GetIntent(ctx context.Context, intentID [32]byte) (*policy.Candidate, error) {
	u := fmt.Sprintf("%s/pool_intents?%s", c.baseURL, url.Values{
		"id":     {"eq." + "0x" + hex.EncodeToString(intentID[:])},
		"limit":  {"1"},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("runner: build get-intent request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner: fetch intent %x: %w", intentID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("runner: fetch intent %x: http %d", intentID, resp.StatusCode)
	}

	var rows []intentRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("runner: decode intent %x: %w", intentID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("runner: intent %x not found", intentID)
	}
	cand, err := rowToCandidate(rows[0])
	if err != nil {
		return nil, fmt.Errorf("runner: intent %x: %w", intentID, err)
	}
	return &cand, nil
}

func rowToCandidate(r intentRow) (policy.Candidate, error) {
	id, err := decodeHex32(r.ID)
	if err != nil {
		return policy.Candidate{}, fmt.Errorf("intent_id: %w", err)
	}
	amount, ok := new(big.Int).SetString(r.EscrowAmount, 10)
	if !ok {
		return policy.Candidate{}, fmt.Errorf("escrow_amount %q is not a decimal integer", r.EscrowAmount)
	}
	specs, err := decodeHex(r.IntentSpecs)
	if err != nil {
		return policy.Candidate{}, fmt.Errorf("intent_specs: %w", err)
	}
	return policy.Candidate{
		IntentID:          id,
		Creator:           common.HexToAddress(r.Creator),
		IntentType:        policy.IntentType(r.IntentType),
		EscrowToken:       common.HexToAddress(r.EscrowToken),
		EscrowAmount:      amount,
		RefundBeneficiary: common.HexToAddress(r.RefundBeneficiary),
		Deadline:          r.Deadline,
		IntentSpecs:       specs,
		Solver:            common.HexToAddress(r.Solver),
		Solved:            r.Solved,
		Funded:            r.Funded,
		Settled:           r.Settled,
		Closed:            r.Closed,
	}, nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := decodeHex(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("want 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
