// Copyright 2025 Certen Protocol

package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/untron/intent-solver/pkg/policy"
	"github.com/untron/intent-solver/pkg/solverdb"
)

const sampleIntentID = "0x00000000000000000000000000000000000000000000000000000000000000aa"

func intentRowJSON(id string, solved, funded, settled, closed bool) string {
	return fmt.Sprintf(`{
		"id": %q,
		"valid_from_seq": 12,
		"creator": "0x1111111111111111111111111111111111111111",
		"intent_type": 2,
		"escrow_token": "0x2222222222222222222222222222222222222222",
		"escrow_amount": "5000000",
		"refund_beneficiary": "0x1111111111111111111111111111111111111111",
		"deadline": 1900000000,
		"intent_specs": "0xdeadbeef",
		"solver": "0x0000000000000000000000000000000000000000",
		"solved": %v, "funded": %v, "settled": %v, "closed": %v
	}`, id, solved, funded, settled, closed)
}

func TestOpenIntentsParsesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pool_intents" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("valid_to_seq") != "is.null" {
			t.Errorf("valid_to_seq filter = %q, want is.null", q.Get("valid_to_seq"))
		}
		if q.Get("order") != "valid_from_seq.desc" {
			t.Errorf("order = %q, want valid_from_seq.desc", q.Get("order"))
		}
		if q.Get("limit") != "50" {
			t.Errorf("limit = %q, want 50", q.Get("limit"))
		}
		fmt.Fprintf(w, "[%s]", intentRowJSON(sampleIntentID, false, true, false, false))
	}))
	defer srv.Close()

	c := NewIndexerClient(srv.URL)
	cands, err := c.OpenIntents(context.Background(), 50)
	if err != nil {
		t.Fatalf("OpenIntents: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("candidates = %d, want 1", len(cands))
	}
	got := cands[0]
	if got.IntentType != policy.IntentTypeTRXTransfer {
		t.Fatalf("intent type = %d, want trx_transfer", got.IntentType)
	}
	if got.EscrowAmount.Int64() != 5_000_000 {
		t.Fatalf("escrow amount = %s", got.EscrowAmount)
	}
	if got.IntentID[31] != 0xaa {
		t.Fatalf("intent id = %x", got.IntentID)
	}
	if len(got.IntentSpecs) != 4 {
		t.Fatalf("intent specs = %x", got.IntentSpecs)
	}
	if !got.Funded || got.Solved || got.Closed {
		t.Fatalf("flags = %+v", got)
	}
}

func TestOpenIntentsSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewIndexerClient(srv.URL)
	if _, err := c.OpenIntents(context.Background(), 10); err == nil {
		t.Fatalf("expected error for http 502")
	}
}

func TestGetIntentFiltersByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "eq."+sampleIntentID {
			t.Errorf("id filter = %q", got)
		}
		fmt.Fprintf(w, "[%s]", intentRowJSON(sampleIntentID, true, true, true, false))
	}))
	defer srv.Close()

	c := NewIndexerClient(srv.URL)
	var id [32]byte
	id[31] = 0xaa
	cand, err := c.GetIntent(context.Background(), id)
	if err != nil {
		t.Fatalf("GetIntent: %v", err)
	}
	if !cand.Solved || !cand.Funded || !cand.Settled {
		t.Fatalf("flags = %+v", cand)
	}
}

func TestGetIntentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	c := NewIndexerClient(srv.URL)
	if _, err := c.GetIntent(context.Background(), [32]byte{}); err == nil {
		t.Fatalf("expected error for missing intent")
	}
}

func TestHealthyRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewIndexerClient(srv.URL)
	if err := c.Healthy(context.Background()); err == nil {
		t.Fatalf("expected health failure for http 503")
	}
}

func TestToHubProofRoundTrip(t *testing.T) {
	blocks := make([][]byte, 20)
	for i := range blocks {
		blocks[i] = make([]byte, 174)
		blocks[i][0] = byte(i)
	}
	persisted := solverdb.TronProof{
		Txid:      make([]byte, 32),
		Blocks:    blocks,
		EncodedTx: []byte{0x01, 0x02},
		Proof:     [][]byte{make([]byte, 32), make([]byte, 32)},
		IndexDec:  "7",
	}
	proof, err := toHubProof(persisted)
	if err != nil {
		t.Fatalf("toHubProof: %v", err)
	}
	if proof.Index.Int64() != 7 {
		t.Fatalf("index = %s, want 7", proof.Index)
	}
	if len(proof.Proof) != 2 {
		t.Fatalf("proof siblings = %d, want 2", len(proof.Proof))
	}
	if proof.Blocks[3][0] != 3 {
		t.Fatalf("block order not preserved")
	}
}

func TestToHubProofRejectsMalformed(t *testing.T) {
	short := solverdb.TronProof{Blocks: make([][]byte, 19), IndexDec: "0"}
	if _, err := toHubProof(short); err == nil {
		t.Fatalf("expected rejection of 19-block proof")
	}
	badSibling := solverdb.TronProof{
		Blocks:   make([][]byte, 20),
		Proof:    [][]byte{{0x01}},
		IndexDec: "0",
	}
	if _, err := toHubProof(badSibling); err == nil {
		t.Fatalf("expected rejection of non-32-byte sibling")
	}
	badIndex := solverdb.TronProof{Blocks: make([][]byte, 20), IndexDec: "x"}
	if _, err := toHubProof(badIndex); err == nil {
		t.Fatalf("expected rejection of non-decimal index")
	}
}
