// Copyright 2025 Certen Protocol

package rental

import (
	"encoding/json"
	"testing"

	"github.com/untron/intent-solver/pkg/config"
)

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestResolvePointer(t *testing.T) {
	doc := mustDecode(t, `{"data":{"cost_sun":123456,"tiers":[{"price":1},{"price":2}]}}`)

	v, err := resolvePointer(doc, "/data/cost_sun")
	if err != nil {
		t.Fatalf("resolvePointer: %v", err)
	}
	if v.(float64) != 123456 {
		t.Fatalf("got %v", v)
	}

	v, err = resolvePointer(doc, "/data/tiers/1/price")
	if err != nil {
		t.Fatalf("resolvePointer nested: %v", err)
	}
	if v.(float64) != 2 {
		t.Fatalf("got %v", v)
	}

	if _, err := resolvePointer(doc, "/data/missing"); err == nil {
		t.Fatalf("expected error for missing key")
	}
}

func TestPointerUint64(t *testing.T) {
	doc := mustDecode(t, `{"cost":"42"}`)
	v, err := pointerUint64(doc, "/cost")
	if err != nil {
		t.Fatalf("pointerUint64: %v", err)
	}
	if v != 42 {
		t.Fatalf("got %d", v)
	}
}

func TestPointerBoolSuccessEquals(t *testing.T) {
	doc := mustDecode(t, `{"status":"ok"}`)
	ok, err := pointerBool(doc, "/status", json.RawMessage(`"ok"`))
	if err != nil {
		t.Fatalf("pointerBool: %v", err)
	}
	if !ok {
		t.Fatalf("expected success match")
	}

	ok, err = pointerBool(doc, "/status", json.RawMessage(`"failed"`))
	if err != nil {
		t.Fatalf("pointerBool: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestBucketedCostSelection(t *testing.T) {
	e := &Engine{}
	doc := mustDecode(t, `{"active_days":10,"tiers":{"short":100,"mid":200,"long":50}}`)
	mapping := config.RentalQuoteResponseMapping{
		Buckets: &config.RentalQuoteBuckets{
			PeriodActivePointer: "/active_days",
			LtThreshold:         5,
			LtPointer:           "/tiers/short",
			EqValue:             10,
			EqPointer:           "/tiers/mid",
			GtPointer:           "/tiers/long",
		},
	}

	cost, err := e.resolveCost(doc, mapping, 10)
	if err != nil {
		t.Fatalf("resolveCost: %v", err)
	}
	if cost != 200 {
		t.Fatalf("got %d, want eq-bucket 200", cost)
	}

	docGt := mustDecode(t, `{"active_days":30,"tiers":{"short":100,"mid":200,"long":50}}`)
	cost, err = e.resolveCost(docGt, mapping, 30)
	if err != nil {
		t.Fatalf("resolveCost: %v", err)
	}
	if cost != 50 {
		t.Fatalf("got %d, want gt-bucket 50", cost)
	}
}

func TestBucketedCostEqTakesPrecedenceOverLt(t *testing.T) {
	e := &Engine{}
	// amount is both equal to eq_value and below lt_threshold; the eq tier
	// must win.
	doc := mustDecode(t, `{"amount":131000,"prices":{"low":3000000,"exact":2250000,"high":1800000}}`)
	mapping := config.RentalQuoteResponseMapping{
		Buckets: &config.RentalQuoteBuckets{
			PeriodActivePointer: "/amount",
			LtThreshold:         200_000,
			LtPointer:           "/prices/low",
			EqValue:             131_000,
			EqPointer:           "/prices/exact",
			GtPointer:           "/prices/high",
		},
	}
	cost, err := e.resolveCost(doc, mapping, 131_000)
	if err != nil {
		t.Fatalf("resolveCost: %v", err)
	}
	if cost != 2_250_000 {
		t.Fatalf("got %d, want eq-tier 2250000", cost)
	}
}

func TestBucketedCostPeriodsTable(t *testing.T) {
	e := &Engine{}
	doc := mustDecode(t, `{"active":3,"periods":[1,3,30],"prices":[900,750,500]}`)
	mapping := config.RentalQuoteResponseMapping{
		Buckets: &config.RentalQuoteBuckets{
			PeriodActivePointer: "/active",
			PeriodsPointer:      "/periods",
			PeriodPricesPointer: "/prices",
		},
	}
	cost, err := e.resolveCost(doc, mapping, 3)
	if err != nil {
		t.Fatalf("resolveCost: %v", err)
	}
	if cost != 750 {
		t.Fatalf("got %d, want period-3 tier 750", cost)
	}

	docMiss := mustDecode(t, `{"active":7,"periods":[1,3,30],"prices":[900,750,500]}`)
	if _, err := e.resolveCost(docMiss, mapping, 7); err == nil {
		t.Fatalf("expected error for period with no tier")
	}
}
