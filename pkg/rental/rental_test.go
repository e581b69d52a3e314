// Copyright 2025 Certen Protocol

package rental

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/untron/intent-solver/pkg/config"
)

func TestQuoteOneSubstitutesPlaceholdersAndParsesCost(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, r.ContentLength)
		r.Body.Read(b)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"cost_sun":777000}`))
	}))
	defer srv.Close()

	e := &Engine{client: srv.Client()}
	p := config.RentalProviderConfig{
		Name: "acme",
		Quote: &config.RentalQuoteConfig{
			URL:    srv.URL,
			Method: http.MethodPost,
			Body:   json.RawMessage(`{"resource":"{{resource_kind}}","balance":"{{balance_sun}}"}`),
			Response: config.RentalQuoteResponseMapping{
				SuccessPointer: "/ok",
				CostPointer:    "/cost_sun",
			},
		},
	}
	ph := Placeholders{ResourceKind: "energy", BalanceSun: 65000}

	q, err := e.quoteOne(context.Background(), p, ph)
	if err != nil {
		t.Fatalf("quoteOne: %v", err)
	}
	if q.CostSun != 777000 {
		t.Fatalf("got cost %d", q.CostSun)
	}
	if gotBody != `{"resource":"energy","balance":"65000"}` {
		t.Fatalf("unexpected templated body: %s", gotBody)
	}
}

func TestQuoteOneFailsOnUnsuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"insufficient stock"}`))
	}))
	defer srv.Close()

	e := &Engine{client: srv.Client()}
	p := config.RentalProviderConfig{
		Name: "acme",
		Quote: &config.RentalQuoteConfig{
			URL: srv.URL,
			Response: config.RentalQuoteResponseMapping{
				SuccessPointer: "/ok",
				ErrorPointer:   "/error",
			},
		},
	}
	if _, err := e.quoteOne(context.Background(), p, Placeholders{}); err == nil {
		t.Fatalf("expected error for unsuccessful quote")
	}
}

func TestOrderOneParsesOrderIDAndTxid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"id":"ord_1","txid":"abc123"}`))
	}))
	defer srv.Close()

	e := &Engine{client: srv.Client()}
	p := config.RentalProviderConfig{
		Name:   "acme",
		URL:    srv.URL,
		Method: http.MethodPost,
		Response: config.RentalResponseMapping{
			SuccessPointer: "/success",
			OrderIDPointer: "/id",
			TxIDPointer:    "/txid",
		},
	}
	res, err := e.orderOne(context.Background(), p, Placeholders{})
	if err != nil {
		t.Fatalf("orderOne: %v", err)
	}
	if res.OrderID != "ord_1" || res.Txid != "abc123" {
		t.Fatalf("got %+v", res)
	}
}

func TestOrderWithPreferredReordersWithoutDropping(t *testing.T) {
	providers := []config.RentalProviderConfig{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	ordered := orderWithPreferred(providers, "c")
	if ordered[0].Name != "c" || len(ordered) != 3 {
		t.Fatalf("got %+v", ordered)
	}
}
