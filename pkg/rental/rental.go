// Copyright 2025 Certen Protocol

// Package rental implements JSON-templated HTTP rental providers for Tron
// energy/bandwidth. Each provider is configured declaratively
// (TRON_ENERGY_RENTAL_APIS_JSON) as a request template with placeholder
// substitution and a JSON-pointer response mapping, so adding a provider
// never requires a code change.
package rental

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/untron/intent-solver/pkg/config"
	"github.com/untron/intent-solver/pkg/solverdb"
	"github.com/untron/intent-solver/pkg/telemetry"
)

var logger = log.New(os.Stdout, "[rental] ", log.LstdFlags)

// Placeholders is the closed set of template variables a provider's request
// body or URL may reference.
type Placeholders struct {
	ResourceKind       string
	AmountSun          int64
	BalanceSun         int64
	LockPeriod         int64
	DurationHours      int64
	AddressBase58Check string
	AddressHex41       string
	AddressEVMHex      string
	Txid               string
}

func (p Placeholders) replacer() *strings.Replacer {
	return strings.NewReplacer(
		"{{resource_kind}}", p.ResourceKind,
		"{{amount}}", strconv.FormatInt(p.AmountSun, 10),
		"{{balance_sun}}", strconv.FormatInt(p.BalanceSun, 10),
		"{{lock_period}}", strconv.FormatInt(p.LockPeriod, 10),
		"{{duration_hours}}", strconv.FormatInt(p.DurationHours, 10),
		"{{address_base58check}}", p.AddressBase58Check,
		"{{address_hex41}}", p.AddressHex41,
		"{{address_evm_hex}}", p.AddressEVMHex,
		"{{txid}}", p.Txid,
	)
}

func (p Placeholders) substitute(s string) string { return p.replacer().Replace(s) }

// Quote is one provider's priced offer for a rental.
type Quote struct {
	Provider   string
	CostSun    uint64
	LockPeriod int64
}

// OrderResult is the outcome of successfully placing a rental order.
type OrderResult struct {
	Provider string
	OrderID  string
	Txid     string
}

// Engine runs quote/order calls against the configured providers, tracking
// provider freeze/fail-window state in solverdb.
type Engine struct {
	db     *solverdb.Db
	tel    *telemetry.Telemetry
	client *http.Client

	failThreshold int
	failWindow    time.Duration
	freezeFor     time.Duration
}

// New builds a rental engine bound to config.TronConfig's provider-freeze
// bookkeeping parameters.
func New(cfg config.TronConfig, db *solverdb.Db, tel *telemetry.Telemetry) *Engine {
	return &Engine{
		db:            db,
		tel:           tel,
		client:        &http.Client{Timeout: 20 * time.Second},
		failThreshold: cfg.RentalProviderFailThreshold,
		failWindow:    cfg.RentalProviderFailWindow,
		freezeFor:     cfg.RentalProviderFreeze,
	}
}

// QuoteAll calls every unfrozen provider's quote endpoint sequentially
// (simpler error attribution than a fan-out, and quote calls are not on a
// latency-critical path) and returns quotes sorted by cost ascending, ties
// broken by provider name.
func (e *Engine) QuoteAll(ctx context.Context, providers []config.RentalProviderConfig, ph Placeholders) ([]Quote, error) {
	var quotes []Quote
	for _, p := range providers {
		if p.Quote == nil {
			continue
		}
		frozen, err := e.db.ProviderFrozen(ctx, p.Name)
		if err != nil {
			return nil, fmt.Errorf("rental: provider frozen check %s: %w", p.Name, err)
		}
		if frozen {
			logger.Printf("🧊 provider %s frozen, skipping quote", p.Name)
			continue
		}
		start := time.Now()
		q, err := e.quoteOne(ctx, p, ph)
		ok := err == nil
		if e.tel != nil {
			e.tel.RentalQuoteMs(p.Name, ok, time.Since(start).Milliseconds())
		}
		if err != nil {
			logger.Printf("⚠️ quote %s failed: %v", p.Name, err)
			e.recordFailure(ctx, p.Name, err)
			continue
		}
		e.recordSuccess(ctx, p.Name)
		quotes = append(quotes, q)
	}
	sort.Slice(quotes, func(i, j int) bool {
		if quotes[i].CostSun != quotes[j].CostSun {
			return quotes[i].CostSun < quotes[j].CostSun
		}
		return quotes[i].Provider < quotes[j].Provider
	})
	return quotes, nil
}

func (e *Engine) quoteOne(ctx context.Context, p config.RentalProviderConfig, ph Placeholders) (Quote, error) {
	qc := p.Quote
	body, err := e.doRequest(ctx, qc.URL, qc.Method, qc.Headers, qc.Body, ph)
	if err != nil {
		return Quote{}, err
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Quote{}, fmt.Errorf("rental: provider %s: decode response: %w", p.Name, err)
	}
	ok, err := pointerBool(doc, qc.Response.SuccessPointer, qc.Response.SuccessEquals)
	if err != nil {
		return Quote{}, fmt.Errorf("rental: provider %s: success check: %w", p.Name, err)
	}
	if !ok {
		reason, _ := pointerString(doc, qc.Response.ErrorPointer)
		return Quote{}, fmt.Errorf("rental: provider %s: quote not successful: %s", p.Name, reason)
	}
	cost, err := e.resolveCost(doc, qc.Response, ph.LockPeriod)
	if err != nil {
		return Quote{}, fmt.Errorf("rental: provider %s: resolve cost: %w", p.Name, err)
	}
	return Quote{Provider: p.Name, CostSun: cost, LockPeriod: ph.LockPeriod}, nil
}

// resolveCost reads a flat cost_pointer, or, when the provider quotes a
// multi-tier price table, looks the active period up: first in the
// periods/prices parallel arrays when configured, else via the three-way
// bucket selector. The selector checks eq_value before lt_threshold — an
// amount both equal to eq_value and under lt_threshold takes the eq tier.
func (e *Engine) resolveCost(doc any, mapping config.RentalQuoteResponseMapping, activePeriod int64) (uint64, error) {
	if mapping.Buckets == nil {
		return pointerUint64(doc, mapping.CostPointer)
	}
	b := mapping.Buckets
	active, err := pointerUint64(doc, b.PeriodActivePointer)
	if err != nil {
		active = uint64(activePeriod)
	}
	if b.PeriodsPointer != "" && b.PeriodPricesPointer != "" {
		periods, err := pointerUint64Slice(doc, b.PeriodsPointer)
		if err != nil {
			return 0, err
		}
		prices, err := pointerUint64Slice(doc, b.PeriodPricesPointer)
		if err != nil {
			return 0, err
		}
		for i, p := range periods {
			if p == active {
				if i >= len(prices) {
					return 0, fmt.Errorf("rental: price table has %d prices for %d periods", len(prices), len(periods))
				}
				return prices[i], nil
			}
		}
		return 0, fmt.Errorf("rental: no price tier for period %d", active)
	}
	switch {
	case active == b.EqValue:
		return pointerUint64(doc, b.EqPointer)
	case active < b.LtThreshold:
		return pointerUint64(doc, b.LtPointer)
	default:
		return pointerUint64(doc, b.GtPointer)
	}
}

// Order places a rental order, trying preferred first (when non-empty and
// present in providers) and falling through the configured order otherwise.
func (e *Engine) Order(ctx context.Context, providers []config.RentalProviderConfig, preferred string, ph Placeholders) (*OrderResult, error) {
	ordered := orderWithPreferred(providers, preferred)
	var lastErr error
	for _, p := range ordered {
		frozen, err := e.db.ProviderFrozen(ctx, p.Name)
		if err != nil {
			return nil, fmt.Errorf("rental: provider frozen check %s: %w", p.Name, err)
		}
		if frozen {
			continue
		}
		start := time.Now()
		res, err := e.orderOne(ctx, p, ph)
		ok := err == nil
		if e.tel != nil {
			e.tel.RentalOrderMs(p.Name, ok, time.Since(start).Milliseconds())
		}
		if err != nil {
			logger.Printf("⚠️ order %s failed: %v", p.Name, err)
			e.recordFailure(ctx, p.Name, err)
			lastErr = err
			continue
		}
		e.recordSuccess(ctx, p.Name)
		return res, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("rental: no eligible (unfrozen, configured) provider")
	}
	return nil, lastErr
}

func orderWithPreferred(providers []config.RentalProviderConfig, preferred string) []config.RentalProviderConfig {
	if preferred == "" {
		return providers
	}
	out := make([]config.RentalProviderConfig, 0, len(providers))
	var rest []config.RentalProviderConfig
	for _, p := range providers {
		if p.Name == preferred {
			out = append(out, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(out, rest...)
}

func (e *Engine) orderOne(ctx context.Context, p config.RentalProviderConfig, ph Placeholders) (*OrderResult, error) {
	body, err := e.doRequest(ctx, p.URL, p.Method, p.Headers, p.Body, ph)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("rental: provider %s: decode response: %w", p.Name, err)
	}
	ok, err := pointerBool(doc, p.Response.SuccessPointer, p.Response.SuccessEquals)
	if err != nil {
		return nil, fmt.Errorf("rental: provider %s: success check: %w", p.Name, err)
	}
	if !ok {
		reason, _ := pointerString(doc, p.Response.ErrorPointer)
		return nil, fmt.Errorf("rental: provider %s: order not successful: %s", p.Name, reason)
	}
	orderID, _ := pointerString(doc, p.Response.OrderIDPointer)
	txid, _ := pointerString(doc, p.Response.TxIDPointer)
	return &OrderResult{Provider: p.Name, OrderID: orderID, Txid: txid}, nil
}

func (e *Engine) doRequest(ctx context.Context, url, method string, headers map[string]string, bodyTpl []byte, ph Placeholders) ([]byte, error) {
	if method == "" {
		method = http.MethodPost
	}
	url = ph.substitute(url)
	var reader io.Reader
	if len(bodyTpl) > 0 {
		reader = bytes.NewReader([]byte(ph.substitute(string(bodyTpl))))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("rental: build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, ph.substitute(v))
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rental: do request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rental: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rental: http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (e *Engine) recordFailure(ctx context.Context, provider string, cause error) {
	if err := e.db.RecordProviderFailure(ctx, provider, e.failWindow, e.freezeFor, e.failThreshold, cause.Error()); err != nil {
		logger.Printf("❌ record provider failure %s: %v", provider, err)
		return
	}
	if e.tel == nil {
		return
	}
	if frozen, err := e.db.ProviderFrozen(ctx, provider); err == nil && frozen {
		e.tel.RentalProviderFrozenEvent(provider)
	}
}

func (e *Engine) recordSuccess(ctx context.Context, provider string) {
	if err := e.db.RecordProviderSuccess(ctx, provider); err != nil {
		logger.Printf("❌ record provider success %s: %v", provider, err)
	}
}
