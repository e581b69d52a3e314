// Copyright 2025 Certen Protocol

package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HubTxMode selects how the solver submits hub transactions (component E).
type HubTxMode string

const (
	HubTxModeEOA      HubTxMode = "eoa"
	HubTxModeSafe4337 HubTxMode = "safe4337"
)

// TronMode selects the Tron backend (component F).
type TronMode string

const (
	TronModeGRPC TronMode = "grpc"
	TronModeMock TronMode = "mock"
)

// PaymasterConfig is one entry of HUB_PAYMASTERS_JSON. Per the Safe4337 sender
// design, paymasters are parsed but the sender currently always self-pays;
// a non-empty list only produces a startup warning (see pkg/hub).
type PaymasterConfig struct {
	Address string `json:"address" yaml:"address"`
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
}

// HubConfig configures component E.
type HubConfig struct {
	RPCURL              string
	ChainID             int64 // 0 = discover and accept any
	PoolAddress         string
	USDTAddress         string
	TxMode              HubTxMode
	SignerPrivateKeyHex string

	EntryPointAddress      string
	SafeAddress            string
	Safe4337ModuleAddress  string
	SafeProxyFactory       string
	SafeSingleton          string
	SafeModuleSetup        string
	BundlerURLs            []string
	Paymasters             []PaymasterConfig
	CheckBundlerEntrypoint bool

	RPCTimeout        time.Duration
	UserOpReceiptWait time.Duration
	TxReceiptWait     time.Duration
}

// TronConfig configures component F.
type TronConfig struct {
	Mode                TronMode
	GRPCURL             string
	APIKey              string
	PrivateKeysHex      []string
	ControllerAddress   string
	MockReaderAddress   string
	USDTContractAddress string
	FeeLimitCapSun      uint64
	FeeLimitHeadroomPPM uint64

	EmulationEnabled              bool
	DelegateResourceResellEnabled bool
	ResellEnergyHeadroomPPM       uint64

	EnergyRentalProviders []RentalProviderConfig

	RentalProviderFailThreshold int
	RentalProviderFailWindow    time.Duration
	RentalProviderFreeze        time.Duration

	ConsolidationEnabled      bool
	ConsolidationMaxPreTxs    int
	ConsolidationMaxTotalPull uint64
	ConsolidationMaxPerTxPull uint64

	BroadcastTimeout time.Duration
}

// RentalProviderConfig describes one JSON-templated HTTP provider for Tron
// resource rental.
type RentalProviderConfig struct {
	Name     string                `json:"name" yaml:"name"`
	URL      string                `json:"url" yaml:"url"`
	Method   string                `json:"method" yaml:"method"`
	Headers  map[string]string     `json:"headers" yaml:"headers"`
	Body     json.RawMessage       `json:"body" yaml:"body"`
	Response RentalResponseMapping `json:"response" yaml:"response"`
	Quote    *RentalQuoteConfig    `json:"quote,omitempty" yaml:"quote,omitempty"`
}

type RentalResponseMapping struct {
	SuccessPointer string          `json:"success_pointer" yaml:"success_pointer"`
	SuccessEquals  json.RawMessage `json:"success_equals,omitempty" yaml:"success_equals,omitempty"`
	OrderIDPointer string          `json:"order_id_pointer,omitempty" yaml:"order_id_pointer,omitempty"`
	TxIDPointer    string          `json:"txid_pointer,omitempty" yaml:"txid_pointer,omitempty"`
	ErrorPointer   string          `json:"error_pointer,omitempty" yaml:"error_pointer,omitempty"`
}

type RentalQuoteConfig struct {
	URL      string                     `json:"url" yaml:"url"`
	Method   string                     `json:"method" yaml:"method"`
	Headers  map[string]string          `json:"headers" yaml:"headers"`
	Body     json.RawMessage            `json:"body" yaml:"body"`
	Response RentalQuoteResponseMapping `json:"response" yaml:"response"`
}

type RentalQuoteResponseMapping struct {
	SuccessPointer string              `json:"success_pointer" yaml:"success_pointer"`
	SuccessEquals  json.RawMessage     `json:"success_equals,omitempty" yaml:"success_equals,omitempty"`
	CostPointer    string              `json:"cost_pointer,omitempty" yaml:"cost_pointer,omitempty"`
	CostUnit       string              `json:"cost_unit" yaml:"cost_unit"`
	ErrorPointer   string              `json:"error_pointer,omitempty" yaml:"error_pointer,omitempty"`
	Buckets        *RentalQuoteBuckets `json:"buckets,omitempty" yaml:"buckets,omitempty"`
}

type RentalQuoteBuckets struct {
	PeriodsPointer      string `json:"periods_pointer" yaml:"periods_pointer"`
	PeriodActivePointer string `json:"period_active_pointer" yaml:"period_active_pointer"`
	PeriodPricesPointer string `json:"period_prices_pointer" yaml:"period_prices_pointer"`
	LtThreshold         uint64 `json:"lt_threshold" yaml:"lt_threshold"`
	LtPointer           string `json:"lt_pointer" yaml:"lt_pointer"`
	EqValue             uint64 `json:"eq_value" yaml:"eq_value"`
	EqPointer           string `json:"eq_pointer" yaml:"eq_pointer"`
	GtPointer           string `json:"gt_pointer" yaml:"gt_pointer"`
}

// PolicyConfig configures component G.
type PolicyConfig struct {
	EnabledIntentTypes []int16

	MinDeadlineSlackSecs int64
	MinProfitUSD         float64

	RequirePricedEscrow bool
	AllowedEscrowTokens []string

	DelegateResourceResellEnabled bool

	TriggerContractAllowlist  []string
	TriggerContractDenylist   []string
	TriggerSelectorDenylist   [][4]byte
	TriggerAllowFallbackCalls bool

	MaxTRXTransferSun        *uint64
	MaxUSDTTransferAmount    *uint64
	MaxDelegateBalanceSun    *uint64
	MaxDelegateLockPeriodSec *uint64
	MaxTriggerCallValueSun   *uint64
	MaxTriggerCalldataLen    *uint64

	CapitalLockPPMPerDay uint64

	BreakerFailThreshold     int
	BreakerCooldown          time.Duration
	BreakerDiscrepancyWeight int
}

// JobsConfig configures the job scheduler (component I).
type JobsConfig struct {
	TickInterval    time.Duration
	MaxInFlightJobs int
	FillMaxClaims   int
	InstanceID      string

	ConcurrencyTronBroadcast    int
	ConcurrencyTRXTransfer      int
	ConcurrencyUSDTTransfer     int
	ConcurrencyDelegateResource int
	ConcurrencyTriggerContract  int

	ClaimRateLimitPerMinute  int
	GlobalPauseFailThreshold int
	GlobalPauseWindow        time.Duration
	GlobalPauseDuration      time.Duration

	ConsolidationEnabled bool

	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// SolverConfig is the root configuration for the solver process.
type SolverConfig struct {
	SolverDBURL       string
	IndexerAPIBaseURL string
	MetricsAddr       string

	Hub    HubConfig
	Tron   TronConfig
	Policy PolicyConfig
	Jobs   JobsConfig
}

// LoadSolver reads SolverConfig from the environment.
func LoadSolver() (*SolverConfig, error) {
	cfg := &SolverConfig{
		SolverDBURL:       getEnv("SOLVER_DB_URL", ""),
		IndexerAPIBaseURL: getEnv("INDEXER_API_BASE_URL", ""),
		MetricsAddr:       getEnv("METRICS_ADDR", ":9101"),
		Hub: HubConfig{
			RPCURL:                 getEnv("HUB_RPC_URL", ""),
			ChainID:                getEnvInt64("HUB_CHAIN_ID", 0),
			PoolAddress:            getEnv("HUB_POOL_ADDRESS", ""),
			USDTAddress:            getEnv("HUB_USDT_ADDRESS", ""),
			TxMode:                 HubTxMode(getEnv("HUB_TX_MODE", "eoa")),
			SignerPrivateKeyHex:    getEnv("HUB_SIGNER_PRIVATE_KEY_HEX", ""),
			EntryPointAddress:      getEnv("HUB_ENTRYPOINT_ADDRESS", ""),
			SafeAddress:            getEnv("HUB_SAFE_ADDRESS", ""),
			Safe4337ModuleAddress:  getEnv("HUB_SAFE_4337_MODULE_ADDRESS", ""),
			SafeProxyFactory:       getEnv("HUB_SAFE_PROXY_FACTORY_ADDRESS", ""),
			SafeSingleton:          getEnv("HUB_SAFE_SINGLETON_ADDRESS", ""),
			SafeModuleSetup:        getEnv("HUB_SAFE_MODULE_SETUP_ADDRESS", ""),
			BundlerURLs:            getEnvCSV("HUB_BUNDLER_URLS", nil),
			CheckBundlerEntrypoint: getEnvBool("HUB_CHECK_BUNDLER_ENTRYPOINT", true),
			RPCTimeout:             getEnvDuration("HUB_RPC_TIMEOUT", 20*time.Second),
			UserOpReceiptWait:      getEnvDuration("HUB_USEROP_RECEIPT_WAIT", 120*time.Second),
			TxReceiptWait:          getEnvDuration("HUB_TX_RECEIPT_WAIT", 120*time.Second),
		},
		Tron: TronConfig{
			Mode:                          TronMode(getEnv("TRON_MODE", "grpc")),
			GRPCURL:                       getEnv("TRON_GRPC_URL", ""),
			APIKey:                        getEnv("TRON_API_KEY", ""),
			PrivateKeysHex:                tronPrivateKeys(),
			ControllerAddress:             getEnv("TRON_CONTROLLER_ADDRESS", ""),
			MockReaderAddress:             getEnv("TRON_MOCK_READER_ADDRESS", ""),
			USDTContractAddress:           getEnv("TRON_USDT_CONTRACT_ADDRESS", ""),
			FeeLimitCapSun:                getEnvUint64("TRON_FEE_LIMIT_CAP_SUN", 1_000_000_000),
			FeeLimitHeadroomPPM:           getEnvUint64("TRON_FEE_LIMIT_HEADROOM_PPM", 200_000),
			EmulationEnabled:              getEnvBool("TRON_EMULATION_ENABLED", false),
			DelegateResourceResellEnabled: getEnvBool("TRON_DELEGATE_RESOURCE_RESELL_ENABLED", false),
			ResellEnergyHeadroomPPM:       getEnvUint64("TRON_RESELL_ENERGY_HEADROOM_PPM", 50_000),
			RentalProviderFailThreshold:   getEnvInt("TRON_RENTAL_PROVIDER_FAIL_THRESHOLD", 3),
			RentalProviderFailWindow:      getEnvDuration("TRON_RENTAL_PROVIDER_FAIL_WINDOW_SECS", 300*time.Second),
			RentalProviderFreeze:          getEnvDuration("TRON_RENTAL_PROVIDER_FREEZE_SECS", 600*time.Second),
			ConsolidationEnabled:          getEnvBool("SOLVER_CONSOLIDATION_ENABLED", false),
			ConsolidationMaxPreTxs:        getEnvInt("SOLVER_CONSOLIDATION_MAX_PRE_TXS", 4),
			ConsolidationMaxTotalPull:     getEnvUint64("SOLVER_CONSOLIDATION_MAX_TOTAL_PULL_SUN", 500_000_000),
			ConsolidationMaxPerTxPull:     getEnvUint64("SOLVER_CONSOLIDATION_MAX_PER_TX_PULL_SUN", 200_000_000),
			BroadcastTimeout:              getEnvDuration("TRON_BROADCAST_TIMEOUT", 15*time.Second),
		},
		Policy: PolicyConfig{
			EnabledIntentTypes:            intentTypesFromCSV(getEnvCSV("SOLVER_ENABLED_INTENT_TYPES", []string{"0", "1", "2", "3"})),
			MinDeadlineSlackSecs:          getEnvInt64("SOLVER_MIN_DEADLINE_SLACK_SECS", 120),
			MinProfitUSD:                  getEnvFloat("SOLVER_MIN_PROFIT_USD", 0),
			RequirePricedEscrow:           getEnvBool("SOLVER_REQUIRE_PRICED_ESCROW", false),
			AllowedEscrowTokens:           getEnvCSV("SOLVER_ALLOWED_ESCROW_TOKENS", nil),
			DelegateResourceResellEnabled: getEnvBool("TRON_DELEGATE_RESOURCE_RESELL_ENABLED", false),
			TriggerContractAllowlist:      getEnvCSV("SOLVER_TRIGGER_CONTRACT_ALLOWLIST", nil),
			TriggerContractDenylist:       getEnvCSV("SOLVER_TRIGGER_CONTRACT_DENYLIST", nil),
			TriggerSelectorDenylist:       selectorsFromCSV(getEnvCSV("SOLVER_TRIGGER_SELECTOR_DENYLIST", nil)),
			TriggerAllowFallbackCalls:     getEnvBool("SOLVER_TRIGGER_ALLOW_FALLBACK_CALLS", false),
			MaxTRXTransferSun:             getEnvUint64Ptr("SOLVER_MAX_TRX_TRANSFER_SUN"),
			MaxUSDTTransferAmount:         getEnvUint64Ptr("SOLVER_MAX_USDT_TRANSFER_AMOUNT"),
			MaxDelegateBalanceSun:         getEnvUint64Ptr("SOLVER_MAX_DELEGATE_BALANCE_SUN"),
			MaxDelegateLockPeriodSec:      getEnvUint64Ptr("SOLVER_MAX_DELEGATE_LOCK_PERIOD_SECS"),
			MaxTriggerCallValueSun:        getEnvUint64Ptr("SOLVER_MAX_TRIGGER_CALL_VALUE_SUN"),
			MaxTriggerCalldataLen:         getEnvUint64Ptr("SOLVER_MAX_TRIGGER_CALLDATA_LEN"),
			CapitalLockPPMPerDay:          getEnvUint64("SOLVER_CAPITAL_LOCK_PPM_PER_DAY", 0),
			BreakerFailThreshold:          getEnvInt("SOLVER_BREAKER_FAIL_THRESHOLD", 3),
			BreakerCooldown:               getEnvDuration("SOLVER_BREAKER_COOLDOWN_SECS", 1800*time.Second),
			BreakerDiscrepancyWeight:      getEnvInt("SOLVER_BREAKER_DISCREPANCY_WEIGHT", 3),
		},
		Jobs: JobsConfig{
			TickInterval:                getEnvDuration("SOLVER_TICK_INTERVAL_SECS", 5*time.Second),
			MaxInFlightJobs:             getEnvInt("SOLVER_MAX_IN_FLIGHT_JOBS", 16),
			FillMaxClaims:               getEnvInt("SOLVER_FILL_MAX_CLAIMS", 50),
			InstanceID:                  getEnv("SOLVER_INSTANCE_ID", ""),
			ConcurrencyTronBroadcast:    getEnvInt("SOLVER_CONCURRENCY_TRON_BROADCAST", 4),
			ConcurrencyTRXTransfer:      getEnvInt("SOLVER_CONCURRENCY_TRX_TRANSFER", 4),
			ConcurrencyUSDTTransfer:     getEnvInt("SOLVER_CONCURRENCY_USDT_TRANSFER", 4),
			ConcurrencyDelegateResource: getEnvInt("SOLVER_CONCURRENCY_DELEGATE_RESOURCE", 2),
			ConcurrencyTriggerContract:  getEnvInt("SOLVER_CONCURRENCY_TRIGGER_SMART_CONTRACT", 2),
			ClaimRateLimitPerMinute:     getEnvInt("SOLVER_RATE_LIMIT_CLAIMS_PER_MINUTE", 30),
			GlobalPauseFailThreshold:    getEnvInt("SOLVER_GLOBAL_PAUSE_FAIL_THRESHOLD", 10),
			GlobalPauseWindow:           getEnvDuration("SOLVER_GLOBAL_PAUSE_WINDOW_SECS", 300*time.Second),
			GlobalPauseDuration:         getEnvDuration("SOLVER_GLOBAL_PAUSE_DURATION_SECS", 600*time.Second),
			ConsolidationEnabled:        getEnvBool("SOLVER_CONSOLIDATION_ENABLED", false),
			BackoffBase:                 getEnvDuration("SOLVER_BACKOFF_BASE_SECS", time.Second),
			BackoffCap:                  getEnvDuration("SOLVER_BACKOFF_CAP_SECS", 120*time.Second),
		},
	}

	if path := getEnv("TRON_ENERGY_RENTAL_APIS_FILE", ""); path != "" {
		providers, err := loadYAMLFile[[]RentalProviderConfig](path)
		if err != nil {
			return nil, fmt.Errorf("load TRON_ENERGY_RENTAL_APIS_FILE: %w", err)
		}
		cfg.Tron.EnergyRentalProviders = providers
	} else if raw := getEnv("TRON_ENERGY_RENTAL_APIS_JSON", ""); raw != "" {
		var providers []RentalProviderConfig
		if err := json.Unmarshal([]byte(raw), &providers); err != nil {
			return nil, fmt.Errorf("parse TRON_ENERGY_RENTAL_APIS_JSON: %w", err)
		}
		cfg.Tron.EnergyRentalProviders = providers
	}
	if path := getEnv("HUB_PAYMASTERS_FILE", ""); path != "" {
		pm, err := loadYAMLFile[[]PaymasterConfig](path)
		if err != nil {
			return nil, fmt.Errorf("load HUB_PAYMASTERS_FILE: %w", err)
		}
		cfg.Hub.Paymasters = pm
	} else if raw := getEnv("HUB_PAYMASTERS_JSON", ""); raw != "" {
		var pm []PaymasterConfig
		if err := json.Unmarshal([]byte(raw), &pm); err != nil {
			return nil, fmt.Errorf("parse HUB_PAYMASTERS_JSON: %w", err)
		}
		cfg.Hub.Paymasters = pm
	}

	if cfg.Jobs.InstanceID == "" {
		cfg.Jobs.InstanceID = newInstanceID()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *SolverConfig) validate() error {
	var missing []string
	if c.SolverDBURL == "" {
		missing = append(missing, "SOLVER_DB_URL")
	}
	if c.IndexerAPIBaseURL == "" {
		missing = append(missing, "INDEXER_API_BASE_URL")
	}
	if c.Hub.RPCURL == "" {
		missing = append(missing, "HUB_RPC_URL")
	}
	if c.Hub.PoolAddress == "" {
		missing = append(missing, "HUB_POOL_ADDRESS")
	}
	if c.Hub.SignerPrivateKeyHex == "" {
		missing = append(missing, "HUB_SIGNER_PRIVATE_KEY_HEX")
	}
	if c.Hub.TxMode == HubTxModeSafe4337 {
		if c.Hub.EntryPointAddress == "" {
			missing = append(missing, "HUB_ENTRYPOINT_ADDRESS")
		}
		if c.Hub.Safe4337ModuleAddress == "" {
			missing = append(missing, "HUB_SAFE_4337_MODULE_ADDRESS")
		}
		if len(c.Hub.BundlerURLs) == 0 {
			missing = append(missing, "HUB_BUNDLER_URLS")
		}
	}
	if c.Tron.Mode == TronModeGRPC && c.Tron.GRPCURL == "" {
		missing = append(missing, "TRON_GRPC_URL")
	}
	if c.Tron.Mode == TronModeMock && c.Tron.MockReaderAddress == "" {
		missing = append(missing, "TRON_MOCK_READER_ADDRESS")
	}
	if len(c.Tron.PrivateKeysHex) == 0 {
		missing = append(missing, "TRON_PRIVATE_KEY_HEX or TRON_PRIVATE_KEYS_HEX_CSV")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required %s", strings.Join(missing, ", "))
	}
	return nil
}

func tronPrivateKeys() []string {
	if csv := getEnvCSV("TRON_PRIVATE_KEYS_HEX_CSV", nil); len(csv) > 0 {
		return csv
	}
	if single := getEnv("TRON_PRIVATE_KEY_HEX", ""); single != "" {
		return []string{single}
	}
	return nil
}

// loadYAMLFile reads and decodes path as YAML into T. Used for the rental
// provider list and paymaster list, which are nested config shapes that
// don't fit flat env vars well; both also accept an inline-JSON env var as
// a fallback for simple deployments that would rather not manage a file.
func loadYAMLFile[T any](path string) (T, error) {
	var out T
	data, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parse %s as yaml: %w", path, err)
	}
	return out, nil
}

// selectorsFromCSV parses 4-byte function selectors ("0xdeadbeef" or bare
// hex) for the trigger selector denylist; malformed entries are dropped.
func selectorsFromCSV(csv []string) [][4]byte {
	out := make([][4]byte, 0, len(csv))
	for _, s := range csv {
		s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
		raw, err := hex.DecodeString(s)
		if err != nil || len(raw) != 4 {
			continue
		}
		var sel [4]byte
		copy(sel[:], raw)
		out = append(out, sel)
	}
	return out
}

func intentTypesFromCSV(csv []string) []int16 {
	out := make([]int16, 0, len(csv))
	for _, s := range csv {
		switch strings.TrimSpace(s) {
		case "0", "trigger_smart_contract", "TriggerSmartContract":
			out = append(out, 0)
		case "1", "usdt_transfer", "UsdtTransfer":
			out = append(out, 1)
		case "2", "trx_transfer", "TrxTransfer":
			out = append(out, 2)
		case "3", "delegate_resource", "DelegateResource":
			out = append(out, 3)
		}
	}
	return out
}
