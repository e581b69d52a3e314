// Copyright 2025 Certen Protocol

package config

import (
	"testing"
	"time"
)

func TestSelectorsFromCSV(t *testing.T) {
	out := selectorsFromCSV([]string{"0xdeadbeef", "a9059cbb", "nothex", "0xbad", ""})
	if len(out) != 2 {
		t.Fatalf("selector count = %d, want 2", len(out))
	}
	if out[0] != [4]byte{0xde, 0xad, 0xbe, 0xef} {
		t.Fatalf("selector 0 = %x", out[0])
	}
	if out[1] != [4]byte{0xa9, 0x05, 0x9c, 0xbb} {
		t.Fatalf("selector 1 = %x", out[1])
	}
}

func TestIntentTypesFromCSV(t *testing.T) {
	out := intentTypesFromCSV([]string{"trx_transfer", "1", "DelegateResource", "bogus"})
	want := []int16{2, 1, 3}
	if len(out) != len(want) {
		t.Fatalf("types = %v, want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("types = %v, want %v", out, want)
		}
	}
}

func TestGetEnvDurationAcceptsBareSeconds(t *testing.T) {
	t.Setenv("TEST_DURATION_SECS", "90")
	if d := getEnvDuration("TEST_DURATION_SECS", time.Second); d != 90*time.Second {
		t.Fatalf("duration = %s, want 90s", d)
	}
	t.Setenv("TEST_DURATION_SECS", "2m")
	if d := getEnvDuration("TEST_DURATION_SECS", time.Second); d != 2*time.Minute {
		t.Fatalf("duration = %s, want 2m", d)
	}
	t.Setenv("TEST_DURATION_SECS", "garbage")
	if d := getEnvDuration("TEST_DURATION_SECS", 7*time.Second); d != 7*time.Second {
		t.Fatalf("duration = %s, want default 7s", d)
	}
}

func TestGetEnvUint64PtrDistinguishesUnset(t *testing.T) {
	if v := getEnvUint64Ptr("TEST_UNSET_CAP"); v != nil {
		t.Fatalf("unset var = %v, want nil", v)
	}
	t.Setenv("TEST_SET_CAP", "12345")
	v := getEnvUint64Ptr("TEST_SET_CAP")
	if v == nil || *v != 12345 {
		t.Fatalf("set var = %v, want 12345", v)
	}
}

func setMinimalSolverEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SOLVER_DB_URL", "postgres://localhost/solver")
	t.Setenv("INDEXER_API_BASE_URL", "http://localhost:3000")
	t.Setenv("HUB_RPC_URL", "http://localhost:8545")
	t.Setenv("HUB_POOL_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("HUB_SIGNER_PRIVATE_KEY_HEX", "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	t.Setenv("TRON_GRPC_URL", "grpc.example:50051")
	t.Setenv("TRON_PRIVATE_KEY_HEX", "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
}

func TestLoadSolverMinimal(t *testing.T) {
	setMinimalSolverEnv(t)
	cfg, err := LoadSolver()
	if err != nil {
		t.Fatalf("LoadSolver: %v", err)
	}
	if cfg.Hub.TxMode != HubTxModeEOA {
		t.Fatalf("default tx mode = %q, want eoa", cfg.Hub.TxMode)
	}
	if cfg.Tron.Mode != TronModeGRPC {
		t.Fatalf("default tron mode = %q, want grpc", cfg.Tron.Mode)
	}
	if cfg.Jobs.InstanceID == "" {
		t.Fatalf("instance id not defaulted")
	}
	if len(cfg.Tron.PrivateKeysHex) != 1 {
		t.Fatalf("private keys = %d, want 1", len(cfg.Tron.PrivateKeysHex))
	}
}

func TestLoadSolverParsesPolicyCapsAndSelectors(t *testing.T) {
	setMinimalSolverEnv(t)
	t.Setenv("SOLVER_MAX_TRX_TRANSFER_SUN", "5000000")
	t.Setenv("SOLVER_TRIGGER_SELECTOR_DENYLIST", "0xdeadbeef,0xaaaaaaaa")
	cfg, err := LoadSolver()
	if err != nil {
		t.Fatalf("LoadSolver: %v", err)
	}
	if cfg.Policy.MaxTRXTransferSun == nil || *cfg.Policy.MaxTRXTransferSun != 5_000_000 {
		t.Fatalf("MaxTRXTransferSun = %v, want 5000000", cfg.Policy.MaxTRXTransferSun)
	}
	if cfg.Policy.MaxUSDTTransferAmount != nil {
		t.Fatalf("MaxUSDTTransferAmount should be nil when unset")
	}
	if len(cfg.Policy.TriggerSelectorDenylist) != 2 {
		t.Fatalf("selector denylist = %v", cfg.Policy.TriggerSelectorDenylist)
	}
}

func TestLoadSolverMissingRequiredFails(t *testing.T) {
	setMinimalSolverEnv(t)
	t.Setenv("SOLVER_DB_URL", "")
	if _, err := LoadSolver(); err == nil {
		t.Fatalf("expected config error for missing SOLVER_DB_URL")
	}
}

func TestLoadSolverSafe4337RequiresBundlers(t *testing.T) {
	setMinimalSolverEnv(t)
	t.Setenv("HUB_TX_MODE", "safe4337")
	if _, err := LoadSolver(); err == nil {
		t.Fatalf("expected config error for safe4337 without entrypoint/bundlers")
	}
	t.Setenv("HUB_ENTRYPOINT_ADDRESS", "0x2222222222222222222222222222222222222222")
	t.Setenv("HUB_SAFE_4337_MODULE_ADDRESS", "0x3333333333333333333333333333333333333333")
	t.Setenv("HUB_BUNDLER_URLS", "http://localhost:4337")
	if _, err := LoadSolver(); err != nil {
		t.Fatalf("LoadSolver safe4337: %v", err)
	}
}

func TestLoadSolverRentalProvidersJSON(t *testing.T) {
	setMinimalSolverEnv(t)
	t.Setenv("TRON_ENERGY_RENTAL_APIS_JSON", `[{"name":"feee","url":"https://feee.io/order","method":"POST"}]`)
	cfg, err := LoadSolver()
	if err != nil {
		t.Fatalf("LoadSolver: %v", err)
	}
	if len(cfg.Tron.EnergyRentalProviders) != 1 || cfg.Tron.EnergyRentalProviders[0].Name != "feee" {
		t.Fatalf("providers = %+v", cfg.Tron.EnergyRentalProviders)
	}
}
