// Copyright 2025 Certen Protocol

package runner

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsFatalOnWrappedFatal(t *testing.T) {
	base := fatal(errors.New("tron_tx_failed: REVERT"))
	if !isFatal(base) {
		t.Fatalf("direct fatal error not detected")
	}
	wrapped := fmt.Errorf("runner: job=7: %w", base)
	if !isFatal(wrapped) {
		t.Fatalf("fatal error lost through %%w wrapping")
	}
}

func TestIsFatalFalseForPlainErrors(t *testing.T) {
	if isFatal(errors.New("connection refused")) {
		t.Fatalf("plain error misclassified as fatal")
	}
	if isFatal(nil) {
		t.Fatalf("nil misclassified as fatal")
	}
}

func TestFatalPreservesMessage(t *testing.T) {
	err := fatal(fmt.Errorf("job=%d claim_intent fatal: %s", 3, "AlreadyClaimed"))
	if err.Error() != "job=3 claim_intent fatal: AlreadyClaimed" {
		t.Fatalf("message = %q", err.Error())
	}
}
