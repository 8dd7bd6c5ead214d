package modules

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"lienledger/native/bank"
	nativecommon "lienledger/native/common"
	"lienledger/native/lien"
)

func TestWrapErrorMapsPausedToInvalidState(t *testing.T) {
	err := fmt.Errorf("%w: %w", lien.ErrModulePaused, nativecommon.ErrModulePaused)
	wrapped := WrapError(err)
	if wrapped.HTTPStatus != http.StatusConflict || wrapped.Code != CodeInvalidState {
		t.Fatalf("unexpected mapping %+v", wrapped)
	}
	data, ok := wrapped.Data.(ErrorData)
	if !ok || data.Code != "MODULE_PAUSED" || data.Kind != lien.KindInvalidState.String() {
		t.Fatalf("unexpected error data %+v", wrapped.Data)
	}
	if !errors.Is(wrapped, nativecommon.ErrModulePaused) {
		t.Fatalf("mapped error must keep the pause cause")
	}
}

func TestWrapErrorFallsBackByCause(t *testing.T) {
	if got := WrapError(fmt.Errorf("transfer: %w", bank.ErrInsufficientBalance)); got.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", got.HTTPStatus)
	}
	if got := WrapError(errors.New("disk on fire")); got.HTTPStatus != http.StatusInternalServerError || got.Code != CodeLedgerFailure {
		t.Fatalf("unexpected fallback %+v", got)
	}
	if WrapError(nil) != nil {
		t.Fatalf("nil errors map to nil")
	}
}
