package modules

import (
	"errors"
	"net/http"

	"lienledger/native/bank"
	"lienledger/native/lien"
	"lienledger/native/vault"
)

const (
	codeInvalidParams = -32602
	codeServerError   = -32000

	CodeInvalidState  = -32031
	CodeInvalidInput  = -32032
	CodeLoanState     = -32033
	CodeUnauthorized  = -32034
	CodeLedgerFailure = -32035
)

type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
	// Err is the ledger failure the error was mapped from, if any.
	Err error
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ModuleError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorData is attached to ledger failures so clients can branch on the
// stable code rather than the message.
type ErrorData struct {
	Kind string `json:"kind"`
	Code string `json:"code,omitempty"`
}

func invalidParams(message string) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: message}
}

// WrapError maps a ledger or collaborator failure onto a JSON-RPC error.
func WrapError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	var ledgerErr *lien.Error
	if errors.As(err, &ledgerErr) {
		data := ErrorData{Kind: ledgerErr.Kind.String(), Code: ledgerErr.Code}
		switch ledgerErr.Kind {
		case lien.KindInvalidState:
			return &ModuleError{HTTPStatus: http.StatusConflict, Code: CodeInvalidState, Message: err.Error(), Data: data, Err: err}
		case lien.KindInvalidInput:
			return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: CodeInvalidInput, Message: err.Error(), Data: data, Err: err}
		case lien.KindInvalidLoanState:
			return &ModuleError{HTTPStatus: http.StatusUnprocessableEntity, Code: CodeLoanState, Message: err.Error(), Data: data, Err: err}
		case lien.KindUnauthorized:
			return &ModuleError{HTTPStatus: http.StatusForbidden, Code: CodeUnauthorized, Message: err.Error(), Data: data, Err: err}
		}
	}
	switch {
	case errors.Is(err, bank.ErrInsufficientBalance), errors.Is(err, bank.ErrInvalidAmount):
		return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: CodeInvalidInput, Message: err.Error(), Err: err}
	case errors.Is(err, vault.ErrUnknownVault):
		return &ModuleError{HTTPStatus: http.StatusNotFound, Code: CodeInvalidState, Message: err.Error(), Err: err}
	}
	return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: CodeLedgerFailure, Message: err.Error(), Err: err}
}
