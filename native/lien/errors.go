package lien

import (
	"errors"
)

// Kind classifies a rejected ledger operation so callers can decide between
// retrying, correcting input, switching flows or escalating.
type Kind uint8

const (
	KindInvalidState Kind = iota + 1
	KindInvalidInput
	KindInvalidLoanState
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindInvalidState:
		return "invalid state"
	case KindInvalidInput:
		return "invalid input"
	case KindInvalidLoanState:
		return "invalid loan state"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Error is the typed outcome of every rejected ledger operation.
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string {
	if e == nil {
		return "lien: <nil>"
	}
	if e.Code == "" {
		return "lien: " + e.Kind.String()
	}
	return "lien: " + e.Kind.String() + ": " + e.Code
}

// Is matches another *Error with the same kind and code. A target without a
// code matches any error of its kind, so errors.Is(err, ErrInvalidState)
// holds for every invalid state failure.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func invalidState(code string) *Error { return &Error{Kind: KindInvalidState, Code: code} }
func invalidInput(code string) *Error { return &Error{Kind: KindInvalidInput, Code: code} }
func unauthorized(code string) *Error { return &Error{Kind: KindUnauthorized, Code: code} }

var (
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrInvalidLoanState = &Error{Kind: KindInvalidLoanState, Code: "INVALID_LOAN_STATE"}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}

	ErrInvalidHash          = invalidState("INVALID_HASH")
	ErrCollateralAuction    = invalidState("COLLATERAL_AUCTION")
	ErrInvalidLienID        = invalidState("INVALID_LIEN_ID")
	ErrPublicVaultRecipient = invalidState("PUBLIC_VAULT_RECIPIENT")
	ErrLienExists           = invalidState("LIEN_EXISTS")
	ErrMaxLiens             = invalidState("MAX_LIENS")
	ErrNoActiveAuction      = invalidState("NO_ACTIVE_AUCTION")
	ErrInvalidAuctionStack  = invalidState("INVALID_AUCTION_STACK")
	ErrInvalidRefinance     = invalidState("INVALID_REFINANCE")
	ErrReentrantCall        = invalidState("REENTRANT_CALL")
	ErrModulePaused         = invalidState("MODULE_PAUSED")

	ErrAmountZero                   = invalidInput("AMOUNT_ZERO")
	ErrMinDurationNotMet            = invalidInput("MIN_DURATION_NOT_MET")
	ErrInvalidLiquidationInitialAsk = invalidInput("INVALID_LIQUIDATION_INITIAL_ASK")
	ErrInvalidFeeFraction           = invalidInput("INVALID_FEE_FRACTION")
	ErrUnsupportedFile              = invalidInput("UNSUPPORTED_FILE")
	ErrMalformedFile                = invalidInput("MALFORMED_FILE")
	ErrNarrowing                    = invalidInput("NARROWING_OVERFLOW")
	ErrMathOverflow                 = invalidInput("MATH_OVERFLOW")
	ErrDivisionByZero               = invalidInput("DIVISION_BY_ZERO")
	ErrTimestampBeforeLast          = invalidInput("TIMESTAMP_BEFORE_LAST")
	ErrInvalidTerms                 = invalidInput("INVALID_TERMS")
	ErrInvalidRecipient             = invalidInput("INVALID_RECIPIENT")
	ErrInvalidAuctionWindow         = invalidInput("INVALID_AUCTION_WINDOW")
	ErrInvalidBuyoutDetails         = invalidInput("INVALID_BUYOUT_DETAILS")
	ErrInvalidToken                 = invalidInput("INVALID_TOKEN")
	ErrNegativeAmount               = invalidInput("NEGATIVE_AMOUNT")
	ErrInvalidAuctionFloor          = invalidInput("INVALID_AUCTION_FLOOR")
	ErrExceedsMaxAmount             = invalidInput("EXCEEDS_MAX_AMOUNT")
	ErrExceedsMaxPotentialDebt      = invalidInput("EXCEEDS_MAX_POTENTIAL_DEBT")

	ErrNotLienOwner     = unauthorized("NOT_LIEN_OWNER")
	ErrNotClearingHouse = unauthorized("NOT_CLEARING_HOUSE")
	ErrNotAuthorized    = unauthorized("NOT_AUTHORIZED")

	errNilState = errors.New("lien engine: state not configured")
)

// IsKind reports whether err is a ledger error of the supplied kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	if !errors.As(err, &target) {
		return false
	}
	return target.Kind == kind
}

// KindOf returns the kind of a ledger error or zero when err is not one.
func KindOf(err error) Kind {
	var target *Error
	if !errors.As(err, &target) {
		return 0
	}
	return target.Kind
}
