package mission

import "net/http"

// Error codes surfaced to API callers. Validation and verification codes
// are retryable once the input or chain condition is fixed; forbidden is
// not.
const (
	CodeNotFound          = "not_found"
	CodeForbidden         = "forbidden"
	CodeWrongStatus       = "wrong_status"
	CodeWrongPaymentModel = "wrong_payment_model"
	CodeUnsupportedChain  = "unsupported_chain"
	CodeUnsupportedToken  = "unsupported_token"
	CodeDealFull          = "deal_full"
	CodeNoWallet          = "no_wallet"
	CodeAgentSuspended    = "agent_suspended"
	CodeTxReplayed        = "tx_replayed"
)

// Error is a settlement failure with an HTTP status and machine-readable
// code. State conflicts also carry the mission's current status so the
// caller can resynchronize.
type Error struct {
	Code          string
	Msg           string
	HTTP          int
	CurrentStatus string
}

func (e *Error) Error() string { return e.Msg }

func errNotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Msg: msg, HTTP: http.StatusNotFound}
}

func errForbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Msg: msg, HTTP: http.StatusForbidden}
}

func errValidation(code, msg string) *Error {
	return &Error{Code: code, Msg: msg, HTTP: http.StatusBadRequest}
}

func errConflict(currentStatus, msg string) *Error {
	return &Error{Code: CodeWrongStatus, Msg: msg, HTTP: http.StatusConflict, CurrentStatus: currentStatus}
}

func errReplay() *Error {
	return &Error{Code: CodeTxReplayed, Msg: "transaction hash already consumed by another payment", HTTP: http.StatusConflict}
}

// errVerify maps a verifier failure code to a retryable 400.
func errVerify(code string) *Error {
	msgs := map[string]string{
		"simulated_hash":             "transaction hash looks simulated; submit a real on-chain hash",
		"tx_not_found":               "transaction not found on chain",
		"tx_reverted":                "transaction reverted on chain",
		"wrong_recipient":            "transaction recipient does not match the expected address",
		"wrong_amount":               "transaction amount does not match the expected amount",
		"wrong_token":                "transaction token does not match the expected token",
		"insufficient_confirmations": "transaction does not have enough confirmations yet",
	}
	msg := msgs[code]
	if msg == "" {
		msg = "transaction verification failed"
	}
	return &Error{Code: code, Msg: msg, HTTP: http.StatusBadRequest}
}

func errRPC() *Error {
	return &Error{Code: "rpc_unavailable", Msg: "blockchain node unreachable; settlement refused", HTTP: http.StatusBadGateway}
}
