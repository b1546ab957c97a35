// Package apperr holds the error taxonomy shared by every component and the
// tagged outcome envelope returned across the service boundary.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

type Kind int

const (
	KindInput Kind = iota + 1
	KindPrecondition
	KindInfrastructure
	KindChainExecution
	KindAuthentication
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindPrecondition:
		return "precondition"
	case KindInfrastructure:
		return "infrastructure"
	case KindChainExecution:
		return "chain_execution"
	case KindAuthentication:
		return "authentication"
	default:
		return "unknown"
	}
}

// Stable error codes. Clients match on these, never on messages.
const (
	CodeInvalidRequest            = "INVALID_REQUEST"
	CodeInvalidAddress            = "INVALID_ADDRESS"
	CodeUnsupportedChain          = "UNSUPPORTED_CHAIN"
	CodeContractNotDeployed       = "CONTRACT_NOT_DEPLOYED"
	CodeLengthMismatch            = "LENGTH_MISMATCH"
	CodeMissingProviderCredential = "MISSING_PROVIDER_CREDENTIAL"
	CodeMissingSecret             = "MISSING_SECRET"
	CodeWalletNotFound            = "WALLET_NOT_FOUND"
	CodeWalletExists              = "WALLET_ALREADY_EXISTS"
	CodeWalletDataIncomplete      = "WALLET_DATA_INCOMPLETE"
	CodeAlreadyVoted              = "ALREADY_VOTED"
	CodeAlreadyExecuted           = "ALREADY_EXECUTED"
	CodeProposalExpired           = "PROPOSAL_EXPIRED"
	CodeNotApproved               = "PROPOSAL_NOT_APPROVED"
	CodeInsufficientVotingPower   = "INSUFFICIENT_VOTING_POWER"
	CodeInsufficientFunderBalance = "INSUFFICIENT_FUNDER_BALANCE"
	CodeRPCUnavailable            = "RPC_UNAVAILABLE"
	CodeStoreUnavailable          = "STORE_UNAVAILABLE"
	CodeInternal                  = "INTERNAL"
	CodeTransactionReverted       = "TRANSACTION_REVERTED"
	CodeTransactionFailed         = "TRANSACTION_FAILED"
	CodeExpectedEventMissing      = "EXPECTED_EVENT_MISSING"
	CodeAuthenticationFailed      = "AUTHENTICATION_FAILED"
)

// Error is a classified failure. TxHash is set when a transaction reached the
// mempool before the failure so callers can follow up on it.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	TxHash  string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on Code so sentinel values can be compared with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithTx returns a copy of e carrying the transaction hash.
func (e *Error) WithTx(hash string) *Error {
	cp := *e
	cp.TxHash = hash
	return &cp
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(cause error, kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, cause: cause}
}

func Input(code, format string, args ...any) *Error {
	return Newf(KindInput, code, format, args...)
}

func Precondition(code, format string, args ...any) *Error {
	return Newf(KindPrecondition, code, format, args...)
}

func Infrastructure(cause error, code, msg string) *Error {
	return Wrap(cause, KindInfrastructure, code, msg)
}

// From extracts the classified error in err's chain. Unclassified errors are
// reported as internal infrastructure failures.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, KindInfrastructure, CodeInternal, "internal error")
}

// CodeOf returns the code of the classified error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps a classified error to a response status.
func HTTPStatus(e *Error) int {
	switch e.Kind {
	case KindInput, KindPrecondition, KindChainExecution:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusInternalServerError
	case KindInfrastructure:
		switch e.Code {
		case CodeRPCUnavailable, CodeStoreUnavailable:
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
