package apperr

// Outcome is the tagged result envelope: exactly one of Result or Error is set.
type Outcome struct {
	Result any           `json:"result,omitempty"`
	Error  *OutcomeError `json:"error,omitempty"`
}

type OutcomeError struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

func Ok(result any) Outcome {
	return Outcome{Result: result}
}

// Fail builds the error side of the envelope. Authentication failures and
// unclassified internal errors are reported without their cause.
func Fail(err error) Outcome {
	e := From(err)
	msg := e.Message
	switch {
	case e.Kind == KindAuthentication:
		msg = "authentication failed"
	case e.Code == CodeInternal:
		msg = "internal error"
	case e.cause != nil && e.Kind != KindInfrastructure:
		msg = e.Message + ": " + e.cause.Error()
	}
	return Outcome{Error: &OutcomeError{
		Code:            e.Code,
		Message:         msg,
		TransactionHash: e.TxHash,
	}}
}
