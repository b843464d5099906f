package payme

import "fmt"

// Message is the localized error text. Only English is produced.
type Message struct {
	En string `json:"en"`
}

// Error is a JSON-RPC error object in the merchant protocol's shape.
type Error struct {
	Code    int     `json:"code"`
	Message Message `json:"message"`
	Data    string  `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("payme error %d: %s", e.Code, e.Message.En)
}

const (
	CodeInvalidAmount         = -31001
	CodeTransactionNotFound   = -31003
	CodeUnableToCancel        = -31007
	CodeUnableToPerform       = -31008
	CodeBookingNotFound       = -31050
	CodeBookingNotPayable     = -31051
	CodeAnotherTransaction    = -31052
	CodeConflictingData       = -31060
	CodeInternal              = -32400
	CodeInsufficientPrivilege = -32504
	CodeInvalidRequest        = -32600
	CodeMethodNotFound        = -32601
	CodeParseError            = -32700
)

// Cancel reasons sent back to the provider.
const (
	ReasonExecutionFailed = 3
	ReasonTimeout         = 4
)

func newError(code int, msg, data string) *Error {
	return &Error{Code: code, Message: Message{En: msg}, Data: data}
}

func errInvalidAmount() *Error {
	return newError(CodeInvalidAmount, "Invalid amount", "amount")
}

func errTransactionNotFound() *Error {
	return newError(CodeTransactionNotFound, "Transaction not found", "id")
}

func errUnableToCancel() *Error {
	return newError(CodeUnableToCancel, "The booking is already completed; the transaction cannot be cancelled", "id")
}

func errUnableToPerform(reason string) *Error {
	return newError(CodeUnableToPerform, reason, "id")
}

func errBookingNotFound() *Error {
	return newError(CodeBookingNotFound, "Booking not found", "booking_ref")
}

func errBookingNotPayable(reason string) *Error {
	return newError(CodeBookingNotPayable, reason, "booking_ref")
}

func errAnotherTransaction() *Error {
	return newError(CodeAnotherTransaction, "The booking is being paid by another transaction", "booking_ref")
}

func errConflictingData() *Error {
	return newError(CodeConflictingData, "A transaction with this id exists with different data", "id")
}

func errInternal() *Error {
	return newError(CodeInternal, "Internal error", "")
}

func errInsufficientPrivilege() *Error {
	return newError(CodeInsufficientPrivilege, "Insufficient privileges to perform this method", "")
}

func errInvalidRequest(data string) *Error {
	return newError(CodeInvalidRequest, "Invalid JSON-RPC request", data)
}

func errMethodNotFound(method string) *Error {
	return newError(CodeMethodNotFound, "Method not found", method)
}

func errParse() *Error {
	return newError(CodeParseError, "Parse error", "")
}
