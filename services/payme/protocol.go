// Package payme implements the JSON-RPC merchant protocol. Each method is a typed
// request decoded from the envelope and dispatched to a Handler.
package payme

import (
	"context"
	"encoding/json"
)

const (
	MethodCheckPerformTransaction = "CheckPerformTransaction"
	MethodCreateTransaction       = "CreateTransaction"
	MethodPerformTransaction      = "PerformTransaction"
	MethodCancelTransaction       = "CancelTransaction"
	MethodCheckTransaction        = "CheckTransaction"
	MethodGetStatement            = "GetStatement"
)

// Envelope is the inbound JSON-RPC request.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response echoes the request id with either a result or an error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Account struct {
	BookingRef string `json:"booking_ref"`
}

// Request is implemented only by the method parameter types below.
type Request interface {
	method() string
}

type CheckPerformTransactionParams struct {
	Amount  int64   `json:"amount"`
	Account Account `json:"account"`
}

type CreateTransactionParams struct {
	ID      string  `json:"id"`
	Time    int64   `json:"time"`
	Amount  int64   `json:"amount"`
	Account Account `json:"account"`
}

type PerformTransactionParams struct {
	ID string `json:"id"`
}

type CancelTransactionParams struct {
	ID     string `json:"id"`
	Reason int    `json:"reason"`
}

type CheckTransactionParams struct {
	ID string `json:"id"`
}

type GetStatementParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

func (CheckPerformTransactionParams) method() string { return MethodCheckPerformTransaction }
func (CreateTransactionParams) method() string       { return MethodCreateTransaction }
func (PerformTransactionParams) method() string      { return MethodPerformTransaction }
func (CancelTransactionParams) method() string       { return MethodCancelTransaction }
func (CheckTransactionParams) method() string        { return MethodCheckTransaction }
func (GetStatementParams) method() string            { return MethodGetStatement }

type CheckPerformTransactionResult struct {
	Allow bool `json:"allow"`
}

type CreateTransactionResult struct {
	CreateTime  int64  `json:"create_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type PerformTransactionResult struct {
	Transaction string `json:"transaction"`
	PerformTime int64  `json:"perform_time"`
	State       int    `json:"state"`
}

type CancelTransactionResult struct {
	Transaction string `json:"transaction"`
	CancelTime  int64  `json:"cancel_time"`
	State       int    `json:"state"`
}

type CheckTransactionResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

type StatementEntry struct {
	ID          string  `json:"id"`
	Time        int64   `json:"time"`
	Amount      int64   `json:"amount"`
	Account     Account `json:"account"`
	CreateTime  int64   `json:"create_time"`
	PerformTime int64   `json:"perform_time"`
	CancelTime  int64   `json:"cancel_time"`
	Transaction string  `json:"transaction"`
	State       int     `json:"state"`
	Reason      *int    `json:"reason"`
}

type GetStatementResult struct {
	Transactions []StatementEntry `json:"transactions"`
}

type Handler interface {
	CheckPerformTransaction(ctx context.Context, p CheckPerformTransactionParams) (*CheckPerformTransactionResult, *Error)
	CreateTransaction(ctx context.Context, p CreateTransactionParams) (*CreateTransactionResult, *Error)
	PerformTransaction(ctx context.Context, p PerformTransactionParams) (*PerformTransactionResult, *Error)
	CancelTransaction(ctx context.Context, p CancelTransactionParams) (*CancelTransactionResult, *Error)
	CheckTransaction(ctx context.Context, p CheckTransactionParams) (*CheckTransactionResult, *Error)
	GetStatement(ctx context.Context, p GetStatementParams) (*GetStatementResult, *Error)
}

// DecodeRequest turns a method name and its raw params into a typed request.
func DecodeRequest(method string, params json.RawMessage) (Request, *Error) {
	var req Request
	switch method {
	case MethodCheckPerformTransaction:
		req = &CheckPerformTransactionParams{}
	case MethodCreateTransaction:
		req = &CreateTransactionParams{}
	case MethodPerformTransaction:
		req = &PerformTransactionParams{}
	case MethodCancelTransaction:
		req = &CancelTransactionParams{}
	case MethodCheckTransaction:
		req = &CheckTransactionParams{}
	case MethodGetStatement:
		req = &GetStatementParams{}
	default:
		return nil, errMethodNotFound(method)
	}
	if len(params) == 0 {
		return nil, errInvalidRequest("params")
	}
	if err := json.Unmarshal(params, req); err != nil {
		return nil, errInvalidRequest("params")
	}
	if perr := validate(req); perr != nil {
		return nil, perr
	}
	return req, nil
}

func validate(req Request) *Error {
	switch r := req.(type) {
	case *CheckPerformTransactionParams:
		if r.Account.BookingRef == "" {
			return errBookingNotFound()
		}
	case *CreateTransactionParams:
		if r.ID == "" {
			return errInvalidRequest("id")
		}
		if r.Account.BookingRef == "" {
			return errBookingNotFound()
		}
	case *PerformTransactionParams:
		if r.ID == "" {
			return errInvalidRequest("id")
		}
	case *CancelTransactionParams:
		if r.ID == "" {
			return errInvalidRequest("id")
		}
	case *CheckTransactionParams:
		if r.ID == "" {
			return errInvalidRequest("id")
		}
	case *GetStatementParams:
		if r.To < r.From {
			return errInvalidRequest("to")
		}
	}
	return nil
}

// Dispatch routes a decoded request to the matching handler method.
func Dispatch(ctx context.Context, h Handler, req Request) (any, *Error) {
	switch r := req.(type) {
	case *CheckPerformTransactionParams:
		return unwrap(h.CheckPerformTransaction(ctx, *r))
	case *CreateTransactionParams:
		return unwrap(h.CreateTransaction(ctx, *r))
	case *PerformTransactionParams:
		return unwrap(h.PerformTransaction(ctx, *r))
	case *CancelTransactionParams:
		return unwrap(h.CancelTransaction(ctx, *r))
	case *CheckTransactionParams:
		return unwrap(h.CheckTransaction(ctx, *r))
	case *GetStatementParams:
		return unwrap(h.GetStatement(ctx, *r))
	default:
		return nil, errMethodNotFound(req.method())
	}
}

// unwrap keeps a typed nil result from becoming a non-nil any.
func unwrap[T any](res *T, perr *Error) (any, *Error) {
	if perr != nil || res == nil {
		return nil, perr
	}
	return res, nil
}
