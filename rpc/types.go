// Package rpc exposes the arcade engine via a JSON-RPC 2.0 HTTP endpoint:
// transaction submission, receipts, and read-only views of ledger state.
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/vm"
	"github.com/tolelom/tolarcade/vm/modules/arcade"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData classifies engine failures so clients can branch without
// parsing Message.
type ErrorData struct {
	Kind     string            `json:"kind"`
	Code     string            `json:"code"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
	CodeEngineError    = -32001
	CodeNotFound       = -32004
)

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

// failResponse maps err onto the closest JSON-RPC error.
func failResponse(id any, err error) Response {
	var coded vm.Coded
	if errors.As(err, &coded) {
		resp := errResponse(id, CodeEngineError, err.Error())
		resp.Error.Data = &ErrorData{Kind: coded.ErrorKind(), Code: coded.ErrorCode()}
		var ae *arcade.Error
		if errors.As(err, &ae) {
			resp.Error.Data.Metadata = ae.Metadata
		}
		return resp
	}
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(id, CodeNotFound, err.Error())
	}
	return errResponse(id, CodeInternalError, err.Error())
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
