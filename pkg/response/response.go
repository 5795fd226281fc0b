package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"prediction-trade-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// JSON-RPC 2.0 protocol error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeApplication covers application-level failures; the stable
	// error_code from pkg/apperror rides in the error's data field.
	CodeApplication = -32000
)

// Request is an incoming JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is the JSON-RPC 2.0 reply envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorData carries the gateway's stable error code alongside the
// human-readable message.
type ErrorData struct {
	ErrorCode string `json:"error_code"`
}

// Result builds a success response.
func Result(id json.RawMessage, result interface{}) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// Error builds an error response from any error. *apperror.AppError values
// keep their stable code in the data field; anything else becomes an
// internal error without leaking detail.
func Error(id json.RawMessage, err error) Response {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return Response{
			JSONRPC: "2.0",
			ID:      id,
			Error: &RPCError{
				Code:    CodeApplication,
				Message: appErr.Message,
				Data:    ErrorData{ErrorCode: appErr.Code},
			},
		}
	}
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    CodeInternalError,
			Message: "Internal server error",
			Data:    ErrorData{ErrorCode: "SYS_001"},
		},
	}
}

// ProtocolError builds a framing-level error response (parse, bad request,
// unknown method, bad params).
func ProtocolError(id json.RawMessage, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// HTTPError writes an error outside the JSON-RPC envelope. Used by
// middleware that rejects a request before the RPC body is parsed
// (authentication, rate limiting, body size).
func HTTPError(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, gin.H{
			"error_code": appErr.Code,
			"message":    appErr.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error_code": "SYS_001",
		"message":    "Internal server error",
	})
}
