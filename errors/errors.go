// Package errors provides the error type carried in kvrpc responses.
//
// An Error travels inside the response envelope and its Code doubles as the HTTP
// status of the reply, so a client can rebuild the exact failure the server saw.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

// Error IDs used by the framework itself. Implementations may use any other ID.
const (
	IDServer    = "kvrpc.server"
	IDClient    = "kvrpc.client"
	IDTransport = "kvrpc.transport"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Error is an RPC failure with an HTTP status code.
type Error struct {
	ID     string `json:"id"`
	Code   int32  `json:"code"`
	Detail string `json:"detail"`
	Status string `json:"status"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %d %s: %s", e.ID, e.Code, e.Status, e.Detail)
}

// Is matches any *Error with the same code, or any *Error when the target code is 0.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == 0 || t.Code == e.Code
}

// New creates an Error. The status text is derived from code.
func New(id, detail string, code int32) *Error {
	return &Error{
		ID:     id,
		Code:   code,
		Detail: detail,
		Status: http.StatusText(int(code)),
	}
}

// Parse decodes an Error from its JSON form. Text that is not a JSON error becomes
// the detail of an internal server error.
func Parse(s string) *Error {
	e := new(Error)
	if err := json.Unmarshal([]byte(s), e); err != nil || e.Code == 0 {
		return InternalServerError(IDServer, s)
	}
	return e
}

// FromError converts any error to an *Error. Errors that already wrap an *Error
// keep it; everything else becomes an internal server error under id.
func FromError(id string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		if !ValidCode(e.Code) {
			return InternalServerError(e.ID, e.Detail)
		}
		return e
	}
	return InternalServerError(id, err.Error())
}

func BadRequest(id, detail string) *Error {
	return New(id, detail, http.StatusBadRequest)
}

func NotFound(id, detail string) *Error {
	return New(id, detail, http.StatusNotFound)
}

func RequestEntityTooLarge(id, detail string) *Error {
	return New(id, detail, http.StatusRequestEntityTooLarge)
}

func UnsupportedMediaType(id, detail string) *Error {
	return New(id, detail, http.StatusUnsupportedMediaType)
}

func TooManyRequests(id, detail string) *Error {
	return New(id, detail, http.StatusTooManyRequests)
}

func InternalServerError(id, detail string) *Error {
	return New(id, detail, http.StatusInternalServerError)
}

func ServiceUnavailable(id, detail string) *Error {
	return New(id, detail, http.StatusServiceUnavailable)
}

func GatewayTimeout(id, detail string) *Error {
	return New(id, detail, http.StatusGatewayTimeout)
}

// ValidCode reports whether code is an error status that can be sent as the reply status.
func ValidCode(code int32) bool {
	return code >= 400 && code <= 599
}

// Retryable reports whether a failure is transient: transport failures and timeouts.
func Retryable(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	switch e.Code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
