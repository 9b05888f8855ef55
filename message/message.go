// Package message defines the envelope exchanged between client and server.
//
// Every call is one Request and one Response. Parameters and the result are carried
// as already-encoded JSON values so the envelope can be decoded before the operation's
// types are known.
package message

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/robert-cronin/kvrpc/errors"
)

// HeaderRequestID carries the request ID on every HTTP call. It is the only
// place the ID travels for GET calls, which have no body.
const HeaderRequestID = "X-Request-Id"

// Request carries one call.
//
//   - Method has the form "Service.Operation", e.g. "AddressService.List".
//   - Params holds one JSON value per operation parameter; an absent optional is null.
type Request struct {
	ID     uint32            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`

	// Header holds transport metadata (HTTP headers on the server, headers to send
	// on the client). It is not part of the encoded envelope.
	Header map[string]string `json:"-"`
}

// Response carries the result of one call. Exactly one of Result and Error is set.
type Response struct {
	ID     uint32          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *errors.Error   `json:"error,omitempty"`
}

// StatusCode is the HTTP status the response is sent with. An error whose code
// is not a 4xx or 5xx status is sent as 500.
func (r *Response) StatusCode() int {
	if r.Error == nil {
		return http.StatusOK
	}
	if !errors.ValidCode(r.Error.Code) {
		return http.StatusInternalServerError
	}
	return int(r.Error.Code)
}

// ErrorResponse builds a failed response for request id.
func ErrorResponse(id uint32, err *errors.Error) *Response {
	return &Response{ID: id, Error: err}
}

// ServiceMethod joins a service and operation name.
func ServiceMethod(service, op string) string {
	return service + "." + op
}

// SplitServiceMethod splits "Service.Operation". ok is false when the format is wrong.
func SplitServiceMethod(m string) (service, op string, ok bool) {
	service, op, ok = strings.Cut(m, ".")
	if !ok || service == "" || op == "" || strings.Contains(op, ".") {
		return "", "", false
	}
	return service, op, true
}
