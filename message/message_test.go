package message

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/robert-cronin/kvrpc/errors"
)

func TestRequestEnvelope(t *testing.T) {
	req := &Request{
		ID:     7,
		Method: "AddressService.Add",
		Params: []json.RawMessage{json.RawMessage(`{"a":1,"b":2}`), json.RawMessage(`null`)},
		Header: map[string]string{"X-Trace": "abc"},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	if string(data) != `{"id":7,"method":"AddressService.Add","params":[{"a":1,"b":2},null]}` {
		t.Fatalf("unexpected envelope: %s", data)
	}
}

func TestResponseStatusCode(t *testing.T) {
	ok := &Response{ID: 1, Result: json.RawMessage(`3`)}
	if ok.StatusCode() != http.StatusOK {
		t.Fatalf("expect 200, got %d", ok.StatusCode())
	}

	failed := ErrorResponse(1, errors.BadRequest("svc", "bad"))
	if failed.StatusCode() != http.StatusBadRequest {
		t.Fatalf("expect 400, got %d", failed.StatusCode())
	}

	for _, code := range []int32{0, 42, 200, 600} {
		odd := ErrorResponse(1, &errors.Error{ID: "svc", Code: code})
		if odd.StatusCode() != http.StatusInternalServerError {
			t.Fatalf("code %d: expect 500, got %d", code, odd.StatusCode())
		}
	}
}

func TestSplitServiceMethod(t *testing.T) {
	service, op, ok := SplitServiceMethod(ServiceMethod("Arith", "Add"))
	if !ok || service != "Arith" || op != "Add" {
		t.Fatalf("unexpected split: %q %q %v", service, op, ok)
	}
	for _, bad := range []string{"Arith", ".Add", "Arith.", "a.b.c"} {
		if _, _, ok := SplitServiceMethod(bad); ok {
			t.Errorf("expect %q to be rejected", bad)
		}
	}
}
