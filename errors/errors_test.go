package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewSetsStatus(t *testing.T) {
	e := BadRequest("svc", "bad param")
	if e.Code != http.StatusBadRequest {
		t.Fatalf("expect code 400, got %d", e.Code)
	}
	if e.Status != "Bad Request" {
		t.Fatalf("expect status 'Bad Request', got %q", e.Status)
	}
}

func TestParse(t *testing.T) {
	orig := InternalServerError("svc", "boom")
	b, err := json.Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}
	got := Parse(string(b))
	if *got != *orig {
		t.Fatalf("expect %+v, got %+v", orig, got)
	}

	plain := Parse("not json")
	if plain.Code != http.StatusInternalServerError || plain.Detail != "not json" {
		t.Fatalf("unexpected parse of plain text: %+v", plain)
	}
}

func TestFromErrorKeepsWrapped(t *testing.T) {
	inner := NotFound("svc", "missing")
	wrapped := fmt.Errorf("lookup: %w", inner)

	if got := FromError(IDServer, wrapped); got != inner {
		t.Fatalf("expect wrapped error to be returned, got %+v", got)
	}
	if got := FromError(IDServer, stderrors.New("x")); got.Code != http.StatusInternalServerError {
		t.Fatalf("expect 500 for plain errors, got %d", got.Code)
	}
	if got := FromError(IDServer, &Error{ID: "svc", Code: 42, Detail: "odd"}); got.Code != http.StatusInternalServerError || got.Detail != "odd" {
		t.Fatalf("expect 500 for an invalid code, got %+v", got)
	}
	if FromError(IDServer, nil) != nil {
		t.Fatal("expect nil for nil error")
	}
}

func TestIsAndRetryable(t *testing.T) {
	err := fmt.Errorf("call: %w", ServiceUnavailable(IDTransport, "refused"))
	if !stderrors.Is(err, &Error{}) {
		t.Fatal("expect errors.Is to match any *Error")
	}
	if !stderrors.Is(err, &Error{Code: http.StatusServiceUnavailable}) {
		t.Fatal("expect errors.Is to match by code")
	}
	if stderrors.Is(err, &Error{Code: http.StatusBadRequest}) {
		t.Fatal("expect errors.Is to reject a different code")
	}
	if !Retryable(err) {
		t.Fatal("expect 503 to be retryable")
	}
	if Retryable(BadRequest("svc", "x")) {
		t.Fatal("expect 400 not to be retryable")
	}
}
