package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("redis down")
	err := Wrap(internal, "otp lookup failed")

	if err.Error() != "otp lookup failed: redis down" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
	if !stdErrors.Is(err, internal) {
		t.Fatal("expected wrapped error to unwrap to the internal cause")
	}
}

func TestWithInternalCopies(t *testing.T) {
	with := ErrPlanLocked.WithInternal(stdErrors.New("held by user 7"))

	if with == ErrPlanLocked {
		t.Fatal("expected WithInternal to return a copy")
	}
	if ErrPlanLocked.Internal != nil {
		t.Fatal("expected sentinel to remain unchanged")
	}
	if with.StatusCode != http.StatusConflict {
		t.Fatalf("unexpected status: %d", with.StatusCode)
	}
}

func TestFromError(t *testing.T) {
	if out := FromError(ErrOTPInvalid); out != ErrOTPInvalid {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}

	if FromError(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
}

func TestNewBadRequestAndNotFound(t *testing.T) {
	err := NewBadRequest("plan id is required")
	if err.Code != ErrBadRequest.Code || err.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected bad request error: %+v", err)
	}

	nf := NewNotFound("construction plan not found")
	if nf.Code != ErrNotFound.Code || nf.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected not found error: %+v", nf)
	}
	if nf.Message != "construction plan not found" {
		t.Fatalf("unexpected message: %s", nf.Message)
	}
}
