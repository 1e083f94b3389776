package cmn_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/catzilla-go/catzilla/cmn"
)

func TestErrorKindAndStatus(t *testing.T) {
	cases := []struct {
		err    error
		kind   cmn.Kind
		status int
	}{
		{cmn.ErrInput("bad header"), cmn.KindInput, http.StatusBadRequest},
		{cmn.ErrPolicy("blocked extension"), cmn.KindPolicy, http.StatusForbidden},
		{cmn.ErrPolicyStatus(http.StatusRequestEntityTooLarge, "too big"), cmn.KindPolicy, http.StatusRequestEntityTooLarge},
		{cmn.ErrResource("queue saturated"), cmn.KindResource, http.StatusInternalServerError},
		{cmn.ErrIO(errors.New("enoent"), "stat failed"), cmn.KindIO, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		e, ok := cmn.AsError(tc.err)
		if !ok {
			t.Fatalf("AsError failed for %v", tc.err)
		}
		if e.Kind() != tc.kind {
			t.Errorf("expected kind %v, got %v", tc.kind, e.Kind())
		}
		if e.Status() != tc.status {
			t.Errorf("expected status %d, got %d", tc.status, e.Status())
		}
	}
}

func TestErrIOWrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := cmn.ErrIO(cause, "write failed")
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped error to unwrap to cause")
	}
}
