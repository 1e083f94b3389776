package cmn_test

import (
	"testing"

	"github.com/catzilla-go/catzilla/cmn"
)

func TestGenTraceIDUnique(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := cmn.GenTraceID()
		if seen[id] {
			t.Fatalf("duplicate trace id %q after %d generations", id, i)
		}
		seen[id] = true
	}
}

func TestNewTaskIDMonotonicUnderSingleProducer(t *testing.T) {
	var prev cmn.TaskID
	for i := 0; i < 100; i++ {
		id := cmn.NewTaskID()
		if i > 0 && id <= prev {
			t.Fatalf("task id not monotonic: prev=%s next=%s", prev, id)
		}
		prev = id
	}
}

func TestTaskIDStringIsFixedWidthHex(t *testing.T) {
	id := cmn.NewTaskID()
	s := id.String()
	if len(s) != 16 {
		t.Fatalf("expected 16 hex chars, got %q (%d)", s, len(s))
	}
}
