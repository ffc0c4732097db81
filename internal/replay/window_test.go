package replay

import "testing"

func TestRejectsDuplicateAfterAccept(t *testing.T) {
	w := NewWindow(64)

	if !w.Check(10) {
		t.Fatal("expected first check of seq 10 to pass")
	}
	w.Accept(10)

	if w.Check(10) {
		t.Fatal("expected replayed seq 10 to be rejected")
	}
}

func TestRejectsBeyondTrailingEdge(t *testing.T) {
	w := NewWindow(64)
	w.Accept(1000)

	if w.Check(1000 - 64) {
		t.Fatal("expected seq at trailing edge to be rejected")
	}
	if !w.Check(1000 - 63) {
		t.Fatal("expected seq just inside window to pass")
	}
}

func TestWindowSlidesForward(t *testing.T) {
	w := NewWindow(64)
	w.Accept(5)
	w.Accept(200)

	// 5 is now far outside the window relative to 200.
	if w.Check(5) {
		t.Fatal("expected old seq to be rejected after window slid forward")
	}
	if !w.Check(199) {
		t.Fatal("expected seq just below new max to pass")
	}
}

func TestOutOfOrderAcceptWithinWindow(t *testing.T) {
	w := NewWindow(64)
	w.Accept(100)
	w.Accept(90)

	if w.Check(90) {
		t.Fatal("expected seq 90 to be rejected as already seen")
	}
	if !w.Check(91) {
		t.Fatal("expected seq 91 (never seen) to pass")
	}
}

func TestCheckDoesNotMutate(t *testing.T) {
	w := NewWindow(64)
	w.Accept(10)

	// Checking repeatedly without accepting must not change the verdict.
	for i := 0; i < 3; i++ {
		if w.Check(11) != true {
			t.Fatal("repeated Check should be idempotent")
		}
	}
}
