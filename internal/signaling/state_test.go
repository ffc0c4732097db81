package signaling

import "testing"

func TestOffererHappyPath(t *testing.T) {
	m := NewMachine()

	if s, err := m.Apply(OpSetLocal, SDPTypeOffer); err != nil || s != StateHaveLocalOffer {
		t.Fatalf("set-local offer: state=%v err=%v", s, err)
	}
	if s, err := m.Apply(OpSetRemote, SDPTypeAnswer); err != nil || s != StateStable {
		t.Fatalf("set-remote answer: state=%v err=%v", s, err)
	}
}

func TestAnswererHappyPath(t *testing.T) {
	m := NewMachine()

	if s, err := m.Apply(OpSetRemote, SDPTypeOffer); err != nil || s != StateHaveRemoteOffer {
		t.Fatalf("set-remote offer: state=%v err=%v", s, err)
	}
	if s, err := m.Apply(OpSetLocal, SDPTypeAnswer); err != nil || s != StateStable {
		t.Fatalf("set-local answer: state=%v err=%v", s, err)
	}
}

func TestProvisionalAnswerPath(t *testing.T) {
	m := NewMachine()
	m.Apply(OpSetLocal, SDPTypeOffer)

	if s, err := m.Apply(OpSetRemote, SDPTypePranswer); err != nil || s != StateHaveRemotePranswer {
		t.Fatalf("set-remote pranswer: state=%v err=%v", s, err)
	}
	if s, err := m.Apply(OpSetRemote, SDPTypeAnswer); err != nil || s != StateStable {
		t.Fatalf("set-remote answer: state=%v err=%v", s, err)
	}
}

func TestReapplyLocalOffer(t *testing.T) {
	m := NewMachine()
	m.Apply(OpSetLocal, SDPTypeOffer)
	if s, err := m.Apply(OpSetLocal, SDPTypeOffer); err != nil || s != StateHaveLocalOffer {
		t.Fatalf("reapply offer: state=%v err=%v", s, err)
	}
}

func TestIllegalTransitionReturnsTypedError(t *testing.T) {
	m := NewMachine()
	_, err := m.Apply(OpSetLocal, SDPTypeAnswer) // no offer outstanding
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*TransitionError); !ok {
		t.Fatalf("got %T, want *TransitionError", err)
	}
	if m.State() != StateStable {
		t.Fatalf("state changed after a rejected transition: %v", m.State())
	}
}

func TestRollbackFromStableIsTypedError(t *testing.T) {
	m := NewMachine()
	_, err := m.Apply(OpRollback, 0)
	if err != ErrCannotRollback {
		t.Fatalf("got %v, want ErrCannotRollback", err)
	}
}

func TestRollbackFromNonStableReturnsToStable(t *testing.T) {
	m := NewMachine()
	m.Apply(OpSetLocal, SDPTypeOffer)
	if s, err := m.Apply(OpRollback, 0); err != nil || s != StateStable {
		t.Fatalf("rollback: state=%v err=%v", s, err)
	}
}

func TestClosedRejectsAllTransitions(t *testing.T) {
	m := NewMachine()
	m.Close()
	if _, err := m.Apply(OpSetLocal, SDPTypeOffer); err == nil {
		t.Fatal("expected an error after Close")
	}
}
