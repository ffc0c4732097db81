package ice

import "github.com/pkg/errors"

var (
	// ErrNoCandidates describes a checklist with no usable candidate pairs
	// left (every pair failed). No function in this package returns it: the
	// Checklist never moves to ChecklistFailed on its own.
	ErrNoCandidates = errors.New("ice: no usable candidate pairs")

	errSTUNInvalidMessage = errors.New("ice: STUN message is malformed")
)
