// Package replay implements a sliding-window anti-replay detector, shared by
// the DTLS record layer (epoch-scoped, 48-bit sequence space) and SRTP
// (per-SSRC, 31-bit packet-index space derived from ROC and sequence
// number). See RFC 6347 §4.1.2.6 and RFC 3711 §3.3.2.
package replay

// DefaultWindowSize is the window width W used unless a Config overrides it.
const DefaultWindowSize = 64

// Window is a sliding-window replay detector. A sequence number passes Check
// if it falls within the window and has not already been marked seen by
// Accept. Check and Accept are split deliberately: a packet should only be
// committed to the window after its integrity has been verified, so that an
// attacker cannot poison the window with forged sequence numbers that were
// never actually authenticated.
//
// Window is not safe for concurrent use; callers that need concurrency
// safety (e.g. one Window per epoch, shared across goroutines) must provide
// their own synchronization. The sans-I/O core never does, since all access
// happens synchronously inside a single handle_* call.
type Window struct {
	size uint64

	// maxSeen is the highest sequence number accepted so far. validMax
	// reports whether any sequence number has been accepted yet.
	maxSeen  uint64
	validMax bool

	// bitmap marks sequence numbers in (maxSeen-size, maxSeen] as seen. Bit 0
	// corresponds to maxSeen itself.
	bitmap uint64
}

// NewWindow creates a replay detector with the given window width. A size of
// 0 uses DefaultWindowSize.
func NewWindow(size uint64) *Window {
	if size == 0 {
		size = DefaultWindowSize
	}
	return &Window{size: size}
}

// Check reports whether seq is a candidate for acceptance: it must be within
// the window (i.e. not so old it has rolled off) and not already marked
// seen. Check does not modify the window; call Accept after verifying the
// packet's integrity.
func (w *Window) Check(seq uint64) bool {
	if !w.validMax {
		return true
	}
	if seq > w.maxSeen {
		return true
	}
	diff := w.maxSeen - seq
	if diff >= w.size {
		// Too old: at or beyond the trailing edge of the window.
		return false
	}
	return w.bitmap&(1<<diff) == 0
}

// Accept commits seq to the window. The caller must have already called
// Check(seq) and verified the packet's integrity (e.g. AEAD tag, HMAC).
// Accepting a sequence number that fails Check is a caller error and will
// corrupt the window's notion of "seen", so callers must always Check
// first.
func (w *Window) Accept(seq uint64) {
	if !w.validMax {
		w.maxSeen = seq
		w.bitmap = 1
		w.validMax = true
		return
	}

	switch {
	case seq > w.maxSeen:
		shift := seq - w.maxSeen
		if shift >= w.size {
			w.bitmap = 1
		} else {
			w.bitmap = (w.bitmap << shift) | 1
		}
		w.maxSeen = seq
	case seq == w.maxSeen:
		w.bitmap |= 1
	default:
		diff := w.maxSeen - seq
		if diff < w.size {
			w.bitmap |= 1 << diff
		}
	}
}

// MaxSeen returns the highest sequence number accepted so far, and whether
// any sequence number has been accepted yet.
func (w *Window) MaxSeen() (uint64, bool) {
	return w.maxSeen, w.validMax
}
