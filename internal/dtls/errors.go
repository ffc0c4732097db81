package dtls

import "github.com/pkg/errors"

var (
	errShortAlert        = errors.New("dtls: alert record too short")
	errHandshakeTimeout   = errors.New("dtls: handshake timed out after maximum retransmits")
	errUnexpectedMessage = errors.New("dtls: unexpected handshake message for current flight")
	errClosed            = errors.New("dtls: connection closed")
)
