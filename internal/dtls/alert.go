package dtls

import "fmt"

// AlertLevel is the severity of an Alert record (RFC 5246 §7.2).
type AlertLevel uint8

const (
	AlertLevelWarning AlertLevel = 1
	AlertLevelFatal   AlertLevel = 2
)

// AlertDescription enumerates the alert codes relevant to a DTLS handshake.
type AlertDescription uint8

const (
	AlertCloseNotify            AlertDescription = 0
	AlertUnexpectedMessage      AlertDescription = 10
	AlertBadRecordMAC           AlertDescription = 20
	AlertHandshakeFailure       AlertDescription = 40
	AlertBadCertificate         AlertDescription = 42
	AlertCertificateExpired     AlertDescription = 45
	AlertIllegalParameter       AlertDescription = 47
	AlertDecodeError            AlertDescription = 50
	AlertDecryptError           AlertDescription = 51
	AlertProtocolVersion        AlertDescription = 70
	AlertInsufficientSecurity   AlertDescription = 71
	AlertInternalError          AlertDescription = 80
	AlertUserCanceled           AlertDescription = 90
	AlertNoRenegotiation        AlertDescription = 100
)

// Alert is the 2-byte record content for ContentTypeAlert.
type Alert struct {
	Level       AlertLevel
	Description AlertDescription
}

func (a Alert) Marshal() []byte {
	return []byte{byte(a.Level), byte(a.Description)}
}

func UnmarshalAlert(data []byte) (Alert, error) {
	if len(data) < 2 {
		return Alert{}, errShortAlert
	}
	return Alert{Level: AlertLevel(data[0]), Description: AlertDescription(data[1])}, nil
}

// AlertError wraps a received or generated Alert so callers can inspect it
// with errors.As.
type AlertError struct {
	Alert Alert
}

func (e *AlertError) Error() string {
	return fmt.Sprintf("dtls: alert %s (%s)", levelString(e.Alert.Level), descriptionString(e.Alert.Description))
}

func levelString(l AlertLevel) string {
	if l == AlertLevelFatal {
		return "fatal"
	}
	return "warning"
}

func descriptionString(d AlertDescription) string {
	switch d {
	case AlertCloseNotify:
		return "close_notify"
	case AlertUnexpectedMessage:
		return "unexpected_message"
	case AlertBadRecordMAC:
		return "bad_record_mac"
	case AlertHandshakeFailure:
		return "handshake_failure"
	case AlertBadCertificate:
		return "bad_certificate"
	case AlertCertificateExpired:
		return "certificate_expired"
	case AlertIllegalParameter:
		return "illegal_parameter"
	case AlertDecodeError:
		return "decode_error"
	case AlertDecryptError:
		return "decrypt_error"
	case AlertProtocolVersion:
		return "protocol_version"
	case AlertInsufficientSecurity:
		return "insufficient_security"
	case AlertInternalError:
		return "internal_error"
	case AlertUserCanceled:
		return "user_canceled"
	case AlertNoRenegotiation:
		return "no_renegotiation"
	default:
		return "unknown"
	}
}
