package protocol

// Close codes sent by the gateway when a streaming connection is refused.
const (
	CloseCapacityExceeded  = 1013
	CloseMissingCredential = 4001
	CloseInvalidCredential = 4003
)

// Retryable reports whether a client should reconnect after the server
// closed the connection with the given code.
func Retryable(code int) bool {
	switch code {
	case CloseMissingCredential, CloseInvalidCredential:
		return false
	default:
		return true
	}
}

func CloseReason(code int) string {
	switch code {
	case CloseCapacityExceeded:
		return "capacity exceeded"
	case CloseMissingCredential:
		return "missing credential"
	case CloseInvalidCredential:
		return "invalid credential"
	default:
		return ""
	}
}
