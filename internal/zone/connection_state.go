package zone

// ConnectionState is the state of the link to the zone service.
type ConnectionState int

const (
	ConnectionStateUnavailable ConnectionState = iota
	ConnectionStateGeneralFailure
	ConnectionStateTLSError
	ConnectionStateAvailable
	ConnectionStateConnecting
	ConnectionStateAuthenticating
	ConnectionStateOnline
	ConnectionStateDisconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateUnavailable:
		return "UNAVAILABLE"
	case ConnectionStateGeneralFailure:
		return "GENERAL_FAILURE"
	case ConnectionStateTLSError:
		return "TLS_ERROR"
	case ConnectionStateAvailable:
		return "AVAILABLE"
	case ConnectionStateConnecting:
		return "CONNECTING"
	case ConnectionStateAuthenticating:
		return "AUTHENTICATING"
	case ConnectionStateOnline:
		return "ONLINE"
	case ConnectionStateDisconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}
