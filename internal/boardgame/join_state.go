package boardgame

import "github.com/boardledger/boardgame-go/internal/zone"

// JoinState represents where a BoardGame is in its zone lifecycle.
type JoinState int

const (
	JoinStateUnavailable JoinState = iota
	JoinStateGeneralFailure
	JoinStateTLSError
	JoinStateAvailable
	JoinStateConnecting
	JoinStateAuthenticating
	JoinStateCreating
	JoinStateJoining
	JoinStateJoined
	JoinStateQuitting
	JoinStateDisconnecting
)

func (s JoinState) String() string {
	switch s {
	case JoinStateUnavailable:
		return "UNAVAILABLE"
	case JoinStateGeneralFailure:
		return "GENERAL_FAILURE"
	case JoinStateTLSError:
		return "TLS_ERROR"
	case JoinStateAvailable:
		return "AVAILABLE"
	case JoinStateConnecting:
		return "CONNECTING"
	case JoinStateAuthenticating:
		return "AUTHENTICATING"
	case JoinStateCreating:
		return "CREATING"
	case JoinStateJoining:
		return "JOINING"
	case JoinStateJoined:
		return "JOINED"
	case JoinStateQuitting:
		return "QUITTING"
	case JoinStateDisconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

// joinStateFor maps every connection state except ONLINE onto the join state
// of the same name. ONLINE is handled by the state machine itself.
func joinStateFor(s zone.ConnectionState) (JoinState, bool) {
	switch s {
	case zone.ConnectionStateUnavailable:
		return JoinStateUnavailable, true
	case zone.ConnectionStateGeneralFailure:
		return JoinStateGeneralFailure, true
	case zone.ConnectionStateTLSError:
		return JoinStateTLSError, true
	case zone.ConnectionStateAvailable:
		return JoinStateAvailable, true
	case zone.ConnectionStateConnecting:
		return JoinStateConnecting, true
	case zone.ConnectionStateAuthenticating:
		return JoinStateAuthenticating, true
	case zone.ConnectionStateDisconnecting:
		return JoinStateDisconnecting, true
	default:
		return 0, false
	}
}
