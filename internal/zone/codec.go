package zone

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand = errors.New("unknown command type")
	ErrUnknownResult  = errors.New("unknown response result")
)

// Result discriminators used in ResponseEnvelope. An empty result is the
// not-set case.
const (
	ResultErrors  = "errors"
	ResultSuccess = "success"
)

// CommandEnvelope is the JSON form of a Command.
type CommandEnvelope struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ResponseEnvelope is the JSON form of a Response.
type ResponseEnvelope struct {
	Result  string          `json:"result,omitempty"`
	Errors  []Error         `json:"errors,omitempty"`
	Success json.RawMessage `json:"success,omitempty"`
}

// NotificationEnvelope is the JSON form of a ZoneNotification.
type NotificationEnvelope struct {
	ZoneID  string           `json:"zone_id"`
	Type    NotificationType `json:"type"`
	Payload json.RawMessage  `json:"payload,omitempty"`
}

// EncodeCommand wraps cmd in an envelope.
func EncodeCommand(cmd Command) (CommandEnvelope, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return CommandEnvelope{}, fmt.Errorf("failed to encode %s command: %w", cmd.CommandType(), err)
	}
	return CommandEnvelope{Type: cmd.CommandType(), Payload: payload}, nil
}

// DecodeCommand is the inverse of EncodeCommand.
func DecodeCommand(env CommandEnvelope) (Command, error) {
	var cmd Command
	switch env.Type {
	case CommandCreateZone:
		cmd = &CreateZone{}
	case CommandJoinZone:
		cmd = &JoinZone{}
	case CommandQuitZone:
		cmd = &QuitZone{}
	case CommandChangeZoneName:
		cmd = &ChangeZoneName{}
	case CommandCreateMember:
		cmd = &CreateMember{}
	case CommandUpdateMember:
		cmd = &UpdateMember{}
	case CommandCreateAccount:
		cmd = &CreateAccount{}
	case CommandUpdateAccount:
		cmd = &UpdateAccount{}
	case CommandAddTransaction:
		cmd = &AddTransaction{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, cmd); err != nil {
			return nil, fmt.Errorf("failed to decode %s command: %w", env.Type, err)
		}
	}
	return deref(cmd), nil
}

func deref(cmd Command) Command {
	switch c := cmd.(type) {
	case *CreateZone:
		return *c
	case *JoinZone:
		return *c
	case *QuitZone:
		return *c
	case *ChangeZoneName:
		return *c
	case *CreateMember:
		return *c
	case *UpdateMember:
		return *c
	case *CreateAccount:
		return *c
	case *UpdateAccount:
		return *c
	case *AddTransaction:
		return *c
	}
	return cmd
}

// EncodeResponse wraps resp in an envelope.
func EncodeResponse(resp Response) (ResponseEnvelope, error) {
	switch r := resp.(type) {
	case nil, NotSet:
		return ResponseEnvelope{}, nil
	case Errors:
		return ResponseEnvelope{Result: ResultErrors, Errors: r.Errors}, nil
	case Success:
		return ResponseEnvelope{Result: ResultSuccess}, nil
	default:
		payload, err := json.Marshal(r)
		if err != nil {
			return ResponseEnvelope{}, fmt.Errorf("failed to encode response: %w", err)
		}
		return ResponseEnvelope{Result: ResultSuccess, Success: payload}, nil
	}
}

// DecodeResponse decodes env as the response to a command of type t.
// Unknown result discriminators decode to NotSet.
func DecodeResponse(t CommandType, env ResponseEnvelope) (Response, error) {
	switch env.Result {
	case "":
		return NotSet{}, nil
	case ResultErrors:
		return Errors{Errors: env.Errors}, nil
	case ResultSuccess:
	default:
		return NotSet{}, nil
	}

	var target Response
	switch t {
	case CommandCreateZone:
		target = &CreateZoneSuccess{}
	case CommandJoinZone:
		target = &JoinZoneSuccess{}
	case CommandCreateMember:
		target = &CreateMemberSuccess{}
	case CommandCreateAccount:
		target = &CreateAccountSuccess{}
	case CommandAddTransaction:
		target = &AddTransactionSuccess{}
	case CommandQuitZone, CommandChangeZoneName, CommandUpdateMember, CommandUpdateAccount:
		return Success{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, t)
	}
	if len(env.Success) > 0 {
		if err := json.Unmarshal(env.Success, target); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", t, err)
		}
	}

	switch r := target.(type) {
	case *CreateZoneSuccess:
		return *r, nil
	case *JoinZoneSuccess:
		return *r, nil
	case *CreateMemberSuccess:
		return *r, nil
	case *CreateAccountSuccess:
		return *r, nil
	case *AddTransactionSuccess:
		return *r, nil
	}
	return nil, ErrUnknownResult
}

// EncodeNotification wraps n in an envelope.
func EncodeNotification(n ZoneNotification) (NotificationEnvelope, error) {
	payload, err := json.Marshal(n.Notification)
	if err != nil {
		return NotificationEnvelope{}, fmt.Errorf("failed to encode %s notification: %w",
			n.Notification.NotificationType(), err)
	}
	return NotificationEnvelope{
		ZoneID:  n.ZoneID,
		Type:    n.Notification.NotificationType(),
		Payload: payload,
	}, nil
}

// DecodeNotification is the inverse of EncodeNotification. Unknown types
// decode to UnknownNotification rather than failing.
func DecodeNotification(env NotificationEnvelope) (ZoneNotification, error) {
	var n Notification
	var err error
	switch env.Type {
	case NotificationClientJoined:
		n, err = decodePayload[ClientJoined](env.Payload)
	case NotificationClientQuit:
		n, err = decodePayload[ClientQuit](env.Payload)
	case NotificationZoneNameChanged:
		n, err = decodePayload[ZoneNameChanged](env.Payload)
	case NotificationMemberCreated:
		n, err = decodePayload[MemberCreated](env.Payload)
	case NotificationMemberUpdated:
		n, err = decodePayload[MemberUpdated](env.Payload)
	case NotificationAccountCreated:
		n, err = decodePayload[AccountCreated](env.Payload)
	case NotificationAccountUpdated:
		n, err = decodePayload[AccountUpdated](env.Payload)
	case NotificationTransactionAdded:
		n, err = decodePayload[TransactionAdded](env.Payload)
	default:
		n = UnknownNotification{Type: env.Type}
	}
	if err != nil {
		return ZoneNotification{}, fmt.Errorf("failed to decode %s notification: %w", env.Type, err)
	}
	return ZoneNotification{ZoneID: env.ZoneID, Notification: n}, nil
}

func decodePayload[T Notification](payload json.RawMessage) (Notification, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}
