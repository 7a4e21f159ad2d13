package zone

import (
	"fmt"
	"strings"
)

// Response is the outcome of a command. Exactly one of the variants below is
// returned: NotSet, Errors, or the success type matching the command.
//
// NotSet is what a client sees when the server answers with a result it does
// not understand. Call sites must accept it and do nothing.
type Response interface {
	isResponse()
}

// NotSet is the empty result.
type NotSet struct{}

// Error is a single application error reported by the service.
type Error struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Description)
}

// Errors is the failure result.
type Errors struct {
	Errors []Error
}

func (e Errors) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}

// Success is the result of commands whose effect is only visible through
// notifications (quit, change name, update member/account).
type Success struct{}

type CreateZoneSuccess struct {
	Zone Zone `json:"zone"`
}

// JoinZoneSuccess carries the full zone snapshot and the public keys of the
// clients connected at join time, keyed by connection id.
type JoinZoneSuccess struct {
	Zone             Zone                 `json:"zone"`
	ConnectedClients map[string]PublicKey `json:"connected_clients"`
}

type CreateMemberSuccess struct {
	Member Member `json:"member"`
}

type CreateAccountSuccess struct {
	Account Account `json:"account"`
}

type AddTransactionSuccess struct {
	Transaction Transaction `json:"transaction"`
}

func (NotSet) isResponse()                {}
func (Errors) isResponse()                {}
func (Success) isResponse()               {}
func (CreateZoneSuccess) isResponse()     {}
func (JoinZoneSuccess) isResponse()       {}
func (CreateMemberSuccess) isResponse()   {}
func (CreateAccountSuccess) isResponse()  {}
func (AddTransactionSuccess) isResponse() {}
