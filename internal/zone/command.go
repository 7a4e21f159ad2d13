package zone

import "github.com/shopspring/decimal"

// CommandType names a command on the wire.
type CommandType string

const (
	CommandCreateZone     CommandType = "create_zone"
	CommandJoinZone       CommandType = "join_zone"
	CommandQuitZone       CommandType = "quit_zone"
	CommandChangeZoneName CommandType = "change_zone_name"
	CommandCreateMember   CommandType = "create_member"
	CommandUpdateMember   CommandType = "update_member"
	CommandCreateAccount  CommandType = "create_account"
	CommandUpdateAccount  CommandType = "update_account"
	CommandAddTransaction CommandType = "add_transaction"
)

// Command is a request sent to the zone service. CreateZone goes through the
// create endpoint; every other command is addressed to an existing zone.
type Command interface {
	CommandType() CommandType
}

// CreateZone asks the service to create a zone whose equity account is owned
// by EquityOwnerPublicKey.
type CreateZone struct {
	EquityOwnerPublicKey  PublicKey `json:"equity_owner_public_key"`
	EquityOwnerName       string    `json:"equity_owner_name,omitempty"`
	EquityOwnerMetadata   Metadata  `json:"equity_owner_metadata,omitzero"`
	EquityAccountName     string    `json:"equity_account_name,omitempty"`
	EquityAccountMetadata Metadata  `json:"equity_account_metadata,omitzero"`
	Name                  string    `json:"name,omitempty"`
	Metadata              Metadata  `json:"metadata,omitzero"`
}

type JoinZone struct{}

type QuitZone struct{}

type ChangeZoneName struct {
	Name string `json:"name,omitempty"`
}

type CreateMember struct {
	OwnerPublicKeys []PublicKey `json:"owner_public_keys"`
	Name            string      `json:"name,omitempty"`
	Metadata        Metadata    `json:"metadata,omitzero"`
}

type UpdateMember struct {
	Member Member `json:"member"`
}

type CreateAccount struct {
	OwnerMemberIDs []string `json:"owner_member_ids"`
	Name           string   `json:"name,omitempty"`
	Metadata       Metadata `json:"metadata,omitzero"`
}

type UpdateAccount struct {
	ActingAs string  `json:"acting_as"`
	Account  Account `json:"account"`
}

// AddTransaction moves Value from one account to another on behalf of the
// member ActingAs.
type AddTransaction struct {
	ActingAs    string          `json:"acting_as"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description,omitempty"`
	Metadata    Metadata        `json:"metadata,omitzero"`
}

func (CreateZone) CommandType() CommandType     { return CommandCreateZone }
func (JoinZone) CommandType() CommandType       { return CommandJoinZone }
func (QuitZone) CommandType() CommandType       { return CommandQuitZone }
func (ChangeZoneName) CommandType() CommandType { return CommandChangeZoneName }
func (CreateMember) CommandType() CommandType   { return CommandCreateMember }
func (UpdateMember) CommandType() CommandType   { return CommandUpdateMember }
func (CreateAccount) CommandType() CommandType  { return CommandCreateAccount }
func (UpdateAccount) CommandType() CommandType  { return CommandUpdateAccount }
func (AddTransaction) CommandType() CommandType { return CommandAddTransaction }
