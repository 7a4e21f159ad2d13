// Package zone holds the wire model of the shared-ledger service: zones and the
// members, accounts and transactions inside them, the commands a client can
// send, the responses it gets back and the notifications pushed to joined
// clients.
package zone

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// PublicKey identifies a client. It holds the base64 encoding of the PKIX DER
// public key so it can be compared and used as a map key directly.
type PublicKey string

// Zone is the server-authoritative aggregate for one game.
type Zone struct {
	ID              string                 `json:"id"`
	EquityAccountID string                 `json:"equity_account_id"`
	Members         map[string]Member      `json:"members"`
	Accounts        map[string]Account     `json:"accounts"`
	Transactions    map[string]Transaction `json:"transactions"`
	Created         time.Time              `json:"created"`
	Expires         time.Time              `json:"expires"`
	Name            string                 `json:"name,omitempty"`
	Metadata        Metadata               `json:"metadata,omitzero"`
}

// Currency returns the currency code stored in the zone metadata, if any.
func (z Zone) Currency() string {
	currency, _ := z.Metadata.String("currency")
	return currency
}

// Member is a participant owned by one or more public keys.
type Member struct {
	ID              string      `json:"id"`
	OwnerPublicKeys []PublicKey `json:"owner_public_keys"`
	Name            string      `json:"name,omitempty"`
	Metadata        Metadata    `json:"metadata,omitzero"`
}

// Hidden reports whether the member has been soft-deleted.
func (m Member) Hidden() bool {
	return m.Metadata.Bool("hidden")
}

// OwnedBy reports whether key is one of the member's owner keys.
func (m Member) OwnedBy(key PublicKey) bool {
	return slices.Contains(m.OwnerPublicKeys, key)
}

// Equal compares two members field by field.
func (m Member) Equal(o Member) bool {
	return m.ID == o.ID &&
		slices.Equal(m.OwnerPublicKeys, o.OwnerPublicKeys) &&
		m.Name == o.Name &&
		m.Metadata.Equal(o.Metadata)
}

// Account is a balance-bearing ledger entry owned by zero or more members.
type Account struct {
	ID             string   `json:"id"`
	OwnerMemberIDs []string `json:"owner_member_ids"`
	Name           string   `json:"name,omitempty"`
	Metadata       Metadata `json:"metadata,omitzero"`
}

// Equal compares two accounts field by field.
func (a Account) Equal(o Account) bool {
	return a.ID == o.ID &&
		slices.Equal(a.OwnerMemberIDs, o.OwnerMemberIDs) &&
		a.Name == o.Name &&
		a.Metadata.Equal(o.Metadata)
}

// Transaction moves Value from one account to another. Transactions are
// immutable once added.
type Transaction struct {
	ID          string          `json:"id"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Value       decimal.Decimal `json:"value"`
	Creator     string          `json:"creator"`
	Created     time.Time       `json:"created"`
	Description string          `json:"description,omitempty"`
	Metadata    Metadata        `json:"metadata,omitzero"`
}

// Equal compares two transactions field by field. Values are compared
// numerically so 10 and 10.00 are equal.
func (t Transaction) Equal(o Transaction) bool {
	return t.ID == o.ID &&
		t.From == o.From &&
		t.To == o.To &&
		t.Value.Equal(o.Value) &&
		t.Creator == o.Creator &&
		t.Created.Equal(o.Created) &&
		t.Description == o.Description &&
		t.Metadata.Equal(o.Metadata)
}
