package boardgame

import (
	"github.com/boardledger/boardgame-go/internal/zone"
	"github.com/shopspring/decimal"
)

// Identity is a member/account pair owned by the local client key.
type Identity struct {
	ZoneID   string
	Member   zone.Member
	Account  zone.Account
	Balance  decimal.Decimal
	Currency string
	IsBanker bool
}

// Name returns the member's display name.
func (i Identity) Name() string {
	return i.Member.Name
}

// Equal compares two identities. Balances are compared numerically.
func (i Identity) Equal(o Identity) bool {
	return i.ZoneID == o.ZoneID &&
		i.Member.Equal(o.Member) &&
		i.Account.Equal(o.Account) &&
		i.Balance.Equal(o.Balance) &&
		i.Currency == o.Currency &&
		i.IsBanker == o.IsBanker
}

// Player is any single-owner member/account pair, with its live connection
// status.
type Player struct {
	ZoneID      string
	Member      zone.Member
	Account     zone.Account
	Balance     decimal.Decimal
	Currency    string
	IsBanker    bool
	IsConnected bool
}

// Name returns the member's display name.
func (p Player) Name() string {
	return p.Member.Name
}

// Equal compares two players. Balances are compared numerically.
func (p Player) Equal(o Player) bool {
	return p.ZoneID == o.ZoneID &&
		p.Member.Equal(o.Member) &&
		p.Account.Equal(o.Account) &&
		p.Balance.Equal(o.Balance) &&
		p.Currency == o.Currency &&
		p.IsBanker == o.IsBanker &&
		p.IsConnected == o.IsConnected
}

// Transfer is a transaction with its endpoints resolved. FromAccount and
// ToAccount are nil when the account is unknown; FromPlayer and ToPlayer are
// nil when the account does not belong to a player.
type Transfer struct {
	ZoneID      string
	Transaction zone.Transaction
	FromAccount *zone.Account
	FromPlayer  *Player
	ToAccount   *zone.Account
	ToPlayer    *Player
	Currency    string
}

// FromName returns the best display name for the source of the transfer.
func (t Transfer) FromName() string {
	return endpointName(t.FromPlayer, t.FromAccount, t.Transaction.From)
}

// ToName returns the best display name for the destination of the transfer.
func (t Transfer) ToName() string {
	return endpointName(t.ToPlayer, t.ToAccount, t.Transaction.To)
}

func endpointName(player *Player, account *zone.Account, accountID string) string {
	if player != nil && player.Name() != "" {
		return player.Name()
	}
	if account != nil && account.Name != "" {
		return account.Name
	}
	return accountID
}

// Equal compares two transfers including their resolved endpoints.
func (t Transfer) Equal(o Transfer) bool {
	return t.ZoneID == o.ZoneID &&
		t.Transaction.Equal(o.Transaction) &&
		optionalEqual(t.FromAccount, o.FromAccount, zone.Account.Equal) &&
		optionalEqual(t.FromPlayer, o.FromPlayer, Player.Equal) &&
		optionalEqual(t.ToAccount, o.ToAccount, zone.Account.Equal) &&
		optionalEqual(t.ToPlayer, o.ToPlayer, Player.Equal) &&
		t.Currency == o.Currency
}

func optionalEqual[T any](a, b *T, equal func(T, T) bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return equal(*a, *b)
}
