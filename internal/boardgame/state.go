package boardgame

import (
	"maps"

	"github.com/boardledger/boardgame-go/internal/zone"
	"github.com/shopspring/decimal"
)

// State is the projection of one joined session. It exists only while the
// game is JOINED and is rebuilt from the join snapshot every time.
//
// zone, connectedClients, balances and membersAccounts are private to the
// event loop. The projection maps are replaced, never modified, so they can
// be handed to listeners and accessors.
type State struct {
	zone             zone.Zone
	connectedClients map[string]zone.PublicKey
	balances         map[string]decimal.Decimal
	membersAccounts  map[string]string

	identities       map[string]Identity
	hiddenIdentities map[string]Identity
	players          map[string]Player
	hiddenPlayers    map[string]Player
	transfers        map[string]Transfer
}

// newState derives the full projection from a join snapshot.
func newState(z zone.Zone, connectedClients map[string]zone.PublicKey, clientKey zone.PublicKey) *State {
	z.Members = cloneOrEmpty(z.Members)
	z.Accounts = cloneOrEmpty(z.Accounts)
	z.Transactions = cloneOrEmpty(z.Transactions)

	st := &State{
		zone:             z,
		connectedClients: cloneOrEmpty(connectedClients),
		balances:         balancesFromTransactions(z.Transactions),
		membersAccounts:  membersAccountsFromAccounts(z.Accounts),
	}
	st.identities, st.hiddenIdentities = identitiesFromMembersAccounts(
		&st.zone, st.membersAccounts, st.balances, clientKey,
	)
	st.players, st.hiddenPlayers = playersFromMembersAccounts(
		&st.zone, st.membersAccounts, st.balances, connectedKeys(st.connectedClients),
	)
	st.transfers = transfersFromTransactions(
		&st.zone, st.zone.Transactions, accountsMembers(st.membersAccounts), st.allPlayers(),
	)
	return st
}

// allPlayers merges visible and hidden players.
func (st *State) allPlayers() map[string]Player {
	return merged(st.players, nil, st.hiddenPlayers)
}

func cloneOrEmpty[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return make(map[K]V)
	}
	return maps.Clone(m)
}
