package boardgame

import (
	"slices"

	"github.com/boardledger/boardgame-go/internal/zone"
	"github.com/shopspring/decimal"
)

// The functions in this file derive the client-side views of a zone. They are
// pure: they read the zone and the maps passed in and return fresh maps.
// Callers restrict membersAccounts to recompute only part of a projection.

// balancesFromTransactions sums every transaction into per-account balances.
func balancesFromTransactions(transactions map[string]zone.Transaction) map[string]decimal.Decimal {
	balances := make(map[string]decimal.Decimal)
	for _, tx := range transactions {
		applyTransaction(balances, tx)
	}
	return balances
}

// applyTransaction debits tx.From and credits tx.To in place.
func applyTransaction(balances map[string]decimal.Decimal, tx zone.Transaction) {
	balances[tx.From] = balances[tx.From].Sub(tx.Value)
	balances[tx.To] = balances[tx.To].Add(tx.Value)
}

// membersAccountsFromAccounts maps member id to account id for every account
// owned by exactly one member. Accounts are visited in id order so a member
// owning several accounts always resolves to the same one.
func membersAccountsFromAccounts(accounts map[string]zone.Account) map[string]string {
	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	membersAccounts := make(map[string]string)
	for _, id := range ids {
		owners := accounts[id].OwnerMemberIDs
		if len(owners) == 1 {
			membersAccounts[owners[0]] = id
		}
	}
	return membersAccounts
}

// accountsMembers inverts a member-to-account map.
func accountsMembers(membersAccounts map[string]string) map[string]string {
	inverse := make(map[string]string, len(membersAccounts))
	for memberID, accountID := range membersAccounts {
		inverse[accountID] = memberID
	}
	return inverse
}

// restrictToAccounts keeps the member-to-account pairs whose account is one of
// accountIDs.
func restrictToAccounts(membersAccounts map[string]string, accountIDs ...string) map[string]string {
	restricted := make(map[string]string)
	for memberID, accountID := range membersAccounts {
		if slices.Contains(accountIDs, accountID) {
			restricted[memberID] = accountID
		}
	}
	return restricted
}

// restrictToMembers keeps the member-to-account pairs for the given members.
func restrictToMembers(membersAccounts map[string]string, memberIDs ...string) map[string]string {
	restricted := make(map[string]string)
	for _, memberID := range memberIDs {
		if accountID, ok := membersAccounts[memberID]; ok {
			restricted[memberID] = accountID
		}
	}
	return restricted
}

// identitiesFromMembersAccounts builds identities for the members whose only
// owner key is clientKey, split by the hidden flag.
func identitiesFromMembersAccounts(
	z *zone.Zone,
	membersAccounts map[string]string,
	balances map[string]decimal.Decimal,
	clientKey zone.PublicKey,
) (identities, hiddenIdentities map[string]Identity) {
	identities = make(map[string]Identity)
	hiddenIdentities = make(map[string]Identity)
	currency := z.Currency()
	for memberID, accountID := range membersAccounts {
		member, ok := z.Members[memberID]
		if !ok || len(member.OwnerPublicKeys) != 1 || member.OwnerPublicKeys[0] != clientKey {
			continue
		}
		account, ok := z.Accounts[accountID]
		if !ok {
			continue
		}
		identity := Identity{
			ZoneID:   z.ID,
			Member:   member,
			Account:  account,
			Balance:  balances[accountID],
			Currency: currency,
			IsBanker: accountID == z.EquityAccountID,
		}
		if member.Hidden() {
			hiddenIdentities[memberID] = identity
		} else {
			identities[memberID] = identity
		}
	}
	return identities, hiddenIdentities
}

// playersFromMembersAccounts builds players for every member with exactly
// one owner key, split by the hidden flag. A player is connected when its
// owner key is among connectedKeys.
func playersFromMembersAccounts(
	z *zone.Zone,
	membersAccounts map[string]string,
	balances map[string]decimal.Decimal,
	connectedKeys map[zone.PublicKey]struct{},
) (players, hiddenPlayers map[string]Player) {
	players = make(map[string]Player)
	hiddenPlayers = make(map[string]Player)
	currency := z.Currency()
	for memberID, accountID := range membersAccounts {
		member, ok := z.Members[memberID]
		if !ok || len(member.OwnerPublicKeys) != 1 {
			continue
		}
		account, ok := z.Accounts[accountID]
		if !ok {
			continue
		}
		_, connected := connectedKeys[member.OwnerPublicKeys[0]]
		player := Player{
			ZoneID:      z.ID,
			Member:      member,
			Account:     account,
			Balance:     balances[accountID],
			Currency:    currency,
			IsBanker:    accountID == z.EquityAccountID,
			IsConnected: connected,
		}
		if member.Hidden() {
			hiddenPlayers[memberID] = player
		} else {
			players[memberID] = player
		}
	}
	return players, hiddenPlayers
}

// transfersFromTransactions resolves the endpoints of each transaction.
// allPlayers must contain both visible and hidden players, keyed by member id.
func transfersFromTransactions(
	z *zone.Zone,
	transactions map[string]zone.Transaction,
	accountsMembers map[string]string,
	allPlayers map[string]Player,
) map[string]Transfer {
	currency := z.Currency()
	transfers := make(map[string]Transfer, len(transactions))
	for id, tx := range transactions {
		transfers[id] = Transfer{
			ZoneID:      z.ID,
			Transaction: tx,
			FromAccount: lookupAccount(z, tx.From),
			FromPlayer:  lookupPlayer(accountsMembers, allPlayers, tx.From),
			ToAccount:   lookupAccount(z, tx.To),
			ToPlayer:    lookupPlayer(accountsMembers, allPlayers, tx.To),
			Currency:    currency,
		}
	}
	return transfers
}

// transactionsInvolving selects the transactions touching any of accountIDs.
func transactionsInvolving(transactions map[string]zone.Transaction, accountIDs ...string) map[string]zone.Transaction {
	selected := make(map[string]zone.Transaction)
	for id, tx := range transactions {
		if slices.Contains(accountIDs, tx.From) || slices.Contains(accountIDs, tx.To) {
			selected[id] = tx
		}
	}
	return selected
}

func lookupAccount(z *zone.Zone, accountID string) *zone.Account {
	account, ok := z.Accounts[accountID]
	if !ok {
		return nil
	}
	return &account
}

func lookupPlayer(accountsMembers map[string]string, players map[string]Player, accountID string) *Player {
	memberID, ok := accountsMembers[accountID]
	if !ok {
		return nil
	}
	player, ok := players[memberID]
	if !ok {
		return nil
	}
	return &player
}

// connectedKeys collects the distinct public keys of connected clients.
func connectedKeys(connectedClients map[string]zone.PublicKey) map[zone.PublicKey]struct{} {
	keys := make(map[zone.PublicKey]struct{}, len(connectedClients))
	for _, key := range connectedClients {
		keys[key] = struct{}{}
	}
	return keys
}
