package boardgame

import (
	"maps"
	"slices"

	"github.com/boardledger/boardgame-go/internal/zone"
	"go.uber.org/zap"
)

// onZoneNotification applies n to the projection. Notifications are assumed
// to arrive in server emission order; nothing is reordered here.
func (b *BoardGame) onZoneNotification(n zone.ZoneNotification) {
	if !b.subscribed || b.joinState != JoinStateJoined || b.state == nil || n.ZoneID != b.zoneID {
		return
	}
	st := b.state
	switch v := n.Notification.(type) {
	case zone.ClientJoined:
		b.clientJoined(st, v.ConnectionID, v.PublicKey)
	case zone.ClientQuit:
		b.clientQuit(st, v.ConnectionID, v.PublicKey)
	case zone.ZoneNameChanged:
		b.zoneNameChanged(st, v.Name)
	case zone.MemberCreated:
		// Identities and players need an account, which arrives separately.
		st.zone.Members[v.Member.ID] = v.Member
	case zone.MemberUpdated:
		b.memberUpdated(st, v.Member)
	case zone.AccountCreated:
		b.accountCreated(st, v.Account)
	case zone.AccountUpdated:
		b.accountUpdated(st, v.Account)
	case zone.TransactionAdded:
		b.transactionAdded(st, v.Transaction)
	case nil:
	default:
		b.logger.Debug("ignoring notification",
			zap.String("zone_id", n.ZoneID),
			zap.String("type", string(v.NotificationType())))
	}
}

func (b *BoardGame) clientJoined(st *State, connectionID string, key zone.PublicKey) {
	connected := cloneOrEmpty(st.connectedClients)
	connected[connectionID] = key
	st.connectedClients = connected
	b.connectionChanged(st, key)
}

func (b *BoardGame) clientQuit(st *State, connectionID string, key zone.PublicKey) {
	connected := cloneOrEmpty(st.connectedClients)
	delete(connected, connectionID)
	st.connectedClients = connected
	b.connectionChanged(st, key)
}

// connectionChanged recomputes the players owned by key and the transfers
// that reference them.
func (b *BoardGame) connectionChanged(st *State, key zone.PublicKey) {
	var memberIDs []string
	for id, member := range st.zone.Members {
		if len(member.OwnerPublicKeys) == 1 && member.OwnerPublicKeys[0] == key {
			memberIDs = append(memberIDs, id)
		}
	}
	affected := restrictToMembers(st.membersAccounts, memberIDs...)
	if len(affected) == 0 {
		return
	}

	players, hiddenPlayers := playersFromMembersAccounts(&st.zone, affected, st.balances, connectedKeys(st.connectedClients))
	b.publishPlayers(st,
		merged(st.players, memberIDs, players),
		merged(st.hiddenPlayers, memberIDs, hiddenPlayers))
	b.refreshTransfers(st, accountIDs(affected)...)
}

func (b *BoardGame) zoneNameChanged(st *State, name string) {
	b.mu.Lock()
	st.zone.Name = name
	b.name = name
	b.mu.Unlock()
	b.gameActionListeners.each(func(l GameActionListener) { l.OnGameNameChanged(name) })
	b.persistName(name)
}

func (b *BoardGame) memberUpdated(st *State, member zone.Member) {
	st.zone.Members[member.ID] = member
	affected := restrictToMembers(st.membersAccounts, member.ID)
	remove := []string{member.ID}

	identities, hiddenIdentities := identitiesFromMembersAccounts(&st.zone, affected, st.balances, b.conn.ClientKey())
	b.publishIdentities(st,
		merged(st.identities, remove, identities),
		merged(st.hiddenIdentities, remove, hiddenIdentities),
		receivedOrRestored)

	players, hiddenPlayers := playersFromMembersAccounts(&st.zone, affected, st.balances, connectedKeys(st.connectedClients))
	b.publishPlayers(st,
		merged(st.players, remove, players),
		merged(st.hiddenPlayers, remove, hiddenPlayers))

	b.refreshTransfers(st, accountIDs(affected)...)
}

// accountCreated rebuilds the member and account maps with the same rule as a
// full derivation, so a member owning several accounts keeps the same one no
// matter which path computed it. Only the new account's owners are projected.
func (b *BoardGame) accountCreated(st *State, account zone.Account) {
	st.zone.Accounts[account.ID] = account
	before := restrictToMembers(st.membersAccounts, account.OwnerMemberIDs...)
	st.membersAccounts = membersAccountsFromAccounts(st.zone.Accounts)
	affected := restrictToMembers(st.membersAccounts, account.OwnerMemberIDs...)
	if maps.Equal(before, affected) {
		return
	}

	identities, hiddenIdentities := identitiesFromMembersAccounts(&st.zone, affected, st.balances, b.conn.ClientKey())
	b.publishIdentities(st,
		merged(st.identities, nil, identities),
		merged(st.hiddenIdentities, nil, hiddenIdentities),
		func(l GameActionListener, identity Identity, _ bool) { l.OnIdentityCreated(identity) })

	players, hiddenPlayers := playersFromMembersAccounts(&st.zone, affected, st.balances, connectedKeys(st.connectedClients))
	b.publishPlayers(st,
		merged(st.players, nil, players),
		merged(st.hiddenPlayers, nil, hiddenPlayers))

	b.refreshTransfers(st, append(accountIDs(before), accountIDs(affected)...)...)
}

// accountUpdated rebuilds the member and account maps from scratch. Ownership
// changes are rare, and a change can move a member to a different account.
func (b *BoardGame) accountUpdated(st *State, account zone.Account) {
	st.zone.Accounts[account.ID] = account
	st.membersAccounts = membersAccountsFromAccounts(st.zone.Accounts)

	identities, hiddenIdentities := identitiesFromMembersAccounts(&st.zone, st.membersAccounts, st.balances, b.conn.ClientKey())
	b.publishIdentities(st, identities, hiddenIdentities, receivedOrRestored)

	players, hiddenPlayers := playersFromMembersAccounts(&st.zone, st.membersAccounts, st.balances, connectedKeys(st.connectedClients))
	b.publishPlayers(st, players, hiddenPlayers)

	b.publishTransfers(st, transfersFromTransactions(
		&st.zone, st.zone.Transactions, accountsMembers(st.membersAccounts), st.allPlayers(),
	))
}

func (b *BoardGame) transactionAdded(st *State, tx zone.Transaction) {
	if _, seen := st.zone.Transactions[tx.ID]; seen {
		// Balances are incremental, so a repeat must not be applied twice.
		return
	}
	st.zone.Transactions[tx.ID] = tx
	applyTransaction(st.balances, tx)
	affected := restrictToAccounts(st.membersAccounts, tx.From, tx.To)

	identities, hiddenIdentities := identitiesFromMembersAccounts(&st.zone, affected, st.balances, b.conn.ClientKey())
	b.publishIdentities(st,
		merged(st.identities, nil, identities),
		merged(st.hiddenIdentities, nil, hiddenIdentities),
		nil)

	players, hiddenPlayers := playersFromMembersAccounts(&st.zone, affected, st.balances, connectedKeys(st.connectedClients))
	b.publishPlayers(st,
		merged(st.players, nil, players),
		merged(st.hiddenPlayers, nil, hiddenPlayers))

	b.refreshTransfers(st, tx.From, tx.To)
}

// identityAdded reports an identity that was not visible before. wasHidden
// tells whether it was among the hidden identities.
type identityAdded func(l GameActionListener, identity Identity, wasHidden bool)

func receivedOrRestored(l GameActionListener, identity Identity, wasHidden bool) {
	if wasHidden {
		l.OnIdentityRestored(identity)
	} else {
		l.OnIdentityReceived(identity)
	}
}

// publishIdentities swaps in the new identity maps and emits the callbacks for
// whatever differs. added may be nil.
func (b *BoardGame) publishIdentities(st *State, identities, hiddenIdentities map[string]Identity, added identityAdded) {
	d := diffMaps(st.identities, identities, Identity.Equal)
	hiddenChanged := !mapsEqual(st.hiddenIdentities, hiddenIdentities, Identity.Equal)
	if d.Empty() && !hiddenChanged {
		return
	}
	beforeHidden := st.hiddenIdentities

	b.mu.Lock()
	st.identities = identities
	st.hiddenIdentities = hiddenIdentities
	b.mu.Unlock()

	if !d.Empty() {
		b.gameActionListeners.each(func(l GameActionListener) { l.OnIdentitiesUpdated(identities) })
		if added != nil {
			for _, identity := range sortedValues(d.Added) {
				_, wasHidden := beforeHidden[identity.Member.ID]
				b.gameActionListeners.each(func(l GameActionListener) { added(l, identity, wasHidden) })
			}
		}
	}
	if hiddenChanged {
		b.gameActionListeners.each(func(l GameActionListener) { l.OnHiddenIdentitiesUpdated(hiddenIdentities) })
	}
}

// publishPlayers swaps in the new player maps and emits fine-grained and bulk
// callbacks for whatever differs.
func (b *BoardGame) publishPlayers(st *State, players, hiddenPlayers map[string]Player) {
	d := diffMaps(st.players, players, Player.Equal)
	hiddenChanged := !mapsEqual(st.hiddenPlayers, hiddenPlayers, Player.Equal)
	if d.Empty() && !hiddenChanged {
		return
	}

	b.mu.Lock()
	st.players = players
	st.hiddenPlayers = hiddenPlayers
	b.mu.Unlock()

	if !d.Empty() {
		b.gameActionListeners.each(func(l GameActionListener) {
			for _, p := range sortedValues(d.Added) {
				l.OnPlayerAdded(p)
			}
			for _, p := range sortedValues(d.Changed) {
				l.OnPlayerChanged(p)
			}
			for _, p := range sortedValues(d.Removed) {
				l.OnPlayerRemoved(p)
			}
			l.OnPlayersUpdated(players)
		})
	}
	if hiddenChanged {
		b.gameActionListeners.each(func(l GameActionListener) { l.OnHiddenPlayersUpdated(hiddenPlayers) })
	}
}

// refreshTransfers rebuilds the transfers touching accountIDs so they carry
// the current player values.
func (b *BoardGame) refreshTransfers(st *State, accountIDs ...string) {
	transactions := transactionsInvolving(st.zone.Transactions, accountIDs...)
	if len(transactions) == 0 {
		return
	}
	b.publishTransfers(st, transfersFromTransactions(
		&st.zone, transactions, accountsMembers(st.membersAccounts), st.allPlayers(),
	))
}

// publishTransfers merges updated into the transfer map. New transfers are
// reported one by one; existing ones that changed are reported together.
func (b *BoardGame) publishTransfers(st *State, updated map[string]Transfer) {
	added := make(map[string]Transfer)
	changed := make(map[string]Transfer)
	for id, t := range updated {
		old, ok := st.transfers[id]
		switch {
		case !ok:
			added[id] = t
		case !old.Equal(t):
			changed[id] = t
		}
	}
	if len(added) == 0 && len(changed) == 0 {
		return
	}
	transfers := merged(st.transfers, nil, updated)

	b.mu.Lock()
	st.transfers = transfers
	b.mu.Unlock()

	b.gameActionListeners.each(func(l GameActionListener) {
		for _, t := range sortedValues(added) {
			l.OnTransferAdded(t)
		}
		if len(changed) > 0 {
			l.OnTransfersChanged(sortedValues(changed))
		}
		l.OnTransfersUpdated(transfers)
	})
}

func accountIDs(membersAccounts map[string]string) []string {
	ids := make([]string, 0, len(membersAccounts))
	for _, id := range membersAccounts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
