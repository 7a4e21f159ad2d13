package boardgame

import "reflect"

// JoinStateListener is notified of every join state transition. Listener
// values are compared with ==, so register pointers.
type JoinStateListener interface {
	OnJoinStateChanged(state JoinState)
}

// GameActionListener receives command failures and projection changes.
// Callbacks run on the registry's event loop; the maps and slices passed in
// are never modified afterwards and may be retained.
//
// Listener values are compared with ==, so register pointers. A listener whose
// dynamic type is not comparable is rejected.
//
// Embed UnimplementedGameActionListener to implement only the callbacks of
// interest.
type GameActionListener interface {
	OnChangeGameNameError(name string)
	OnChangeIdentityNameError(name string)
	OnCreateIdentityAccountError(name string)
	OnCreateIdentityMemberError(name string)
	OnCreateGameError(name string)
	OnDeleteIdentityError(name string)
	OnGameNameChanged(name string)
	OnHiddenIdentitiesUpdated(hiddenIdentities map[string]Identity)
	OnHiddenPlayersUpdated(hiddenPlayers map[string]Player)
	OnIdentitiesUpdated(identities map[string]Identity)
	OnIdentityCreated(identity Identity)
	OnIdentityReceived(identity Identity)
	OnIdentityRestored(identity Identity)
	OnJoinGameError()
	OnPlayerAdded(added Player)
	OnPlayerChanged(changed Player)
	OnPlayersInitialized(players []Player)
	OnPlayerRemoved(removed Player)
	OnPlayersUpdated(players map[string]Player)
	OnQuitGameError()
	OnRestoreIdentityError(name string)
	OnTransferAdded(added Transfer)
	OnTransferIdentityError(name string)
	OnTransferToPlayerError(name string)
	OnTransfersChanged(changed []Transfer)
	OnTransfersInitialized(transfers []Transfer)
	OnTransfersUpdated(transfers map[string]Transfer)
}

// UnimplementedGameActionListener ignores every callback.
type UnimplementedGameActionListener struct{}

func (UnimplementedGameActionListener) OnChangeGameNameError(string)                 {}
func (UnimplementedGameActionListener) OnChangeIdentityNameError(string)             {}
func (UnimplementedGameActionListener) OnCreateIdentityAccountError(string)          {}
func (UnimplementedGameActionListener) OnCreateIdentityMemberError(string)           {}
func (UnimplementedGameActionListener) OnCreateGameError(string)                     {}
func (UnimplementedGameActionListener) OnDeleteIdentityError(string)                 {}
func (UnimplementedGameActionListener) OnGameNameChanged(string)                     {}
func (UnimplementedGameActionListener) OnHiddenIdentitiesUpdated(map[string]Identity) {}
func (UnimplementedGameActionListener) OnHiddenPlayersUpdated(map[string]Player)     {}
func (UnimplementedGameActionListener) OnIdentitiesUpdated(map[string]Identity)      {}
func (UnimplementedGameActionListener) OnIdentityCreated(Identity)                   {}
func (UnimplementedGameActionListener) OnIdentityReceived(Identity)                  {}
func (UnimplementedGameActionListener) OnIdentityRestored(Identity)                  {}
func (UnimplementedGameActionListener) OnJoinGameError()                             {}
func (UnimplementedGameActionListener) OnPlayerAdded(Player)                         {}
func (UnimplementedGameActionListener) OnPlayerChanged(Player)                       {}
func (UnimplementedGameActionListener) OnPlayersInitialized([]Player)                {}
func (UnimplementedGameActionListener) OnPlayerRemoved(Player)                       {}
func (UnimplementedGameActionListener) OnPlayersUpdated(map[string]Player)           {}
func (UnimplementedGameActionListener) OnQuitGameError()                             {}
func (UnimplementedGameActionListener) OnRestoreIdentityError(string)                {}
func (UnimplementedGameActionListener) OnTransferAdded(Transfer)                     {}
func (UnimplementedGameActionListener) OnTransferIdentityError(string)               {}
func (UnimplementedGameActionListener) OnTransferToPlayerError(string)               {}
func (UnimplementedGameActionListener) OnTransfersChanged([]Transfer)                {}
func (UnimplementedGameActionListener) OnTransfersInitialized([]Transfer)            {}
func (UnimplementedGameActionListener) OnTransfersUpdated(map[string]Transfer)       {}

// comparableListener reports whether l can be compared with == without
// panicking.
func comparableListener(l any) bool {
	t := reflect.TypeOf(l)
	return t != nil && t.Comparable()
}

// listenerSet is an ordered set of listeners compared by identity.
type listenerSet[L comparable] struct {
	items []L
}

// add appends l unless already present and reports whether it was added.
func (s *listenerSet[L]) add(l L) bool {
	for _, existing := range s.items {
		if existing == l {
			return false
		}
	}
	s.items = append(s.items, l)
	return true
}

// remove deletes l and reports whether it was present.
func (s *listenerSet[L]) remove(l L) bool {
	for i, existing := range s.items {
		if existing == l {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

func (s *listenerSet[L]) len() int {
	return len(s.items)
}

// each calls fn for a snapshot of the set, so fn may add or remove listeners.
func (s *listenerSet[L]) each(fn func(L)) {
	for _, l := range append([]L(nil), s.items...) {
		fn(l)
	}
}
