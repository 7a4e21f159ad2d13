package boardgame

import (
	"errors"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/boardledger/boardgame-go/internal/zone"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxTagLength is the longest game or identity name the service accepts.
const MaxTagLength = 160

var (
	// ErrNotJoined is returned by commands issued while the game is not JOINED.
	ErrNotJoined = errors.New("game is not joined")
	// ErrInvalidTag is returned for names that fail IsTagValid.
	ErrInvalidTag = fmt.Errorf("tag must be between 1 and %d characters", MaxTagLength)
	// ErrInvalidValue is returned for transfers of zero or negative value.
	ErrInvalidValue = errors.New("transfer value must be positive")
)

// IsTagValid reports whether tag is non-empty and at most MaxTagLength
// characters long.
func IsTagValid(tag string) bool {
	n := utf8.RuneCountInString(tag)
	return n > 0 && n <= MaxTagLength
}

// ChangeGameName renames the zone. The new name arrives through
// OnGameNameChanged once the service has applied it.
func (b *BoardGame) ChangeGameName(name string) error {
	if !IsTagValid(name) {
		return ErrInvalidTag
	}
	return b.whenJoined(func(st *State) {
		b.sendAction(st, zone.ChangeZoneName{Name: name},
			func(l GameActionListener) { l.OnChangeGameNameError(name) }, nil)
	})
}

// CreateIdentity creates a member owned by the client key and then an
// account owned by that member.
func (b *BoardGame) CreateIdentity(name string) error {
	if !IsTagValid(name) {
		return ErrInvalidTag
	}
	return b.whenJoined(func(st *State) {
		createMember := zone.CreateMember{
			OwnerPublicKeys: []zone.PublicKey{b.conn.ClientKey()},
			Name:            name,
		}
		b.sendAction(st, createMember,
			func(l GameActionListener) { l.OnCreateIdentityMemberError(name) },
			func(resp zone.Response) {
				created, ok := resp.(zone.CreateMemberSuccess)
				if !ok {
					return
				}
				b.sendAction(st, zone.CreateAccount{OwnerMemberIDs: []string{created.Member.ID}},
					func(l GameActionListener) { l.OnCreateIdentityAccountError(name) }, nil)
			})
	})
}

func (b *BoardGame) ChangeIdentityName(identity Identity, name string) error {
	if !IsTagValid(name) {
		return ErrInvalidTag
	}
	member := identity.Member
	member.Name = name
	return b.whenJoined(func(st *State) {
		b.sendAction(st, zone.UpdateMember{Member: member},
			func(l GameActionListener) { l.OnChangeIdentityNameError(name) }, nil)
	})
}

// TransferIdentity hands the identity's member over to the key that owns
// toPlayer.
func (b *BoardGame) TransferIdentity(identity Identity, toPlayer Player) error {
	member := identity.Member
	member.OwnerPublicKeys = slices.Clone(toPlayer.Member.OwnerPublicKeys)
	name := identity.Name()
	return b.whenJoined(func(st *State) {
		b.sendAction(st, zone.UpdateMember{Member: member},
			func(l GameActionListener) { l.OnTransferIdentityError(name) }, nil)
	})
}

// DeleteIdentity hides the identity. It stays restorable.
func (b *BoardGame) DeleteIdentity(identity Identity) error {
	return b.setIdentityHidden(identity, true, func(l GameActionListener, name string) {
		l.OnDeleteIdentityError(name)
	})
}

func (b *BoardGame) RestoreIdentity(identity Identity) error {
	return b.setIdentityHidden(identity, false, func(l GameActionListener, name string) {
		l.OnRestoreIdentityError(name)
	})
}

func (b *BoardGame) setIdentityHidden(identity Identity, hidden bool, onError func(GameActionListener, string)) error {
	metadata, err := identity.Member.Metadata.With("hidden", hidden)
	if err != nil {
		return fmt.Errorf("set hidden flag: %w", err)
	}
	member := identity.Member
	member.Metadata = metadata
	name := identity.Name()
	return b.whenJoined(func(st *State) {
		b.sendAction(st, zone.UpdateMember{Member: member},
			func(l GameActionListener) { onError(l, name) }, nil)
	})
}

// TransferToPlayer moves value from the from identity's account to each of
// the players' accounts, one transaction per player.
func (b *BoardGame) TransferToPlayer(actingAs, from Identity, to []Player, value decimal.Decimal) error {
	if !value.IsPositive() {
		return ErrInvalidValue
	}
	return b.whenJoined(func(st *State) {
		for _, p := range to {
			name := p.Name()
			cmd := zone.AddTransaction{
				ActingAs: actingAs.Member.ID,
				From:     from.Account.ID,
				To:       p.Account.ID,
				Value:    value,
			}
			b.sendAction(st, cmd, func(l GameActionListener) { l.OnTransferToPlayerError(name) }, nil)
		}
	})
}

// whenJoined runs fn on the loop with the current projection. It fails fast
// when not joined; if the session ends before fn runs, fn is skipped.
func (b *BoardGame) whenJoined(fn func(st *State)) error {
	if b.JoinState() != JoinStateJoined {
		return ErrNotJoined
	}
	b.registry.loop.post(func() {
		if b.state == nil {
			b.logger.Debug("dropping command, game no longer joined", zap.String("zone_id", b.zoneID))
			return
		}
		fn(b.state)
	})
	return nil
}

// sendAction sends a state-mutating command for the session st. Failures
// are reported through onError. Successful outcomes are normally silent, since
// the change arrives as a notification; onSuccess may be nil. Completions
// after the session ended are dropped.
func (b *BoardGame) sendAction(st *State, cmd zone.Command, onError func(GameActionListener), onSuccess func(zone.Response)) {
	zoneID := st.zone.ID
	b.send(zoneID, cmd, func(resp zone.Response, err error) {
		if b.state != st {
			return
		}
		if err != nil {
			b.logger.Warn("zone command failed",
				zap.String("zone_id", zoneID),
				zap.String("command", string(cmd.CommandType())),
				zap.Error(err))
			b.gameActionListeners.each(onError)
			return
		}
		switch r := resp.(type) {
		case zone.NotSet:
		case zone.Errors:
			b.logger.Warn("zone command rejected",
				zap.String("zone_id", zoneID),
				zap.String("command", string(cmd.CommandType())),
				zap.Error(r))
			b.gameActionListeners.each(onError)
		default:
			if onSuccess != nil {
				onSuccess(r)
			}
		}
	})
}
