package boardgame

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/boardledger/boardgame-go/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTagValid(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want bool
	}{
		{"empty", "", false},
		{"single character", "a", true},
		{"at limit", strings.Repeat("x", MaxTagLength), true},
		{"over limit", strings.Repeat("x", MaxTagLength+1), false},
		{"multibyte at limit", strings.Repeat("é", MaxTagLength), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTagValid(tt.tag))
		})
	}
}

func TestCommandsRequireJoinedGame(t *testing.T) {
	h := newHarness(t)
	game := h.registry.Game("zone-1", 0)

	assert.ErrorIs(t, game.ChangeGameName("New name"), ErrNotJoined)
	assert.ErrorIs(t, game.CreateIdentity("Carol"), ErrNotJoined)
	assert.ErrorIs(t, game.ChangeGameName(""), ErrInvalidTag)
	assert.ErrorIs(t, game.TransferToPlayer(Identity{}, Identity{}, nil, dec("0")), ErrInvalidValue)
	assert.Empty(t, h.conn.sent())
}

func waitForCommand(t *testing.T, h *harness, n int) zone.Command {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.conn.sent()) >= n }, 2*time.Second, 5*time.Millisecond)
	return h.conn.lastCommand()
}

func TestChangeGameNameReportsRejection(t *testing.T) {
	h := newHarness(t)
	l := &recorder{}
	game := h.joinedGame(l)
	h.conn.setResponder(func(string, zone.Command) (zone.Response, error) {
		return zone.Errors{Errors: []zone.Error{{Code: 3, Description: "name taken"}}}, nil
	})

	require.NoError(t, game.ChangeGameName("Saturday game"))
	cmd := waitForCommand(t, h, 2)
	assert.Equal(t, zone.ChangeZoneName{Name: "Saturday game"}, cmd)

	require.Eventually(t, func() bool { return l.count("OnChangeGameNameError") == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Saturday game"}, l.errorNames())
	assert.Equal(t, JoinStateJoined, game.JoinState())
}

func TestNotSetAndSuccessResponsesAreSilent(t *testing.T) {
	h := newHarness(t)
	l := &recorder{}
	game := h.joinedGame(l)
	h.conn.setResponder(func(_ string, cmd zone.Command) (zone.Response, error) {
		switch c := cmd.(type) {
		case zone.ChangeZoneName:
			if c.Name == "first" {
				return zone.NotSet{}, nil
			}
			if c.Name == "second" {
				return zone.Success{}, nil
			}
		}
		return zone.Errors{Errors: []zone.Error{{Code: 1}}}, nil
	})

	require.NoError(t, game.ChangeGameName("first"))
	require.NoError(t, game.ChangeGameName("second"))
	require.NoError(t, game.ChangeGameName("third"))

	// The single worker answers in order, so the third error arrives last.
	require.Eventually(t, func() bool { return l.count("OnChangeGameNameError") == 1 }, 2*time.Second, 5*time.Millisecond)
	h.drain()
	assert.Equal(t, []string{"third"}, l.errorNames())
}

func TestTransportErrorIsReportedLikeRejection(t *testing.T) {
	h := newHarness(t)
	l := &recorder{}
	game := h.joinedGame(l)
	h.conn.setResponder(func(string, zone.Command) (zone.Response, error) {
		return nil, errors.New("deadline exceeded")
	})

	require.NoError(t, game.TransferToPlayer(
		game.Identities()["M1"], game.Identities()["M1"], []Player{game.Players()["M2"]}, dec("5"),
	))
	require.Eventually(t, func() bool { return l.count("OnTransferToPlayerError") == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Bob"}, l.errorNames())
}

func TestCreateIdentityCreatesMemberThenAccount(t *testing.T) {
	h := newHarness(t)
	game := h.joinedGame(&recorder{})
	h.conn.setResponder(func(_ string, cmd zone.Command) (zone.Response, error) {
		if c, ok := cmd.(zone.CreateMember); ok {
			return zone.CreateMemberSuccess{Member: zone.Member{ID: "M9", OwnerPublicKeys: c.OwnerPublicKeys, Name: c.Name}}, nil
		}
		return zone.CreateAccountSuccess{Account: zone.Account{ID: "A9", OwnerMemberIDs: []string{"M9"}}}, nil
	})

	require.NoError(t, game.CreateIdentity("Carol"))
	cmd := waitForCommand(t, h, 3)

	h.conn.mu.Lock()
	createMember, ok := h.conn.commands[1].(zone.CreateMember)
	h.conn.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, []zone.PublicKey{localKey}, createMember.OwnerPublicKeys)
	assert.Equal(t, "Carol", createMember.Name)
	assert.Equal(t, zone.CreateAccount{OwnerMemberIDs: []string{"M9"}}, cmd)
}

func TestCreateIdentityAccountFailure(t *testing.T) {
	h := newHarness(t)
	l := &recorder{}
	game := h.joinedGame(l)
	h.conn.setResponder(func(_ string, cmd zone.Command) (zone.Response, error) {
		if _, ok := cmd.(zone.CreateMember); ok {
			return zone.CreateMemberSuccess{Member: zone.Member{ID: "M9"}}, nil
		}
		return zone.Errors{Errors: []zone.Error{{Code: 2}}}, nil
	})

	require.NoError(t, game.CreateIdentity("Carol"))
	require.Eventually(t, func() bool { return l.count("OnCreateIdentityAccountError") == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, l.count("OnCreateIdentityMemberError"))
}

func TestIdentityCommands(t *testing.T) {
	h := newHarness(t)
	game := h.joinedGame(&recorder{})
	alice := game.Identities()["M1"]
	bob := game.Players()["M2"]

	require.NoError(t, game.ChangeIdentityName(alice, "Alicia"))
	renamed := waitForCommand(t, h, 2).(zone.UpdateMember)
	assert.Equal(t, "Alicia", renamed.Member.Name)
	assert.Equal(t, "Alice", alice.Member.Name, "the caller's identity is left untouched")

	require.NoError(t, game.DeleteIdentity(alice))
	deleted := waitForCommand(t, h, 3).(zone.UpdateMember)
	assert.True(t, deleted.Member.Hidden())
	assert.Equal(t, "M1", deleted.Member.ID)

	require.NoError(t, game.RestoreIdentity(alice))
	restored := waitForCommand(t, h, 4).(zone.UpdateMember)
	assert.False(t, restored.Member.Hidden())
	assert.False(t, restored.Member.Metadata.IsZero())

	require.NoError(t, game.TransferIdentity(alice, bob))
	transferred := waitForCommand(t, h, 5).(zone.UpdateMember)
	assert.Equal(t, []zone.PublicKey{remoteKey}, transferred.Member.OwnerPublicKeys)
	assert.Equal(t, []zone.PublicKey{localKey}, alice.Member.OwnerPublicKeys)
}

func TestTransferToPlayerSendsOneTransactionEach(t *testing.T) {
	h := newHarness(t)
	game := h.joinedGame(&recorder{})
	banker := game.Identities()["M0"]
	players := game.Players()

	require.NoError(t, game.TransferToPlayer(banker, banker, []Player{players["M1"], players["M2"]}, dec("1.50")))
	waitForCommand(t, h, 3)

	h.conn.mu.Lock()
	defer h.conn.mu.Unlock()
	var destinations []string
	for _, cmd := range h.conn.commands[1:] {
		tx, ok := cmd.(zone.AddTransaction)
		require.True(t, ok)
		assert.Equal(t, "M0", tx.ActingAs)
		assert.Equal(t, "A0", tx.From)
		assert.True(t, tx.Value.Equal(dec("1.5")))
		destinations = append(destinations, tx.To)
	}
	assert.ElementsMatch(t, []string{"A1", "A2"}, destinations)
}

func TestCommandCompletionAfterDisconnectIsDropped(t *testing.T) {
	h := newHarness(t)
	l := &recorder{}
	game := h.joinedGame(l)
	release := make(chan struct{})
	h.conn.setResponder(func(string, zone.Command) (zone.Response, error) {
		<-release
		return zone.Errors{Errors: []zone.Error{{Code: 1}}}, nil
	})

	require.NoError(t, game.ChangeGameName("Saturday game"))
	waitForCommand(t, h, 2)
	h.conn.setState(zone.ConnectionStateGeneralFailure)
	h.drain()
	close(release)

	// Flush the worker and the loop behind the released command.
	h.conn.setResponder(zoneResponder(testZone()))
	h.conn.setState(zone.ConnectionStateOnline)
	h.waitForState(game, JoinStateJoined)
	h.drain()
	assert.Zero(t, l.count("OnChangeGameNameError"))
}
