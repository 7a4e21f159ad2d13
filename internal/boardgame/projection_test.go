package boardgame

import (
	"testing"

	"github.com/boardledger/boardgame-go/internal/zone"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalancesFromTransactions(t *testing.T) {
	balances := balancesFromTransactions(map[string]zone.Transaction{
		"T1": {ID: "T1", From: "A0", To: "A1", Value: dec("100")},
		"T2": {ID: "T2", From: "A1", To: "A2", Value: dec("0.10")},
		"T3": {ID: "T3", From: "A1", To: "A2", Value: dec("0.20")},
	})

	assert.True(t, balances["A0"].Equal(dec("-100")))
	assert.True(t, balances["A1"].Equal(dec("99.70")))
	assert.True(t, balances["A2"].Equal(dec("0.3")), "decimal sums must not lose precision")
	assert.True(t, balances["A9"].Equal(decimal.Zero))
}

func TestMembersAccountsIgnoresSharedAndOrphanAccounts(t *testing.T) {
	membersAccounts := membersAccountsFromAccounts(map[string]zone.Account{
		"A1": {ID: "A1", OwnerMemberIDs: []string{"M1"}},
		"A2": {ID: "A2", OwnerMemberIDs: []string{"M1", "M2"}},
		"A3": {ID: "A3"},
		"A4": {ID: "A4", OwnerMemberIDs: []string{"M4"}},
		"A5": {ID: "A5", OwnerMemberIDs: []string{"M4"}},
	})

	assert.Equal(t, map[string]string{"M1": "A1", "M4": "A5"}, membersAccounts)
	assert.Equal(t, map[string]string{"A1": "M1", "A5": "M4"}, accountsMembers(membersAccounts))
}

func TestIdentitiesAndPlayersPartition(t *testing.T) {
	z := testZone()
	z.Members["M3"] = zone.Member{
		ID:              "M3",
		OwnerPublicKeys: []zone.PublicKey{localKey},
		Name:            "Old me",
		Metadata:        zone.MustMetadata(map[string]any{"hidden": true}),
	}
	z.Members["M4"] = zone.Member{ID: "M4", OwnerPublicKeys: []zone.PublicKey{localKey, remoteKey}, Name: "Both of us"}
	z.Accounts["A3"] = zone.Account{ID: "A3", OwnerMemberIDs: []string{"M3"}}
	z.Accounts["A4"] = zone.Account{ID: "A4", OwnerMemberIDs: []string{"M4"}}

	membersAccounts := membersAccountsFromAccounts(z.Accounts)
	balances := map[string]decimal.Decimal{"A1": dec("7")}

	identities, hiddenIdentities := identitiesFromMembersAccounts(&z, membersAccounts, balances, localKey)
	assert.ElementsMatch(t, []string{"M0", "M1"}, keys(identities))
	assert.ElementsMatch(t, []string{"M3"}, keys(hiddenIdentities))
	assert.True(t, identities["M1"].Balance.Equal(dec("7")))
	assert.True(t, identities["M0"].IsBanker)
	assert.Equal(t, "GBP", identities["M0"].Currency)

	connected := map[zone.PublicKey]struct{}{remoteKey: {}}
	players, hiddenPlayers := playersFromMembersAccounts(&z, membersAccounts, balances, connected)
	assert.ElementsMatch(t, []string{"M0", "M1", "M2"}, keys(players), "multi-key members are not players")
	assert.ElementsMatch(t, []string{"M3"}, keys(hiddenPlayers))
	assert.True(t, players["M2"].IsConnected)
	assert.False(t, players["M1"].IsConnected)
}

func TestTransfersResolveEndpoints(t *testing.T) {
	z := testZone()
	z.Accounts["A5"] = zone.Account{ID: "A5", OwnerMemberIDs: []string{"M1", "M2"}, Name: "Kitty"}
	z.Transactions = map[string]zone.Transaction{
		"T1": {ID: "T1", From: "A1", To: "A5", Value: dec("3")},
		"T2": {ID: "T2", From: "A2", To: "A9", Value: dec("1")},
	}
	st := newState(z, nil, localKey)

	require.Len(t, st.transfers, 2)
	t1 := st.transfers["T1"]
	require.NotNil(t, t1.FromPlayer)
	assert.Equal(t, "M1", t1.FromPlayer.Member.ID)
	assert.Nil(t, t1.ToPlayer)
	require.NotNil(t, t1.ToAccount)
	assert.Equal(t, "Kitty", t1.ToName())

	t2 := st.transfers["T2"]
	assert.Nil(t, t2.ToAccount)
	assert.Equal(t, "A9", t2.ToName())
	assert.Equal(t, "Bob", t2.FromName())
}

func TestDerivationIsDeterministic(t *testing.T) {
	z := testZone()
	z.Transactions = map[string]zone.Transaction{
		"T1": {ID: "T1", From: "A1", To: "A2", Value: dec("3")},
	}
	first := newState(z, map[string]zone.PublicKey{"c": remoteKey}, localKey)
	second := newState(z, map[string]zone.PublicKey{"c": remoteKey}, localKey)

	assert.True(t, mapsEqual(first.identities, second.identities, Identity.Equal))
	assert.True(t, mapsEqual(first.players, second.players, Player.Equal))
	assert.True(t, mapsEqual(first.transfers, second.transfers, Transfer.Equal))
}

func TestNewStateDoesNotAliasSnapshot(t *testing.T) {
	z := testZone()
	st := newState(z, nil, localKey)
	st.zone.Members["M9"] = zone.Member{ID: "M9"}

	assert.NotContains(t, z.Members, "M9")
	assert.NotNil(t, st.connectedClients)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
