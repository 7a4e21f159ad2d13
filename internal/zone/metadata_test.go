package zone

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataZeroValue(t *testing.T) {
	var m Metadata
	assert.True(t, m.IsZero())
	assert.False(t, m.Bool("hidden"))
	_, ok := m.String("currency")
	assert.False(t, ok)
	assert.True(t, m.Equal(Metadata{}))

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestMetadataWithDoesNotMutate(t *testing.T) {
	original := MustMetadata(map[string]any{"hidden": false, "colour": "red"})

	hidden, err := original.With("hidden", true)
	require.NoError(t, err)

	assert.False(t, original.Bool("hidden"))
	assert.True(t, hidden.Bool("hidden"))
	colour, ok := hidden.String("colour")
	require.True(t, ok)
	assert.Equal(t, "red", colour)
	assert.False(t, original.Equal(hidden))
}

func TestMetadataStringRejectsOtherKinds(t *testing.T) {
	m := MustMetadata(map[string]any{"currency": 42})
	_, ok := m.String("currency")
	assert.False(t, ok)
}

func TestMemberOmitsEmptyMetadata(t *testing.T) {
	data, err := json.Marshal(Member{ID: "1", OwnerPublicKeys: []PublicKey{"k"}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "metadata")

	var m Member
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","owner_public_keys":["k"],"metadata":{"hidden":true}}`), &m))
	assert.True(t, m.Hidden())
}
