package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionScratchRoundTrip(t *testing.T) {
	s := NewSession(42)
	require.NoError(t, s.SetField("networks", []string{"1", "137"}))
	require.NoError(t, s.SetField("entries", BatchEntries{{Email: "bob@x.com", Amount: "5"}}))

	// сессия должна пережить сериализацию в хранилище
	data, err := json.Marshal(s)
	require.NoError(t, err)
	var restored Session
	require.NoError(t, json.Unmarshal(data, &restored))

	var networks []string
	ok, err := restored.Field("networks", &networks)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"1", "137"}, networks)

	var entries BatchEntries
	ok, err = restored.Field("entries", &entries)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, entries.Index("BOB@x.com"))
}

func TestSessionResetAndLogout(t *testing.T) {
	s := NewSession(7)
	s.Login(&AuthResult{AccessToken: "tok", User: User{Email: "a@b.co", OrganizationID: "org"}})
	s.Step = At(FlowSend, StepAmount)
	require.NoError(t, s.SetField("amount", "5"))

	assert.True(t, s.InFlow())
	assert.Equal(t, "send_amount", s.Step.String())

	s.Reset()
	assert.False(t, s.InFlow())
	assert.False(t, s.HasField("amount"))
	assert.True(t, s.Authenticated)

	s.Logout()
	assert.False(t, s.Authenticated)
	assert.Empty(t, s.Token)
	assert.Equal(t, int64(7), s.UserID)
}

func TestClearFieldsSingleKey(t *testing.T) {
	s := NewSession(1)
	require.NoError(t, s.SetField("a", 1))
	require.NoError(t, s.SetField("b", 2))

	s.ClearFields("a")
	assert.False(t, s.HasField("a"))
	assert.True(t, s.HasField("b"))

	s.ClearFields()
	assert.Empty(t, s.Scratch)
}

func TestNetworkNames(t *testing.T) {
	assert.Equal(t, "Polygon", NetworkName("137"))
	assert.Equal(t, "Solana", NetworkName("solana"))
	assert.Equal(t, "ethereum", NetworkKey("1"))
	assert.Equal(t, "tron", NetworkKey(" TRON "))
}
