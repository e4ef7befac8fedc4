package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/payout_bot/internal/model"
)

func TestParseCallback(t *testing.T) {
	cases := []struct {
		data string
		want Input
		ok   bool
	}{
		{"flow:confirm", Input{Action: ActionConfirm}, true},
		{"flow:cancel", Input{Action: ActionCancel}, true},
		{"flow:continue", Input{Action: ActionContinue}, true},
		{"flow:reenter", Input{Action: ActionReenter}, true},
		{"flow:input:2", Input{Text: "2"}, true},
		{"flow:input:YES", Input{Text: "YES"}, true},
		{"flow:explode", Input{}, false},
		{"send:email", Input{}, false},
		{"", Input{}, false},
	}
	for _, c := range cases {
		got, ok := ParseCallback(c.data)
		assert.Equal(t, c.ok, ok, c.data)
		assert.Equal(t, c.want, got, c.data)
	}
}

func TestParseSelection(t *testing.T) {
	idx, ok := parseSelection(" 3 ", 3)
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	for _, in := range []string{"0", "4", "-1", "abc", "", "1.0"} {
		_, ok := parseSelection(in, 3)
		assert.False(t, ok, in)
	}
}

func TestDecision(t *testing.T) {
	assert.Equal(t, ActionConfirm, decision(Input{Text: " Yes "}))
	assert.Equal(t, ActionCancel, decision(Input{Text: "N"}))
	assert.Equal(t, ActionContinue, decision(Input{Text: "continue"}))
	assert.Equal(t, ActionReenter, decision(Input{Text: "re-enter"}))
	assert.Equal(t, ActionNone, decision(Input{Text: "maybe"}))
	assert.Equal(t, ActionCancel, decision(Input{Text: "yes", Action: ActionCancel}))
}

func TestNetworksAndTokens(t *testing.T) {
	balances := []model.WalletBalance{
		{Network: "137", Tokens: []model.TokenBalance{{Symbol: "USDC"}}},
		{Network: "1"},
		{Network: "137", Tokens: []model.TokenBalance{{Symbol: "USDC"}, {Symbol: "USDT"}}},
		{Network: "8453", Tokens: []model.TokenBalance{{Symbol: ""}, {Symbol: "USDC"}}},
	}
	assert.Equal(t, []string{"137", "8453"}, networksOf(balances))
	assert.Equal(t, []string{"USDC", "USDT"}, tokensOn(balances, "137"))
	assert.Equal(t, []string{"USDC"}, tokensOn(balances, "8453"))
	assert.Empty(t, tokensOn(balances, "1"))
}

func TestHandleInputWithoutFlow(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	r := env.text(t, "hello")
	assert.Equal(t, msgNoActiveFlow, r.Text)

	r, err := env.engine.Cancel(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, msgNothingToCancel, r.Text)
}

func TestStaleFlowAction(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToEmail)

	r, err := env.engine.HandleFlowInput(context.Background(), testUser, Input{Flow: model.FlowBatch, Action: ActionConfirm})
	require.NoError(t, err)
	assert.Equal(t, msgStaleAction, r.Text)
	assert.Equal(t, model.At(model.FlowSend, model.StepEmailRecipient), r.Step)
}

func TestUnknownStepResets(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	sess := env.session(t)
	sess.Step = model.At(model.FlowSend, "select_recipient_type")
	require.NoError(t, sess.SetField("leftover", 1))
	require.NoError(t, env.sessions.Save(context.Background(), sess))

	r := env.text(t, "anything")
	assert.Equal(t, msgFlowReset, r.Text)
	assert.True(t, r.Step.IsZero())
	assert.Empty(t, env.session(t).Scratch)
}

func TestFlowInputAfterLogout(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToEmail)

	sess := env.session(t)
	sess.Authenticated = false
	require.NoError(t, env.sessions.Save(context.Background(), sess))

	r := env.text(t, "alice@example.com")
	assert.Equal(t, msgLoginRequired, r.Text)
	assert.False(t, env.session(t).InFlow())
}

func TestStartingFlowReplacesPrevious(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToEmail)
	env.text(t, "alice@example.com")

	r := env.start(t, model.FlowBatch, "")
	assert.Equal(t, model.At(model.FlowBatch, model.StepEntries), r.Step)

	sess := env.session(t)
	assert.False(t, sess.HasField(keyRecipient))
	assert.False(t, sess.HasField(keyNetworks))
	assert.True(t, sess.HasField(keyEntries))
}

func TestActiveStep(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	step, err := env.engine.ActiveStep(context.Background(), testUser)
	require.NoError(t, err)
	assert.True(t, step.IsZero())

	env.start(t, model.FlowBatch, "")
	step, err = env.engine.ActiveStep(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, "batch_entries", step.String())
}
