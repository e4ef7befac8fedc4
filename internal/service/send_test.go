package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/payout_bot/internal/amount"
	"github.com/ivanoskov/payout_bot/internal/api"
	"github.com/ivanoskov/payout_bot/internal/model"
)

const evmAddress = "0x52908400098527886E0F7030069857D2E4169EE7"

func TestSendEmailEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	steps := []model.Step{env.start(t, model.FlowSend, SendToEmail).Step}
	for _, in := range []string{"alice@example.com", "1", "1", "5", "skip"} {
		steps = append(steps, env.text(t, in).Step)
	}
	r := env.action(t, ActionConfirm)

	assert.Equal(t, []model.Step{
		model.At(model.FlowSend, model.StepEmailRecipient),
		model.At(model.FlowSend, model.StepNetwork),
		model.At(model.FlowSend, model.StepToken),
		model.At(model.FlowSend, model.StepAmount),
		model.At(model.FlowSend, model.StepNote),
		model.At(model.FlowSend, model.StepConfirm),
	}, steps)

	require.Len(t, env.api.emailTransfers, 1)
	assert.Equal(t, model.EmailTransfer{
		Amount:        amount.ToBaseUnits("5"),
		Currency:      "USDC",
		ReceiverEmail: "alice@example.com",
		Network:       "137",
	}, env.api.emailTransfers[0])
	assert.Equal(t, "500000000", env.api.emailTransfers[0].Amount)

	assert.True(t, r.Step.IsZero())
	assert.Contains(t, r.Text, "Transfer submitted")
	assert.Contains(t, r.Text, "tr-1")

	sess := env.session(t)
	assert.False(t, sess.InFlow())
	assert.Empty(t, sess.Scratch)
	assert.True(t, sess.Authenticated)
}

func TestSendChoicePrompt(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	r := env.start(t, model.FlowSend, "")
	assert.True(t, r.Step.IsZero())
	require.Len(t, r.Buttons, 2)
	assert.Equal(t, SendChoiceData(SendToEmail), r.Buttons[0][0].Data)
	assert.Equal(t, SendChoiceData(SendToWallet), r.Buttons[1][0].Data)
}

func TestSendRequiresLogin(t *testing.T) {
	env := newTestEnv(t)

	r := env.start(t, model.FlowSend, SendToEmail)
	assert.Equal(t, msgLoginRequired, r.Text)
	assert.False(t, env.session(t).InFlow())
}

func TestSendInvalidEmailStaysOnStep(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToEmail)

	r := env.text(t, "not-an-email")
	assert.Equal(t, model.At(model.FlowSend, model.StepEmailRecipient), r.Step)
	assert.Contains(t, r.Text, "Invalid email")
	assert.Zero(t, env.api.balanceCalls)
}

func TestSendSelectionBounds(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToEmail)
	env.text(t, "alice@example.com")

	before := env.session(t)
	for _, in := range []string{"0", "3", "abc", "1.5", ""} {
		r := env.text(t, in)
		assert.Equal(t, model.At(model.FlowSend, model.StepNetwork), r.Step, in)
		assert.Contains(t, r.Text, "between 1 and 2", in)

		after := env.session(t)
		assert.Equal(t, before.Scratch, after.Scratch, in)
	}

	r := env.text(t, "2")
	assert.Equal(t, model.At(model.FlowSend, model.StepToken), r.Step)
	assert.Contains(t, r.Text, "1. USDC")
	assert.Contains(t, r.Text, "2. USDT")
}

func TestSendNoFunds(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.api.balances = []model.WalletBalance{{Network: "137"}}
	env.start(t, model.FlowSend, SendToEmail)

	r := env.text(t, "alice@example.com")
	assert.Equal(t, msgNoFunds, r.Text)
	assert.True(t, r.Step.IsZero())
	assert.Empty(t, env.session(t).Scratch)
}

func TestSendAmountValidation(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToEmail)
	env.text(t, "alice@example.com")
	env.text(t, "1")
	env.text(t, "1")

	cases := map[string]string{
		"-5":          "Invalid amount",
		"0":           "greater than zero",
		"1.123456789": "at most 8 decimal places",
		"ten":         "Invalid amount",
	}
	for in, want := range cases {
		r := env.text(t, in)
		assert.Equal(t, model.At(model.FlowSend, model.StepAmount), r.Step, in)
		assert.Contains(t, r.Text, want, in)
	}
	assert.False(t, env.session(t).HasField(keyAmount))
}

func TestSendLargeAmount(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToEmail)
	env.text(t, "alice@example.com")
	env.text(t, "1")
	env.text(t, "1")

	r := env.text(t, "150")
	assert.Equal(t, model.At(model.FlowSend, model.StepLargeAmount), r.Step)
	assert.Contains(t, r.Text, "large amount")

	r = env.text(t, "maybe")
	assert.Equal(t, model.At(model.FlowSend, model.StepLargeAmount), r.Step)

	r = env.action(t, ActionConfirm)
	assert.Equal(t, model.At(model.FlowSend, model.StepNote), r.Step)

	env.text(t, "rent")
	env.action(t, ActionConfirm)
	require.Len(t, env.api.emailTransfers, 1)
	assert.Equal(t, "15000000000", env.api.emailTransfers[0].Amount)
	assert.Equal(t, "rent", env.api.emailTransfers[0].Note)
}

func TestSendLargeAmountCancel(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToEmail)
	env.text(t, "alice@example.com")
	env.text(t, "1")
	env.text(t, "1")
	env.text(t, "500")

	r := env.text(t, "no")
	assert.True(t, r.Step.IsZero())
	assert.Contains(t, r.Text, "cancelled")
	assert.Empty(t, env.api.emailTransfers)
}

func TestSendNoteTooLong(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToEmail)
	env.text(t, "alice@example.com")
	env.text(t, "1")
	env.text(t, "1")
	env.text(t, "5")

	long := make([]rune, maxNoteLength+1)
	for i := range long {
		long[i] = 'a'
	}
	r := env.text(t, string(long))
	assert.Equal(t, model.At(model.FlowSend, model.StepNote), r.Step)
	assert.Contains(t, r.Text, "too long")
}

func TestSendConfirmRequiresDecision(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToEmail)
	for _, in := range []string{"alice@example.com", "1", "1", "5", "skip"} {
		env.text(t, in)
	}

	r := env.text(t, "what?")
	assert.Equal(t, model.At(model.FlowSend, model.StepConfirm), r.Step)
	assert.Contains(t, r.Text, msgConfirmOrCancel)
	assert.Empty(t, env.api.emailTransfers)

	r = env.text(t, "confirm")
	assert.True(t, r.Step.IsZero())
	assert.Len(t, env.api.emailTransfers, 1)
}

func TestSendWalletInvalidForAllNetworks(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToWallet)

	r := env.text(t, "definitely not an address")
	assert.Equal(t, model.At(model.FlowSend, model.StepWalletRecipient), r.Step)
	assert.Contains(t, r.Text, "not valid for any")
	assert.False(t, env.session(t).HasField(keyRecipient))
}

func TestSendWalletAddressWarning(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.api.balances = []model.WalletBalance{
		{Network: "137", Tokens: []model.TokenBalance{{Symbol: "USDC"}}},
		{Network: "tron", Tokens: []model.TokenBalance{{Symbol: "USDT"}}},
	}
	env.start(t, model.FlowSend, SendToWallet)

	r := env.text(t, evmAddress)
	assert.Equal(t, model.At(model.FlowSend, model.StepNetwork), r.Step)
	assert.Contains(t, r.Text, "Polygon ✅")
	assert.Contains(t, r.Text, "Tron ⚠️ address not valid")

	r = env.text(t, "2")
	assert.Equal(t, model.At(model.FlowSend, model.StepAddressWarning), r.Step)

	r = env.text(t, "hmm")
	assert.Equal(t, model.At(model.FlowSend, model.StepAddressWarning), r.Step)

	r = env.action(t, ActionReenter)
	assert.Equal(t, model.At(model.FlowSend, model.StepWalletRecipient), r.Step)
	sess := env.session(t)
	assert.False(t, sess.HasField(keyRecipient))
	assert.False(t, sess.HasField(keyNetwork))
	assert.True(t, sess.HasField(keyMode))

	env.text(t, evmAddress)
	env.text(t, "2")
	r = env.action(t, ActionContinue)
	assert.Equal(t, model.At(model.FlowSend, model.StepToken), r.Step)

	env.text(t, "1")
	env.text(t, "3")
	env.text(t, "skip")
	r = env.action(t, ActionConfirm)
	assert.True(t, r.Step.IsZero())

	require.Len(t, env.api.walletTransfers, 1)
	assert.Equal(t, model.WalletTransfer{
		Amount:          "300000000",
		Currency:        "USDT",
		ReceiverAddress: evmAddress,
		Network:         "tron",
	}, env.api.walletTransfers[0])
}

func TestSendWalletValidNetworkSkipsWarning(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToWallet)
	env.text(t, evmAddress)

	r := env.text(t, "1")
	assert.Equal(t, model.At(model.FlowSend, model.StepToken), r.Step)
}

func TestSendCancelClearsScratch(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToEmail)
	env.text(t, "alice@example.com")
	env.text(t, "1")

	r := env.action(t, ActionCancel)
	assert.True(t, r.Step.IsZero())
	assert.Contains(t, r.Text, "Transfer cancelled")
	assert.Empty(t, env.session(t).Scratch)

	// новый флоу не видит значений прошлого
	env.start(t, model.FlowSend, SendToWallet)
	sess := env.session(t)
	assert.False(t, sess.HasField(keyRecipient))
	assert.False(t, sess.HasField(keyNetworks))
	mode, err := field[string](sess, keyMode)
	require.NoError(t, err)
	assert.Equal(t, SendToWallet, mode)
}

func TestSendAuthExpiredLogsOut(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.notifier.Subscribe(testUser, "token", "org-1")
	env.api.sendErr = &api.Error{Status: 401, Message: "Unauthorized"}

	env.start(t, model.FlowSend, SendToEmail)
	for _, in := range []string{"alice@example.com", "1", "1", "5", "skip"} {
		env.text(t, in)
	}
	r := env.action(t, ActionConfirm)

	assert.True(t, r.Step.IsZero())
	assert.Contains(t, r.Text, "session has expired")
	assert.Contains(t, r.Text, "/login")

	sess := env.session(t)
	assert.False(t, sess.Authenticated)
	assert.Empty(t, sess.Token)
	assert.Empty(t, sess.Scratch)
	assert.Equal(t, []int64{testUser}, env.notifier.unsubscribed)
}

func TestSendBusinessRuleFailure(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.api.sendErr = &api.Error{Status: 400, Message: "Insufficient balance for transfer"}

	env.start(t, model.FlowSend, SendToEmail)
	for _, in := range []string{"alice@example.com", "1", "1", "5", "skip"} {
		env.text(t, in)
	}
	r := env.action(t, ActionConfirm)

	assert.Contains(t, r.Text, "Transfer was not completed: insufficient balance")
	assert.Contains(t, r.Text, "Insufficient balance for transfer")
	sess := env.session(t)
	assert.True(t, sess.Authenticated)
	assert.False(t, sess.InFlow())
	assert.Empty(t, sess.Scratch)
}

func TestSendUsesBalanceCache(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.start(t, model.FlowSend, SendToEmail)
	env.text(t, "alice@example.com")
	env.text(t, "1")
	assert.Equal(t, 1, env.api.balanceCalls)

	env.text(t, "1")
	env.text(t, "5")
	env.text(t, "skip")
	env.action(t, ActionConfirm)
	assert.Equal(t, 1, env.cache.invalidated)

	_, ok := env.cache.Get(testUser)
	assert.False(t, ok)
}
