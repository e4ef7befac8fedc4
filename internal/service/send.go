package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ivanoskov/payout_bot/internal/amount"
	"github.com/ivanoskov/payout_bot/internal/model"
	"github.com/ivanoskov/payout_bot/internal/validate"
)

// Ключи scratch
const (
	keyMode      = "mode"
	keyRecipient = "recipient"
	keyNetworks  = "networks"
	keyValidity  = "address_validity"
	keyNetwork   = "network"
	keyTokens    = "tokens"
	keyToken     = "token"
	keyAmount    = "amount"
	keyNote      = "note"
)

// Варианты флоу send
const (
	SendToEmail  = "email"
	SendToWallet = "wallet"
)

const maxNoteLength = 200

func (e *Engine) startSend(_ context.Context, sess *model.Session, choice string) (*Reply, error) {
	switch choice {
	case SendToEmail:
		if err := sess.SetField(keyMode, SendToEmail); err != nil {
			return nil, err
		}
		sess.Step = model.At(model.FlowSend, model.StepEmailRecipient)
		return emailRecipientPrompt(), nil
	case SendToWallet:
		if err := sess.SetField(keyMode, SendToWallet); err != nil {
			return nil, err
		}
		sess.Step = model.At(model.FlowSend, model.StepWalletRecipient)
		return walletRecipientPrompt(), nil
	default:
		return reply("💸 How would you like to send funds?",
			[]Button{{Text: "📧 To email", Data: SendChoiceData(SendToEmail)}},
			[]Button{{Text: "👛 To wallet address", Data: SendChoiceData(SendToWallet)}},
		), nil
	}
}

// SendChoiceData - данные кнопки выбора варианта отправки
func SendChoiceData(choice string) string {
	return "send:" + choice
}

func emailRecipientPrompt() *Reply {
	return reply("📧 Enter the recipient's email address:\n\n(/cancel to abort)")
}

func walletRecipientPrompt() *Reply {
	return reply("👛 Enter the recipient's wallet address:\n\n(/cancel to abort)")
}

func (e *Engine) sendEmailRecipient(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
	email := strings.TrimSpace(in.Text)
	if !validate.IsValidEmail(email) {
		return reprompt("❌ Invalid email format.", emailRecipientPrompt()), nil
	}

	balances, err := e.fetchBalances(ctx, sess)
	if err != nil {
		return nil, err
	}
	networks := networksOf(balances)
	if len(networks) == 0 {
		return e.stop(sess, msgNoFunds), nil
	}

	if err := setFields(sess, map[string]any{keyRecipient: email, keyNetworks: networks}); err != nil {
		return nil, err
	}
	sess.Step = model.At(model.FlowSend, model.StepNetwork)

	r, err := e.networkPrompt(sess)
	if err != nil {
		return nil, err
	}
	if s := validate.SuggestEmailCorrection(email); s.HasTypo {
		r.Text = fmt.Sprintf("⚠️ Did you mean %s? If so, use /cancel and start again.\n\n%s", s.Suggestion, r.Text)
	}
	return r, nil
}

func (e *Engine) sendWalletRecipient(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
	address := strings.TrimSpace(in.Text)
	if address == "" {
		return reprompt("❌ Invalid wallet address.", walletRecipientPrompt()), nil
	}

	balances, err := e.fetchBalances(ctx, sess)
	if err != nil {
		return nil, err
	}
	networks := networksOf(balances)
	if len(networks) == 0 {
		return e.stop(sess, msgNoFunds), nil
	}

	validity := addressValidity(address, networks)
	anyValid := false
	for _, ok := range validity {
		anyValid = anyValid || ok
	}
	if !anyValid {
		return reprompt("❌ This address is not valid for any of your networks.", walletRecipientPrompt()), nil
	}

	if err := setFields(sess, map[string]any{
		keyRecipient: address,
		keyNetworks:  networks,
		keyValidity:  validity,
	}); err != nil {
		return nil, err
	}
	sess.Step = model.At(model.FlowSend, model.StepNetwork)
	return e.networkPrompt(sess)
}

// addressValidity проверяет адрес для каждой сети, переводя chain id в имя сети
func addressValidity(address string, networks []string) []bool {
	keys := make([]string, len(networks))
	for i, n := range networks {
		keys[i] = model.NetworkKey(n)
	}
	return validate.ValidFor(address, keys)
}

func (e *Engine) networkPrompt(sess *model.Session) (*Reply, error) {
	networks, err := field[[]string](sess, keyNetworks)
	if err != nil {
		return nil, err
	}
	var validity []bool
	if _, err := sess.Field(keyValidity, &validity); err != nil {
		return nil, err
	}

	options := make([]string, len(networks))
	for i, n := range networks {
		options[i] = model.NetworkName(n)
		if i < len(validity) {
			if validity[i] {
				options[i] += " ✅"
			} else {
				options[i] += " ⚠️ address not valid"
			}
		}
	}
	return numberedOptions("🌐 Select network:", options), nil
}

func (e *Engine) sendNetwork(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
	networks, err := field[[]string](sess, keyNetworks)
	if err != nil {
		return nil, err
	}
	idx, ok := parseSelection(in.Text, len(networks))
	if !ok {
		r, err := e.networkPrompt(sess)
		if err != nil {
			return nil, err
		}
		return reprompt(selectionProblem(len(networks)), r), nil
	}

	network := networks[idx]
	balances, err := e.fetchBalances(ctx, sess)
	if err != nil {
		return nil, err
	}
	tokens := tokensOn(balances, network)
	if len(tokens) == 0 {
		return e.stop(sess, fmt.Sprintf("❌ You have no tokens on %s.\n\n%s", model.NetworkName(network), msgBackToMenu)), nil
	}
	if err := setFields(sess, map[string]any{keyNetwork: network, keyTokens: tokens}); err != nil {
		return nil, err
	}

	var validity []bool
	if _, err := sess.Field(keyValidity, &validity); err != nil {
		return nil, err
	}
	if idx < len(validity) && !validity[idx] {
		sess.Step = model.At(model.FlowSend, model.StepAddressWarning)
		return addressWarningPrompt(sess)
	}

	sess.Step = model.At(model.FlowSend, model.StepToken)
	return tokenPrompt(sess)
}

func addressWarningPrompt(sess *model.Session) (*Reply, error) {
	network, err := field[string](sess, keyNetwork)
	if err != nil {
		return nil, err
	}
	return reply(
		fmt.Sprintf("⚠️ The address does not look valid for %s. Funds sent to a wrong address may be lost.", model.NetworkName(network)),
		[]Button{actionButton("➡️ Continue anyway", ActionContinue)},
		[]Button{actionButton("✏️ Re-enter address", ActionReenter)},
		[]Button{actionButton("❌ Cancel", ActionCancel)},
	), nil
}

func (e *Engine) sendAddressWarning(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
	switch decision(in) {
	case ActionContinue, ActionConfirm:
		sess.Step = model.At(model.FlowSend, model.StepToken)
		return tokenPrompt(sess)
	case ActionReenter:
		sess.ClearFields(keyRecipient, keyNetworks, keyValidity, keyNetwork, keyTokens)
		sess.Step = model.At(model.FlowSend, model.StepWalletRecipient)
		return walletRecipientPrompt(), nil
	case ActionCancel:
		return e.cancelInHandler(sess), nil
	}
	r, err := addressWarningPrompt(sess)
	if err != nil {
		return nil, err
	}
	return reprompt("Please choose one of the options below.", r), nil
}

func tokenPrompt(sess *model.Session) (*Reply, error) {
	tokens, err := field[[]string](sess, keyTokens)
	if err != nil {
		return nil, err
	}
	return numberedOptions("🪙 Select token:", tokens), nil
}

// selectToken - общий шаг выбора токена для send и withdraw
func (e *Engine) selectToken(sess *model.Session, in Input, next model.Step) (*Reply, error) {
	tokens, err := field[[]string](sess, keyTokens)
	if err != nil {
		return nil, err
	}
	idx, ok := parseSelection(in.Text, len(tokens))
	if !ok {
		r, err := tokenPrompt(sess)
		if err != nil {
			return nil, err
		}
		return reprompt(selectionProblem(len(tokens)), r), nil
	}
	if err := sess.SetField(keyToken, tokens[idx]); err != nil {
		return nil, err
	}
	sess.Step = next
	return amountPrompt(tokens[idx]), nil
}

func (e *Engine) sendToken(_ context.Context, sess *model.Session, in Input) (*Reply, error) {
	return e.selectToken(sess, in, model.At(model.FlowSend, model.StepAmount))
}

func amountPrompt(token string) *Reply {
	return reply(fmt.Sprintf("💲 Enter the amount of %s:", token))
}

func amountProblem(err error) string {
	switch {
	case errors.Is(err, amount.ErrNotPositive):
		return "❌ Amount must be greater than zero."
	case errors.Is(err, amount.ErrTooManyDecimals):
		return fmt.Sprintf("❌ Amounts support at most %d decimal places.", amount.Decimals)
	default:
		return "❌ Invalid amount format. Please enter a number like 10 or 10.5."
	}
}

// collectAmount - общий шаг ввода суммы. Крупная сумма требует отдельного подтверждения.
func (e *Engine) collectAmount(sess *model.Session, in Input, large model.Step, next func() (*Reply, error)) (*Reply, error) {
	token, err := field[string](sess, keyToken)
	if err != nil {
		return nil, err
	}
	a, err := amount.ParseDisplay(in.Text)
	if err != nil {
		return reprompt(amountProblem(err), amountPrompt(token)), nil
	}
	if err := sess.SetField(keyAmount, a); err != nil {
		return nil, err
	}
	if a.IsLarge() {
		sess.Step = large
		return largeAmountPrompt(a, token), nil
	}
	return next()
}

func largeAmountPrompt(a amount.Amount, token string) *Reply {
	return reply(
		fmt.Sprintf("⚠️ %s %s is a large amount. Are you sure you want to continue?", a.String(), token),
		[]Button{actionButton("✅ Yes, continue", ActionConfirm), actionButton("❌ Cancel", ActionCancel)},
	)
}

// confirmLargeAmount - общий шаг повторного подтверждения крупной суммы
func (e *Engine) confirmLargeAmount(sess *model.Session, in Input, next func() (*Reply, error)) (*Reply, error) {
	switch decision(in) {
	case ActionConfirm, ActionContinue:
		return next()
	case ActionCancel:
		return e.cancelInHandler(sess), nil
	}
	a, err := field[amount.Amount](sess, keyAmount)
	if err != nil {
		return nil, err
	}
	token, err := field[string](sess, keyToken)
	if err != nil {
		return nil, err
	}
	return reprompt(msgConfirmOrCancel, largeAmountPrompt(a, token)), nil
}

func (e *Engine) sendAmount(_ context.Context, sess *model.Session, in Input) (*Reply, error) {
	return e.collectAmount(sess, in, model.At(model.FlowSend, model.StepLargeAmount), func() (*Reply, error) {
		return e.toNoteStep(sess), nil
	})
}

func (e *Engine) sendLargeAmount(_ context.Context, sess *model.Session, in Input) (*Reply, error) {
	return e.confirmLargeAmount(sess, in, func() (*Reply, error) {
		return e.toNoteStep(sess), nil
	})
}

func (e *Engine) toNoteStep(sess *model.Session) *Reply {
	sess.Step = model.At(model.FlowSend, model.StepNote)
	return notePrompt()
}

func notePrompt() *Reply {
	return reply("📝 Add a note for the recipient, or type skip:",
		[]Button{inputButton("Skip", "skip")})
}

func (e *Engine) sendNote(_ context.Context, sess *model.Session, in Input) (*Reply, error) {
	note := strings.TrimSpace(in.Text)
	if strings.EqualFold(note, "skip") {
		note = ""
	}
	if len([]rune(note)) > maxNoteLength {
		return reprompt(fmt.Sprintf("❌ The note is too long (max %d characters).", maxNoteLength), notePrompt()), nil
	}
	if err := sess.SetField(keyNote, note); err != nil {
		return nil, err
	}
	sess.Step = model.At(model.FlowSend, model.StepConfirm)
	return sendSummary(sess)
}

// sendDraft - собранные данные перевода
type sendDraft struct {
	mode      string
	recipient string
	network   string
	token     string
	amount    amount.Amount
	note      string
}

func loadSendDraft(sess *model.Session) (*sendDraft, error) {
	d := &sendDraft{}
	var err error
	if d.mode, err = field[string](sess, keyMode); err != nil {
		return nil, err
	}
	if d.recipient, err = field[string](sess, keyRecipient); err != nil {
		return nil, err
	}
	if d.network, err = field[string](sess, keyNetwork); err != nil {
		return nil, err
	}
	if d.token, err = field[string](sess, keyToken); err != nil {
		return nil, err
	}
	if d.amount, err = field[amount.Amount](sess, keyAmount); err != nil {
		return nil, err
	}
	if _, err := sess.Field(keyNote, &d.note); err != nil {
		return nil, err
	}
	return d, nil
}

func sendSummary(sess *model.Session) (*Reply, error) {
	d, err := loadSendDraft(sess)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("✅ Confirm transfer\n\n")
	if d.mode == SendToWallet {
		fmt.Fprintf(&b, "Type: Wallet transfer\nTo: %s\n", d.recipient)
	} else {
		fmt.Fprintf(&b, "Type: Email transfer\nTo: %s\n", d.recipient)
	}
	fmt.Fprintf(&b, "Network: %s\nToken: %s\nAmount: %s\n", model.NetworkName(d.network), d.token, d.amount.String())
	if d.note != "" {
		fmt.Fprintf(&b, "Note: %s\n", d.note)
	}
	b.WriteString("\nPlease confirm this transfer:")
	return reply(b.String(), confirmButtons()), nil
}

func (e *Engine) sendConfirm(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
	switch decision(in) {
	case ActionConfirm:
	case ActionCancel:
		return e.cancelInHandler(sess), nil
	default:
		r, err := sendSummary(sess)
		if err != nil {
			return nil, err
		}
		return reprompt(msgConfirmOrCancel, r), nil
	}

	d, err := loadSendDraft(sess)
	if err != nil {
		return nil, err
	}

	var transfer *model.Transfer
	if d.mode == SendToWallet {
		transfer, err = e.api.SendWalletTransfer(ctx, sess.Token, model.WalletTransfer{
			Amount:          d.amount.BaseUnits(),
			Currency:        d.token,
			ReceiverAddress: d.recipient,
			Network:         d.network,
			Note:            d.note,
		})
	} else {
		transfer, err = e.api.SendEmailTransfer(ctx, sess.Token, model.EmailTransfer{
			Amount:        d.amount.BaseUnits(),
			Currency:      d.token,
			ReceiverEmail: d.recipient,
			Network:       d.network,
			Note:          d.note,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("send transfer: %w", err)
	}
	e.invalidateBalances(sess.UserID)

	text := fmt.Sprintf("✅ Transfer submitted\n\n%s %s to %s\nStatus: %s",
		d.amount.String(), d.token, d.recipient, transferStatus(transfer))
	if transfer != nil && transfer.ID != "" {
		text += "\nID: " + transfer.ID
	}
	return e.complete(sess, text), nil
}

func transferStatus(t *model.Transfer) string {
	if t == nil || t.Status == "" {
		return "pending"
	}
	return t.Status
}

// cancelInHandler отменяет флоу из обработчика шага; сессию сохранит движок
func (e *Engine) cancelInHandler(sess *model.Session) *Reply {
	flow := sess.Step.Flow
	sess.Reset()
	e.metrics.FlowEvent(string(flow), "cancelled")
	return reply(cancelMessage(flow))
}

// setFields записывает несколько значений scratch
func setFields(sess *model.Session, fields map[string]any) error {
	for k, v := range fields {
		if err := sess.SetField(k, v); err != nil {
			return fmt.Errorf("scratch field %s: %w", k, err)
		}
	}
	return nil
}
