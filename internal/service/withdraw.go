package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ivanoskov/payout_bot/internal/amount"
	"github.com/ivanoskov/payout_bot/internal/model"
)

const (
	keyAccounts = "bank_accounts"
	keyAccount  = "bank_account"
	keyQuote    = "quote"

	withdrawPurposeCode = "self"
)

func (e *Engine) startWithdraw(ctx context.Context, sess *model.Session) (*Reply, error) {
	sess.Step = model.At(model.FlowWithdraw, model.StepNetwork)

	balances, err := e.fetchBalances(ctx, sess)
	if err != nil {
		return nil, err
	}
	networks := networksOf(balances)
	if len(networks) == 0 {
		return e.stop(sess, msgNoFunds), nil
	}
	if err := sess.SetField(keyNetworks, networks); err != nil {
		return nil, err
	}
	r, err := e.networkPrompt(sess)
	if err != nil {
		return nil, err
	}
	r.Text = "🏦 Withdraw to bank account\n\n" + r.Text
	return r, nil
}

func (e *Engine) withdrawNetwork(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
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

	balances, err := e.fetchBalances(ctx, sess)
	if err != nil {
		return nil, err
	}
	tokens := tokensOn(balances, networks[idx])
	if len(tokens) == 0 {
		return e.stop(sess, fmt.Sprintf("❌ You have no tokens on %s.\n\n%s", model.NetworkName(networks[idx]), msgBackToMenu)), nil
	}
	if err := setFields(sess, map[string]any{keyNetwork: networks[idx], keyTokens: tokens}); err != nil {
		return nil, err
	}
	sess.Step = model.At(model.FlowWithdraw, model.StepToken)
	return tokenPrompt(sess)
}

func (e *Engine) withdrawToken(_ context.Context, sess *model.Session, in Input) (*Reply, error) {
	return e.selectToken(sess, in, model.At(model.FlowWithdraw, model.StepAmount))
}

func (e *Engine) withdrawAmount(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
	return e.collectAmount(sess, in, model.At(model.FlowWithdraw, model.StepLargeAmount), func() (*Reply, error) {
		return e.toBankAccountStep(ctx, sess)
	})
}

func (e *Engine) withdrawLargeAmount(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
	return e.confirmLargeAmount(sess, in, func() (*Reply, error) {
		return e.toBankAccountStep(ctx, sess)
	})
}

func (e *Engine) toBankAccountStep(ctx context.Context, sess *model.Session) (*Reply, error) {
	accounts, err := e.api.BankAccounts(ctx, sess.Token)
	if err != nil {
		return nil, fmt.Errorf("bank accounts: %w", err)
	}
	if len(accounts) == 0 {
		return e.stop(sess, "❌ You have no linked bank accounts. Add one in the web app and try again.\n\n"+msgBackToMenu), nil
	}
	if err := sess.SetField(keyAccounts, accounts); err != nil {
		return nil, err
	}
	sess.Step = model.At(model.FlowWithdraw, model.StepBankAccount)
	return bankAccountPrompt(sess)
}

func accountLabel(a model.BankAccount) string {
	label := a.BankName
	if label == "" {
		label = "Bank account"
	}
	if a.LastFourDigits != "" {
		label += " •••• " + a.LastFourDigits
	}
	if a.Country != "" {
		label += " (" + strings.ToUpper(a.Country) + ")"
	}
	return label
}

func bankAccountPrompt(sess *model.Session) (*Reply, error) {
	accounts, err := field[[]model.BankAccount](sess, keyAccounts)
	if err != nil {
		return nil, err
	}
	options := make([]string, len(accounts))
	for i, a := range accounts {
		options[i] = accountLabel(a)
	}
	return numberedOptions("🏦 Select bank account:", options), nil
}

func (e *Engine) withdrawBankAccount(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
	accounts, err := field[[]model.BankAccount](sess, keyAccounts)
	if err != nil {
		return nil, err
	}
	idx, ok := parseSelection(in.Text, len(accounts))
	if !ok {
		r, err := bankAccountPrompt(sess)
		if err != nil {
			return nil, err
		}
		return reprompt(selectionProblem(len(accounts)), r), nil
	}
	account := accounts[idx]
	if err := sess.SetField(keyAccount, account); err != nil {
		return nil, err
	}

	d, err := loadWithdrawDraft(sess)
	if err != nil {
		return nil, err
	}

	// котировка не обязательна для показа: при ошибке показываем локальную оценку
	quote, err := e.api.WithdrawalQuote(ctx, sess.Token, quoteRequest(d))
	if err != nil {
		if Classify(err) == KindAuthExpired {
			return nil, err
		}
		e.logger.Info("withdrawal quote unavailable, using estimate", zap.Int64("user", sess.UserID), zap.Error(err))
	}
	if err == nil && quote != nil {
		if err := sess.SetField(keyQuote, quote); err != nil {
			return nil, err
		}
	} else {
		sess.ClearFields(keyQuote)
	}

	sess.Step = model.At(model.FlowWithdraw, model.StepConfirm)
	return withdrawSummary(sess)
}

type withdrawDraft struct {
	network string
	token   string
	amount  amount.Amount
	account model.BankAccount
	quote   *model.WithdrawalQuote
}

func loadWithdrawDraft(sess *model.Session) (*withdrawDraft, error) {
	d := &withdrawDraft{}
	var err error
	if d.network, err = field[string](sess, keyNetwork); err != nil {
		return nil, err
	}
	if d.token, err = field[string](sess, keyToken); err != nil {
		return nil, err
	}
	if d.amount, err = field[amount.Amount](sess, keyAmount); err != nil {
		return nil, err
	}
	if d.account, err = field[model.BankAccount](sess, keyAccount); err != nil {
		return nil, err
	}
	var q model.WithdrawalQuote
	ok, err := sess.Field(keyQuote, &q)
	if err != nil {
		return nil, err
	}
	if ok {
		d.quote = &q
	}
	return d, nil
}

func quoteRequest(d *withdrawDraft) model.QuoteRequest {
	return model.QuoteRequest{
		Amount:             d.amount.BaseUnits(),
		Currency:           d.token,
		BankAccountID:      d.account.ID,
		DestinationCountry: d.account.Country,
	}
}

func withdrawSummary(sess *model.Session) (*Reply, error) {
	d, err := loadWithdrawDraft(sess)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("✅ Confirm withdrawal\n\n")
	fmt.Fprintf(&b, "Network: %s\nToken: %s\nAmount: %s\nBank account: %s\n\n",
		model.NetworkName(d.network), d.token, d.amount.String(), accountLabel(d.account))

	if d.quote != nil {
		fee := amount.Format(displayString(d.quote.TotalFee))
		receive := amount.Format(displayString(d.quote.ToAmount))
		fmt.Fprintf(&b, "Fee: %s %s\nYou receive: %s %s\n", fee, d.token, receive, d.quote.ToCurrency)
		if d.quote.Rate != "" {
			fmt.Fprintf(&b, "Rate: %s\n", d.quote.Rate)
		}
	} else {
		est := amount.EstimateFee(d.amount.Display())
		fmt.Fprintf(&b, "Estimated fee: %s %s (%s + %s%%)\nEstimated receive: %s %s\n",
			est.TotalFee.StringFixed(2), d.token, est.FixedFee.StringFixed(2), est.Percentage.String(),
			est.Receive.StringFixed(2), d.token)
		b.WriteString("⚠️ These figures are estimates: a live quote could not be obtained. The final fee is set when the withdrawal is executed.\n")
	}
	b.WriteString("\nBank withdrawals usually take 1-3 business days.\nPlease confirm this withdrawal:")
	return reply(b.String(), confirmButtons()), nil
}

// displayString переводит базовые единицы котировки в отображаемые; непонятное значение возвращается как есть
func displayString(base string) string {
	v, err := amount.FromBaseUnits(base)
	if err != nil {
		return base
	}
	return v.String()
}

func (e *Engine) withdrawConfirm(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
	switch decision(in) {
	case ActionConfirm:
	case ActionCancel:
		return e.cancelInHandler(sess), nil
	default:
		r, err := withdrawSummary(sess)
		if err != nil {
			return nil, err
		}
		return reprompt(msgConfirmOrCancel, r), nil
	}

	// KYC перепроверяется при каждом подтверждении: без одобрения вывод не отправляется
	kyc, err := e.api.KYCStatus(ctx, sess.Token)
	if err != nil {
		return nil, fmt.Errorf("kyc status: %w", err)
	}
	if !kyc.IsApproved {
		e.logger.Info("withdrawal blocked by kyc", zap.Int64("user", sess.UserID))
		return e.stop(sess, fmt.Sprintf(
			"🪪 Your identity verification is not approved (status: %s). Withdrawal was not submitted.\n\nPlease complete KYC in the web app, then try again.",
			kyc.Status)), nil
	}

	d, err := loadWithdrawDraft(sess)
	if err != nil {
		return nil, err
	}
	// котировка ограничена по времени, перед выполнением берется свежая
	quote, err := e.api.WithdrawalQuote(ctx, sess.Token, quoteRequest(d))
	if err != nil {
		return nil, fmt.Errorf("withdrawal quote: %w", err)
	}

	transfer, err := e.api.ExecuteWithdrawal(ctx, sess.Token, model.WithdrawalRequest{
		QuotePayload:   quote.QuotePayload,
		QuoteSignature: quote.QuoteSignature,
		PurposeCode:    withdrawPurposeCode,
	})
	if err != nil {
		return nil, fmt.Errorf("execute withdrawal: %w", err)
	}
	e.invalidateBalances(sess.UserID)

	text := fmt.Sprintf("✅ Withdrawal submitted\n\n%s %s to %s\nStatus: %s",
		d.amount.String(), d.token, accountLabel(d.account), transferStatus(transfer))
	if transfer != nil && transfer.ID != "" {
		text += "\nID: " + transfer.ID
	}
	return e.complete(sess, text+"\n\nBank withdrawals usually take 1-3 business days."), nil
}
