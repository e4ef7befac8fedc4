// Package service содержит движок многошаговых диалогов (отправка, вывод, пакетная выплата, вход)
// и операции с аккаунтом вне диалогов.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ivanoskov/payout_bot/internal/metrics"
	"github.com/ivanoskov/payout_bot/internal/model"
)

// PaymentsAPI - операции удаленной платежной платформы, которые использует движок
type PaymentsAPI interface {
	RequestOTP(ctx context.Context, email string) (string, error)
	Authenticate(ctx context.Context, email, otp, sid string) (*model.AuthResult, error)
	Me(ctx context.Context, token string) (*model.User, error)
	ListBalances(ctx context.Context, token string) ([]model.WalletBalance, error)
	ListWallets(ctx context.Context, token string) ([]model.Wallet, error)
	GenerateWallet(ctx context.Context, token, networkID string) (*model.Wallet, error)
	SetDefaultWallet(ctx context.Context, token, walletID string) error
	SendEmailTransfer(ctx context.Context, token string, t model.EmailTransfer) (*model.Transfer, error)
	SendWalletTransfer(ctx context.Context, token string, t model.WalletTransfer) (*model.Transfer, error)
	SendBatch(ctx context.Context, token string, transfers []model.BatchTransfer) ([]model.BatchResult, error)
	KYCStatus(ctx context.Context, token string) (*model.KYCStatus, error)
	BankAccounts(ctx context.Context, token string) ([]model.BankAccount, error)
	WithdrawalQuote(ctx context.Context, token string, q model.QuoteRequest) (*model.WithdrawalQuote, error)
	ExecuteWithdrawal(ctx context.Context, token string, w model.WithdrawalRequest) (*model.Transfer, error)
	TransferHistory(ctx context.Context, token string, page, pageSize int) (*model.TransferPage, error)
}

// SessionStore - хранилище сессий, адресуемое по пользователю
type SessionStore interface {
	Get(ctx context.Context, userID int64) (*model.Session, error)
	Save(ctx context.Context, sess *model.Session) error
	Clear(ctx context.Context, userID int64) error
}

// BalanceCache - короткоживущий кеш балансов пользователя
type BalanceCache interface {
	Get(userID int64) ([]model.WalletBalance, bool)
	Put(userID int64, balances []model.WalletBalance) error
	Invalidate(userID int64) error
}

// Notifier подписывает чат на уведомления организации
type Notifier interface {
	Subscribe(chatID int64, token, organizationID string)
	Unsubscribe(chatID int64)
}

// Action - действие кнопки или эквивалентное ему слово
type Action string

const (
	ActionNone     Action = ""
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionContinue Action = "continue"
	ActionReenter  Action = "reenter"
)

// Префиксы данных inline-кнопок
const (
	callbackPrefix      = "flow:"
	callbackInputPrefix = "flow:input:"
)

// Input - одно событие пользователя внутри флоу
type Input struct {
	// Flow - флоу, которому адресовано событие (пусто - текущий)
	Flow   model.FlowName
	Text   string
	Action Action
}

// ParseCallback разбирает данные кнопки движка: flow:confirm, flow:input:2
func ParseCallback(data string) (Input, bool) {
	if strings.HasPrefix(data, callbackInputPrefix) {
		return Input{Text: strings.TrimPrefix(data, callbackInputPrefix)}, true
	}
	if !strings.HasPrefix(data, callbackPrefix) {
		return Input{}, false
	}
	switch a := Action(strings.TrimPrefix(data, callbackPrefix)); a {
	case ActionConfirm, ActionCancel, ActionContinue, ActionReenter:
		return Input{Action: a}, true
	}
	return Input{}, false
}

// Button - inline-кнопка ответа
type Button struct {
	Text string
	Data string
}

func actionButton(text string, a Action) Button {
	return Button{Text: text, Data: callbackPrefix + string(a)}
}

func inputButton(text, input string) Button {
	return Button{Text: text, Data: callbackInputPrefix + input}
}

// Reply - ответ пользователю и шаг, на котором остался диалог
type Reply struct {
	Text    string
	Buttons [][]Button
	Step    model.Step
}

func reply(text string, rows ...[]Button) *Reply {
	return &Reply{Text: text, Buttons: rows}
}

// reprompt повторяет вопрос шага с пояснением ошибки
func reprompt(problem string, r *Reply) *Reply {
	r.Text = problem + "\n\n" + r.Text
	return r
}

func confirmButtons() []Button {
	return []Button{actionButton("✅ Confirm", ActionConfirm), actionButton("❌ Cancel", ActionCancel)}
}

type stepHandler func(ctx context.Context, sess *model.Session, in Input) (*Reply, error)

// Options - зависимости движка
type Options struct {
	API           PaymentsAPI
	Sessions      SessionStore
	Balances      BalanceCache
	Notifier      Notifier
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	BatchCurrency string
}

// Engine ведет многошаговые диалоги. Все входы одного пользователя выполняются по очереди.
type Engine struct {
	api           PaymentsAPI
	sessions      SessionStore
	balances      BalanceCache
	notifier      Notifier
	logger        *zap.Logger
	metrics       *metrics.Metrics
	batchCurrency string

	locks    *userLocks
	handlers map[model.Step]stepHandler
}

func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	currency := opts.BatchCurrency
	if currency == "" {
		currency = "USDC"
	}

	e := &Engine{
		api:           opts.API,
		sessions:      opts.Sessions,
		balances:      opts.Balances,
		notifier:      opts.Notifier,
		logger:        logger.With(zap.String("component", "flow")),
		metrics:       opts.Metrics,
		batchCurrency: currency,
		locks:         newUserLocks(),
	}

	e.handlers = map[model.Step]stepHandler{
		model.At(model.FlowSend, model.StepEmailRecipient):  e.sendEmailRecipient,
		model.At(model.FlowSend, model.StepWalletRecipient): e.sendWalletRecipient,
		model.At(model.FlowSend, model.StepNetwork):         e.sendNetwork,
		model.At(model.FlowSend, model.StepAddressWarning):  e.sendAddressWarning,
		model.At(model.FlowSend, model.StepToken):           e.sendToken,
		model.At(model.FlowSend, model.StepAmount):          e.sendAmount,
		model.At(model.FlowSend, model.StepLargeAmount):     e.sendLargeAmount,
		model.At(model.FlowSend, model.StepNote):            e.sendNote,
		model.At(model.FlowSend, model.StepConfirm):         e.sendConfirm,

		model.At(model.FlowWithdraw, model.StepNetwork):     e.withdrawNetwork,
		model.At(model.FlowWithdraw, model.StepToken):       e.withdrawToken,
		model.At(model.FlowWithdraw, model.StepAmount):      e.withdrawAmount,
		model.At(model.FlowWithdraw, model.StepLargeAmount): e.withdrawLargeAmount,
		model.At(model.FlowWithdraw, model.StepBankAccount): e.withdrawBankAccount,
		model.At(model.FlowWithdraw, model.StepConfirm):     e.withdrawConfirm,

		model.At(model.FlowBatch, model.StepEntries):   e.batchEntries,
		model.At(model.FlowBatch, model.StepDuplicate): e.batchDuplicate,
		model.At(model.FlowBatch, model.StepConfirm):   e.batchConfirm,

		model.At(model.FlowLogin, model.StepLoginEmail): e.loginEmail,
		model.At(model.FlowLogin, model.StepLoginOTP):   e.loginOTP,
	}
	return e
}

// StartFlow начинает флоу. choice уточняет вариант: для send - email или wallet.
func (e *Engine) StartFlow(ctx context.Context, userID int64, flow model.FlowName, choice string) (*Reply, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if flow != model.FlowLogin && !sess.Authenticated {
		return reply(msgLoginRequired), nil
	}
	if flow == model.FlowLogin && sess.Authenticated {
		return reply(msgAlreadyLoggedIn), nil
	}

	// новый флоу всегда начинается с чистого scratch
	sess.Reset()

	var r *Reply
	switch flow {
	case model.FlowSend:
		r, err = e.startSend(ctx, sess, choice)
	case model.FlowWithdraw:
		r, err = e.startWithdraw(ctx, sess)
	case model.FlowBatch:
		r, err = e.startBatch(ctx, sess)
	case model.FlowLogin:
		r, err = e.startLogin(ctx, sess)
	default:
		return nil, fmt.Errorf("unknown flow %q", flow)
	}
	if err != nil {
		return e.abort(ctx, sess, flow, err)
	}

	if sess.InFlow() {
		e.metrics.FlowEvent(string(flow), "started")
		e.logger.Info("flow started",
			zap.Int64("user", userID),
			zap.String("flow", string(flow)),
			zap.String("step", sess.Step.String()))
	}
	return e.finishStep(ctx, sess, r)
}

// HandleFlowInput передает текст или нажатие кнопки активному флоу пользователя
func (e *Engine) HandleFlowInput(ctx context.Context, userID int64, in Input) (*Reply, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sess.InFlow() {
		return reply(msgNoActiveFlow), nil
	}
	flow := sess.Step.Flow
	if in.Flow != "" && in.Flow != flow {
		return &Reply{Text: msgStaleAction, Step: sess.Step}, nil
	}

	if in.Action == ActionCancel {
		return e.cancel(ctx, sess)
	}

	handler, ok := e.handlers[sess.Step]
	if !ok {
		// шаг из старой версии бота или поврежденная сессия
		e.logger.Warn("unknown step, resetting", zap.Int64("user", userID), zap.String("step", sess.Step.String()))
		sess.Reset()
		return e.finishStep(ctx, sess, reply(msgFlowReset))
	}
	if flow != model.FlowLogin && !sess.Authenticated {
		sess.Reset()
		return e.finishStep(ctx, sess, reply(msgLoginRequired))
	}

	step := sess.Step
	r, err := handler(ctx, sess, in)
	if err != nil {
		return e.abort(ctx, sess, flow, err)
	}
	if sess.Step != step {
		e.logger.Debug("step advanced",
			zap.Int64("user", userID),
			zap.String("flow", string(flow)),
			zap.String("from", step.String()),
			zap.String("to", sess.Step.String()))
	}
	return e.finishStep(ctx, sess, r)
}

// Cancel прерывает активный флоу пользователя (команда /cancel)
func (e *Engine) Cancel(ctx context.Context, userID int64) (*Reply, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sess.InFlow() {
		return reply(msgNothingToCancel), nil
	}
	return e.cancel(ctx, sess)
}

// ActiveStep возвращает текущий шаг пользователя (нулевой, если флоу нет)
func (e *Engine) ActiveStep(ctx context.Context, userID int64) (model.Step, error) {
	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return model.Step{}, err
	}
	return sess.Step, nil
}

func (e *Engine) cancel(ctx context.Context, sess *model.Session) (*Reply, error) {
	flow := sess.Step.Flow
	sess.Reset()
	e.metrics.FlowEvent(string(flow), "cancelled")
	e.logger.Info("flow cancelled", zap.Int64("user", sess.UserID), zap.String("flow", string(flow)))
	return e.finishStep(ctx, sess, reply(cancelMessage(flow)))
}

// complete завершает флоу успешно
func (e *Engine) complete(sess *model.Session, text string) *Reply {
	flow := sess.Step.Flow
	sess.Reset()
	e.metrics.FlowEvent(string(flow), "completed")
	e.logger.Info("flow completed", zap.Int64("user", sess.UserID), zap.String("flow", string(flow)))
	return reply(text)
}

// stop завершает флоу без ошибки, когда продолжать нечего (нет средств, нет счетов, KYC)
func (e *Engine) stop(sess *model.Session, text string) *Reply {
	flow := sess.Step.Flow
	sess.Reset()
	e.metrics.FlowEvent(string(flow), "aborted")
	return reply(text)
}

// abort завершает флоу после ошибки удаленного вызова. Scratch очищается,
// при истекшей авторизации сессия разлогинивается.
func (e *Engine) abort(ctx context.Context, sess *model.Session, flow model.FlowName, cause error) (*Reply, error) {
	kind := Classify(cause)
	e.logger.Warn("flow aborted",
		zap.Int64("user", sess.UserID),
		zap.String("flow", string(flow)),
		zap.String("step", sess.Step.String()),
		zap.String("kind", kind.String()),
		zap.Error(cause))
	e.metrics.FlowEvent(string(flow), "aborted")

	if kind == KindAuthExpired {
		e.expire(sess)
	} else {
		sess.Reset()
	}
	return e.finishStep(ctx, sess, reply(failureMessage(flow, kind, cause)))
}

// finishStep сохраняет сессию и проставляет шаг в ответ
func (e *Engine) finishStep(ctx context.Context, sess *model.Session, r *Reply) (*Reply, error) {
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	r.Step = sess.Step
	return r, nil
}

// fetchBalances возвращает балансы из кеша или API
func (e *Engine) fetchBalances(ctx context.Context, sess *model.Session) ([]model.WalletBalance, error) {
	if e.balances != nil {
		if cached, ok := e.balances.Get(sess.UserID); ok {
			return cached, nil
		}
	}
	balances, err := e.api.ListBalances(ctx, sess.Token)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	if e.balances != nil {
		if err := e.balances.Put(sess.UserID, balances); err != nil {
			e.logger.Warn("failed to cache balances", zap.Error(err))
		}
	}
	return balances, nil
}

// expire разлогинивает сессию с отозванным токеном: подписка и кеш балансов
// принадлежат старому токену и сбрасываются вместе с ним
func (e *Engine) expire(sess *model.Session) {
	sess.Logout()
	if e.notifier != nil {
		e.notifier.Unsubscribe(sess.UserID)
	}
	e.invalidateBalances(sess.UserID)
}

func (e *Engine) invalidateBalances(userID int64) {
	if e.balances == nil {
		return
	}
	if err := e.balances.Invalidate(userID); err != nil {
		e.logger.Warn("failed to invalidate balances", zap.Error(err))
	}
}

// networksOf возвращает сети с ненулевым числом токенов в порядке ответа API
func networksOf(balances []model.WalletBalance) []string {
	seen := make(map[string]bool)
	var networks []string
	for _, b := range balances {
		if len(b.Tokens) == 0 || seen[b.Network] {
			continue
		}
		seen[b.Network] = true
		networks = append(networks, b.Network)
	}
	return networks
}

// tokensOn возвращает символы токенов в сети без повторов
func tokensOn(balances []model.WalletBalance, network string) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, b := range balances {
		if b.Network != network {
			continue
		}
		for _, t := range b.Tokens {
			if t.Symbol == "" || seen[t.Symbol] {
				continue
			}
			seen[t.Symbol] = true
			tokens = append(tokens, t.Symbol)
		}
	}
	return tokens
}

// parseSelection принимает только целое 1..n и возвращает индекс с нуля
func parseSelection(text string, n int) (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || i < 1 || i > n {
		return 0, false
	}
	return i - 1, true
}

func selectionProblem(n int) string {
	return fmt.Sprintf("❌ Invalid selection. Please enter a number between 1 and %d.", n)
}

// numberedOptions формирует список вариантов и кнопки с номерами
func numberedOptions(title string, options []string) *Reply {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	rows := make([][]Button, 0, len(options))
	for i, opt := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
		rows = append(rows, []Button{inputButton(fmt.Sprintf("%d. %s", i+1, opt), strconv.Itoa(i+1))})
	}
	b.WriteString("\nReply with the number of your choice.")
	return reply(b.String(), rows...)
}

// decision сводит кнопку или слово к действию подтверждения
func decision(in Input) Action {
	if in.Action != ActionNone {
		return in.Action
	}
	switch strings.ToLower(strings.TrimSpace(in.Text)) {
	case "confirm", "yes", "y":
		return ActionConfirm
	case "cancel", "no", "n":
		return ActionCancel
	case "continue":
		return ActionContinue
	case "reenter", "re-enter":
		return ActionReenter
	}
	return ActionNone
}

func field[T any](sess *model.Session, key string) (T, error) {
	var v T
	ok, err := sess.Field(key, &v)
	if err != nil {
		return v, fmt.Errorf("scratch field %s: %w", key, err)
	}
	if !ok {
		return v, fmt.Errorf("scratch field %s: %w", key, errMissingField)
	}
	return v, nil
}

var errMissingField = errors.New("missing")
