// Package bot связывает Telegram с движком диалогов: разбирает апдейты,
// рисует клавиатуры и отправляет ответы.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ivanoskov/payout_bot/internal/charts"
	"github.com/ivanoskov/payout_bot/internal/metrics"
	"github.com/ivanoskov/payout_bot/internal/model"
	"github.com/ivanoskov/payout_bot/internal/service"
)

// Engine - операции движка, которые вызывает бот
type Engine interface {
	StartFlow(ctx context.Context, userID int64, flow model.FlowName, choice string) (*service.Reply, error)
	HandleFlowInput(ctx context.Context, userID int64, in service.Input) (*service.Reply, error)
	Cancel(ctx context.Context, userID int64) (*service.Reply, error)
	Session(ctx context.Context, userID int64) (*model.Session, error)
	Balances(ctx context.Context, userID int64) ([]model.WalletBalance, error)
	Wallets(ctx context.Context, userID int64) ([]model.Wallet, error)
	SetDefaultWallet(ctx context.Context, userID int64, walletID string) error
	GenerateWallet(ctx context.Context, userID int64, networkID string) (*model.Wallet, error)
	History(ctx context.Context, userID int64, page int) (*model.TransferPage, error)
	Profile(ctx context.Context, userID int64) (*service.Profile, error)
	Logout(ctx context.Context, userID int64) (bool, error)
	Resubscribe(ctx context.Context, userID int64) error
}

// telegram - часть tgbotapi.BotAPI, которой пользуется бот
type telegram interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api     telegram
	engine  Engine
	charts  *charts.ChartGenerator
	logger  *zap.Logger
	metrics *metrics.Metrics

	// seen - пользователи, чьи подписки на уведомления уже восстановлены в этом процессе
	seen sync.Map
}

// NewBot подключается к Telegram по токену
func NewBot(token string, engine Engine, logger *zap.Logger, m *metrics.Metrics) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	return newBot(api, engine, logger, m), nil
}

func newBot(api telegram, engine Engine, logger *zap.Logger, m *metrics.Metrics) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:     api,
		engine:  engine,
		charts:  charts.NewChartGenerator(),
		logger:  logger.With(zap.String("component", "bot")),
		metrics: m,
	}
}

// RegisterCommands публикует список команд в меню Telegram
func (b *Bot) RegisterCommands() error {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(botCommands...)); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	return nil
}

// SetWebhook регистрирует адрес webhook в Telegram
func (b *Bot) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

// Start запускает бота в режиме long polling и блокируется до отмены ctx.
// Апдейты одного пользователя обрабатываются по порядку, разных - параллельно.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	d := newDispatcher(func(update tgbotapi.Update) { b.HandleUpdate(ctx, update) })
	defer d.wait()

	b.logger.Info("long polling started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("long polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			d.dispatch(updateUserID(update), update)
		}
	}
}

// HandleWebhook - точка входа для обработки входящих webhook-обновлений
func (b *Bot) HandleWebhook(ctx context.Context, body []byte) error {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("malformed update: %w", err)
	}
	b.HandleUpdate(ctx, update)
	return nil
}

// Notify отправляет текст в чат; подходит как функция отправки уведомлений
func (b *Bot) Notify(chatID int64, text string) {
	b.sendText(chatID, text)
}

func updateUserID(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	}
	return 0
}

// dispatcher держит очередь апдейтов на пользователя и один обработчик на очередь
type dispatcher struct {
	handle func(tgbotapi.Update)

	mu     sync.Mutex
	queues map[int64][]tgbotapi.Update
	wg     sync.WaitGroup
}

func newDispatcher(handle func(tgbotapi.Update)) *dispatcher {
	return &dispatcher{handle: handle, queues: make(map[int64][]tgbotapi.Update)}
}

func (d *dispatcher) dispatch(userID int64, update tgbotapi.Update) {
	d.mu.Lock()
	q, running := d.queues[userID]
	d.queues[userID] = append(q, update)
	d.mu.Unlock()
	if running {
		return
	}
	d.wg.Add(1)
	go d.drain(userID)
}

// drain обрабатывает очередь пользователя; ключ удаляется только вместе с пустой очередью
func (d *dispatcher) drain(userID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[userID]
		if len(q) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		update := q[0]
		d.queues[userID] = q[1:]
		d.mu.Unlock()

		d.handle(update)
	}
}

func (d *dispatcher) wait() {
	d.wg.Wait()
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Warn("failed to send message", zap.Error(err))
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

// sendReply отправляет ответ движка с inline-кнопками, если они есть
func (b *Bot) sendReply(chatID int64, r *service.Reply) {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	if markup, ok := inlineKeyboard(r.Buttons); ok {
		msg.ReplyMarkup = markup
	}
	b.send(msg)
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	b.sendText(chatID, "❌ "+text)
}
