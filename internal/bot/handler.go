package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ivanoskov/payout_bot/internal/model"
	"github.com/ivanoskov/payout_bot/internal/service"
)

var botCommands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Start the bot"},
	{Command: "login", Description: "Log in with your email"},
	{Command: "balance", Description: "Wallet balances"},
	{Command: "wallets", Description: "Your wallets"},
	{Command: "send", Description: "Send funds"},
	{Command: "withdraw", Description: "Withdraw to a bank account"},
	{Command: "batch", Description: "Pay several recipients"},
	{Command: "history", Description: "Recent transfers"},
	{Command: "profile", Description: "Account and KYC status"},
	{Command: "cancel", Description: "Cancel the current operation"},
	{Command: "logout", Description: "Log out"},
	{Command: "help", Description: "Show help"},
}

// HandleUpdate обрабатывает один апдейт Telegram
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.resubscribe(ctx, updateUserID(update))

	switch {
	case update.CallbackQuery != nil:
		b.metrics.Update("callback")
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.metrics.Update("message")
		b.handleMessage(ctx, update.Message)
	default:
		b.metrics.Update("other")
	}
}

// resubscribe восстанавливает подписку на уведомления после перезапуска,
// когда пользователь впервые пишет боту
func (b *Bot) resubscribe(ctx context.Context, userID int64) {
	if userID == 0 {
		return
	}
	if _, seen := b.seen.LoadOrStore(userID, struct{}{}); seen {
		return
	}
	if err := b.engine.Resubscribe(ctx, userID); err != nil {
		b.logger.Warn("failed to restore notifications", zap.Int64("user", userID), zap.Error(err))
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}
	if message.IsCommand() {
		b.handleCommand(ctx, message, message.Command(), message.CommandArguments())
		return
	}
	// кнопки главного меню работают и посреди диалога
	if cmd, ok := menuCommands[message.Text]; ok {
		b.handleCommand(ctx, message, cmd, "")
		return
	}
	if strings.TrimSpace(message.Text) == "" {
		b.sendText(message.Chat.ID, "Please send a text message. Use /help to see available commands.")
		return
	}

	r, err := b.engine.HandleFlowInput(ctx, message.From.ID, service.Input{Text: message.Text})
	b.respond(message.Chat.ID, message.From.ID, r, err)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message, cmd, args string) {
	chatID := message.Chat.ID
	userID := message.From.ID
	b.logger.Debug("command", zap.Int64("user", userID), zap.String("command", cmd))

	switch cmd {
	case "start":
		msg := tgbotapi.NewMessage(chatID, welcomeText)
		msg.ReplyMarkup = getMainKeyboard()
		b.send(msg)
	case "help":
		b.sendText(chatID, helpText)
	case "login":
		b.startFlow(ctx, chatID, userID, model.FlowLogin, "")
	case "send":
		b.startFlow(ctx, chatID, userID, model.FlowSend, strings.ToLower(strings.TrimSpace(args)))
	case "withdraw":
		b.startFlow(ctx, chatID, userID, model.FlowWithdraw, "")
	case "batch":
		b.startFlow(ctx, chatID, userID, model.FlowBatch, "")
	case "cancel":
		r, err := b.engine.Cancel(ctx, userID)
		b.respond(chatID, userID, r, err)
	case "logout":
		b.handleLogout(ctx, chatID, userID)
	case "balance":
		b.handleBalance(ctx, chatID, userID)
	case "wallets":
		b.handleWallets(ctx, chatID, userID, args)
	case "history":
		b.handleHistory(ctx, chatID, userID)
	case "profile":
		b.handleProfile(ctx, chatID, userID)
	default:
		b.sendText(chatID, msgUnknownCommand)
	}
}

func (b *Bot) startFlow(ctx context.Context, chatID, userID int64, flow model.FlowName, choice string) {
	r, err := b.engine.StartFlow(ctx, userID, flow, choice)
	b.respond(chatID, userID, r, err)
}

// respond отправляет ответ движка; ошибка означает сбой хранилища сессий
func (b *Bot) respond(chatID, userID int64, r *service.Reply, err error) {
	if err != nil {
		b.logger.Error("failed to handle input", zap.Int64("user", userID), zap.Error(err))
		b.sendErrorMessage(chatID, "Something went wrong. Please try again.")
		return
	}
	b.sendReply(chatID, r)
}

func (b *Bot) handleLogout(ctx context.Context, chatID, userID int64) {
	ok, err := b.engine.Logout(ctx, userID)
	if err != nil {
		b.logger.Error("failed to log out", zap.Int64("user", userID), zap.Error(err))
		b.sendErrorMessage(chatID, "Failed to log out. Please try again.")
		return
	}
	if !ok {
		b.sendText(chatID, msgNotLoggedIn)
		return
	}
	b.sendText(chatID, msgLoggedOut)
}

func (b *Bot) handleBalance(ctx context.Context, chatID, userID int64) {
	balances, err := b.engine.Balances(ctx, userID)
	if err != nil {
		b.logAccountError("balances", userID, err)
		b.sendText(chatID, accountErrorText(err, "load balances"))
		return
	}
	b.sendText(chatID, formatBalances(balances))

	png, err := b.charts.GenerateBalanceChart(balances)
	if err != nil {
		b.logger.Warn("failed to render balance chart", zap.Error(err))
		return
	}
	if png == nil {
		return
	}
	b.send(tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "balances.png", Bytes: png}))
}

func (b *Bot) handleWallets(ctx context.Context, chatID, userID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) > 0 && fields[0] == "new" {
		if len(fields) < 2 {
			b.sendText(chatID, "Usage: /wallets new <networkId>, for example /wallets new 137")
			return
		}
		wallet, err := b.engine.GenerateWallet(ctx, userID, fields[1])
		if err != nil {
			b.logAccountError("generate wallet", userID, err)
			b.sendText(chatID, accountErrorText(err, "create the wallet"))
			return
		}
		b.sendText(chatID, formatNewWallet(wallet))
		return
	}

	wallets, err := b.engine.Wallets(ctx, userID)
	if err != nil {
		b.logAccountError("wallets", userID, err)
		b.sendText(chatID, accountErrorText(err, "load wallets"))
		return
	}
	msg := tgbotapi.NewMessage(chatID, formatWallets(wallets))
	if markup, ok := getWalletsKeyboard(wallets); ok {
		msg.ReplyMarkup = markup
	}
	b.send(msg)
}

func (b *Bot) handleHistory(ctx context.Context, chatID, userID int64) {
	page, err := b.engine.History(ctx, userID, 1)
	if err != nil {
		b.logAccountError("history", userID, err)
		b.sendText(chatID, accountErrorText(err, "load history"))
		return
	}
	msg := tgbotapi.NewMessage(chatID, formatHistory(page))
	if markup, ok := getHistoryKeyboard(page); ok {
		msg.ReplyMarkup = markup
	}
	b.send(msg)
}

func (b *Bot) handleProfile(ctx context.Context, chatID, userID int64) {
	profile, err := b.engine.Profile(ctx, userID)
	if err != nil {
		b.logAccountError("profile", userID, err)
		b.sendText(chatID, accountErrorText(err, "load your profile"))
		return
	}
	b.sendText(chatID, formatProfile(profile))
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	// Отвечаем на callback, чтобы убрать loading indicator
	defer b.answerCallback(callback.ID)

	if callback.From == nil || callback.Message == nil || callback.Message.Chat == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	userID := callback.From.ID
	data := callback.Data

	switch {
	case strings.HasPrefix(data, sendChoicePrefix):
		b.clearButtons(callback.Message)
		b.startFlow(ctx, chatID, userID, model.FlowSend, strings.TrimPrefix(data, sendChoicePrefix))
	case strings.HasPrefix(data, historyPrefix):
		page, err := strconv.Atoi(strings.TrimPrefix(data, historyPrefix))
		if err != nil {
			return
		}
		b.editHistory(ctx, callback.Message, userID, page)
	case strings.HasPrefix(data, walletDefaultPrefix):
		b.setDefaultWallet(ctx, callback.Message, userID, strings.TrimPrefix(data, walletDefaultPrefix))
	default:
		in, ok := service.ParseCallback(data)
		if !ok {
			b.logger.Debug("unknown callback", zap.Int64("user", userID), zap.String("data", data))
			return
		}
		// кнопки шага одноразовые: повторное нажатие не должно повторить действие
		b.clearButtons(callback.Message)
		r, err := b.engine.HandleFlowInput(ctx, userID, in)
		b.respond(chatID, userID, r, err)
	}
}

func (b *Bot) editHistory(ctx context.Context, message *tgbotapi.Message, userID int64, page int) {
	p, err := b.engine.History(ctx, userID, page)
	if err != nil {
		b.logAccountError("history", userID, err)
		b.sendText(message.Chat.ID, accountErrorText(err, "load history"))
		return
	}
	edit := tgbotapi.NewEditMessageText(message.Chat.ID, message.MessageID, formatHistory(p))
	if markup, ok := getHistoryKeyboard(p); ok {
		edit.ReplyMarkup = &markup
	}
	b.request(edit)
}

func (b *Bot) setDefaultWallet(ctx context.Context, message *tgbotapi.Message, userID int64, walletID string) {
	chatID := message.Chat.ID
	if err := b.engine.SetDefaultWallet(ctx, userID, walletID); err != nil {
		b.logAccountError("set default wallet", userID, err)
		b.sendText(chatID, accountErrorText(err, "update the default wallet"))
		return
	}

	wallets, err := b.engine.Wallets(ctx, userID)
	if err != nil {
		b.logAccountError("wallets", userID, err)
		b.sendText(chatID, "✅ Default wallet updated.")
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, message.MessageID, formatWallets(wallets))
	markup, ok := getWalletsKeyboard(wallets)
	if !ok {
		markup = emptyKeyboard()
	}
	edit.ReplyMarkup = &markup
	b.request(edit)
	b.sendText(chatID, "✅ Default wallet updated.")
}

func (b *Bot) clearButtons(message *tgbotapi.Message) {
	b.request(tgbotapi.NewEditMessageReplyMarkup(message.Chat.ID, message.MessageID, emptyKeyboard()))
}

func (b *Bot) answerCallback(id string) {
	b.request(tgbotapi.NewCallback(id, ""))
}

func (b *Bot) request(c tgbotapi.Chattable) {
	if _, err := b.api.Request(c); err != nil {
		b.logger.Debug("telegram request failed", zap.Error(err))
	}
}

func (b *Bot) logAccountError(operation string, userID int64, err error) {
	b.logger.Warn("account operation failed",
		zap.String("operation", operation),
		zap.Int64("user", userID),
		zap.Error(err))
}
