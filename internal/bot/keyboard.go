package bot

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ivanoskov/payout_bot/internal/model"
	"github.com/ivanoskov/payout_bot/internal/service"
)

// Кнопки главного меню ведут на команды
var menuCommands = map[string]string{
	"💰 Balance":  "balance",
	"💸 Send":     "send",
	"🏦 Withdraw": "withdraw",
	"📦 Batch":    "batch",
	"📜 History":  "history",
	"👛 Wallets":  "wallets",
	"👤 Profile":  "profile",
}

// Префиксы callback-данных бота; кнопки флоу разбирает service.ParseCallback
const (
	sendChoicePrefix    = "send:"
	historyPrefix       = "history:"
	walletDefaultPrefix = "wallet:default:"
)

func getMainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("💰 Balance"),
			tgbotapi.NewKeyboardButton("💸 Send"),
			tgbotapi.NewKeyboardButton("🏦 Withdraw"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("📦 Batch"),
			tgbotapi.NewKeyboardButton("📜 History"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("👛 Wallets"),
			tgbotapi.NewKeyboardButton("👤 Profile"),
		),
	)
}

// inlineKeyboard переводит кнопки ответа движка в inline-клавиатуру
func inlineKeyboard(rows [][]service.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var r []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			r = append(r, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		buttons = append(buttons, r)
	}
	return tgbotapi.NewInlineKeyboardMarkup(buttons...), true
}

// emptyKeyboard убирает inline-кнопки у сообщения
func emptyKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
}

func getHistoryKeyboard(page *model.TransferPage) (tgbotapi.InlineKeyboardMarkup, bool) {
	var row []tgbotapi.InlineKeyboardButton
	if page.Page > 1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Previous", historyPrefix+strconv.Itoa(page.Page-1)))
	}
	if page.HasMore {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", historyPrefix+strconv.Itoa(page.Page+1)))
	}
	if len(row) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}

func getWalletsKeyboard(wallets []model.Wallet) (tgbotapi.InlineKeyboardMarkup, bool) {
	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, w := range wallets {
		if w.IsDefault || w.ID == "" {
			continue
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⭐ Make "+model.NetworkName(w.Network)+" default", walletDefaultPrefix+w.ID),
		))
	}
	if len(buttons) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(buttons...), true
}
