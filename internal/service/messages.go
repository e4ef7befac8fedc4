package service

import "github.com/ivanoskov/payout_bot/internal/model"

const (
	msgBackToMenu      = "Use /help to see available commands."
	msgLoginRequired   = "🔒 You need to log in first. Use /login to continue."
	msgAlreadyLoggedIn = "✅ You are already logged in. Use /logout to switch accounts."
	msgNoActiveFlow    = "There is no operation in progress. " + msgBackToMenu
	msgNothingToCancel = "Nothing to cancel. " + msgBackToMenu
	msgStaleAction     = "⌛ This button belongs to an operation that is no longer active."
	msgFlowReset       = "⚠️ Your previous operation could not be resumed and was reset. " + msgBackToMenu
	msgNoFunds         = "❌ You don't have any tokens in your wallets. Please deposit funds first.\n\n" + msgBackToMenu
	msgConfirmOrCancel = "Please press ✅ Confirm or ❌ Cancel (or type confirm / cancel)."
)

func cancelMessage(flow model.FlowName) string {
	if flow == model.FlowLogin {
		return "❌ Login cancelled. Use /login to try again."
	}
	return "❌ " + operationName(flow) + " cancelled. Nothing was sent.\n\n" + msgBackToMenu
}
