package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ivanoskov/payout_bot/internal/amount"
	"github.com/ivanoskov/payout_bot/internal/model"
	"github.com/ivanoskov/payout_bot/internal/service"
)

const (
	welcomeText = "👋 Welcome to the payout bot!\n\n" +
		"Send stablecoins by email or to a wallet, withdraw to your bank account " +
		"and pay many recipients at once.\n\n" +
		"Use /login to connect your account or /help to see all commands."

	helpText = "Available commands:\n\n" +
		"/login - log in with your email\n" +
		"/balance - wallet balances\n" +
		"/wallets - your wallets (/wallets new <networkId> creates one)\n" +
		"/send - send funds by email or to a wallet\n" +
		"/withdraw - withdraw to a bank account\n" +
		"/batch - pay several recipients at once\n" +
		"/history - recent transfers\n" +
		"/profile - account and KYC status\n" +
		"/cancel - cancel the current operation\n" +
		"/logout - log out"

	msgLoginFirst     = "🔒 You need to log in first. Use /login to continue."
	msgSessionExpired = "🔒 Your session has expired. Please /login again."
	msgLoggedOut      = "👋 You have been logged out."
	msgNotLoggedIn    = "You are not logged in."
	msgUnknownCommand = "Unknown command. Use /help to see available commands."
)

// accountErrorText переводит ошибку операции с аккаунтом в текст для пользователя
func accountErrorText(err error, what string) string {
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		return msgLoginFirst
	case errors.Is(err, service.ErrSessionExpired):
		return msgSessionExpired
	}
	return fmt.Sprintf("❌ Failed to %s. Please try again later.", what)
}

// formatBalances группирует балансы по сетям, суммы с двумя знаками
func formatBalances(balances []model.WalletBalance) string {
	var b strings.Builder
	b.WriteString("💰 Your balances\n")
	empty := true
	for _, w := range balances {
		if len(w.Tokens) == 0 {
			continue
		}
		empty = false
		b.WriteString("\n🌐 ")
		b.WriteString(model.NetworkName(w.Network))
		if w.IsDefault {
			b.WriteString(" (default)")
		}
		b.WriteString("\n")
		for _, t := range w.Tokens {
			fmt.Fprintf(&b, "  • %s: %s\n", t.Symbol, amount.Format(t.Balance))
		}
	}
	if empty {
		return "💰 You don't have any balances yet. Deposit funds to one of your /wallets."
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatWallets(wallets []model.Wallet) string {
	if len(wallets) == 0 {
		return "👛 You don't have any wallets yet. Create one with /wallets new <networkId>."
	}
	var b strings.Builder
	b.WriteString("👛 Your wallets\n")
	for _, w := range wallets {
		fmt.Fprintf(&b, "\n🌐 %s", model.NetworkName(w.Network))
		if w.IsDefault {
			b.WriteString(" ⭐ default")
		}
		fmt.Fprintf(&b, "\n%s\n", w.Address)
	}
	return strings.TrimRight(b.String(), "\n")
}

// historyAmount переводит сумму из базовых единиц API в отображаемые
func historyAmount(s string) string {
	v, err := amount.FromBaseUnits(s)
	if err != nil {
		return s
	}
	return v.StringFixed(2)
}

func transferRecipient(t model.Transfer) string {
	switch {
	case t.DestinationEmail != "":
		return t.DestinationEmail
	case len(t.DestinationAddr) > 12:
		return t.DestinationAddr[:6] + "…" + t.DestinationAddr[len(t.DestinationAddr)-4:]
	}
	return t.DestinationAddr
}

func formatHistory(page *model.TransferPage) string {
	if len(page.Items) == 0 {
		if page.Page > 1 {
			return "📜 No more transfers."
		}
		return "📜 You don't have any transfers yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📜 Transfer history (page %d)\n", page.Page)
	for _, t := range page.Items {
		fmt.Fprintf(&b, "\n%s %s %s", strings.ToUpper(t.Type), historyAmount(t.Amount), t.Currency)
		if to := transferRecipient(t); to != "" {
			fmt.Fprintf(&b, " → %s", to)
		}
		fmt.Fprintf(&b, "\nStatus: %s", t.Status)
		if !t.CreatedAt.IsZero() {
			fmt.Fprintf(&b, " • %s", t.CreatedAt.UTC().Format("2006-01-02 15:04"))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatProfile(p *service.Profile) string {
	var b strings.Builder
	b.WriteString("👤 Your profile\n\n")
	if name := strings.TrimSpace(p.User.FirstName + " " + p.User.LastName); name != "" {
		fmt.Fprintf(&b, "Name: %s\n", name)
	}
	fmt.Fprintf(&b, "Email: %s\n", p.User.Email)
	if p.User.OrganizationID != "" {
		fmt.Fprintf(&b, "Organization: %s\n", p.User.OrganizationID)
	}
	switch {
	case p.KYC == nil:
		b.WriteString("KYC: unavailable")
	case p.KYC.IsApproved:
		b.WriteString("KYC: ✅ approved")
	default:
		status := p.KYC.Status
		if status == "" {
			status = "not started"
		}
		fmt.Fprintf(&b, "KYC: ⏳ %s", status)
	}
	return b.String()
}

func formatNewWallet(w *model.Wallet) string {
	return fmt.Sprintf("✅ New %s wallet created:\n%s", model.NetworkName(w.Network), w.Address)
}
