package api

import (
	"context"
	"net/http"

	"github.com/ivanoskov/payout_bot/internal/model"
)

func (c *Client) ListBalances(ctx context.Context, token string) ([]model.WalletBalance, error) {
	var balances []model.WalletBalance
	if err := c.do(ctx, "list_balances", http.MethodGet, "/wallets/balances", token, nil, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

func (c *Client) ListWallets(ctx context.Context, token string) ([]model.Wallet, error) {
	var wallets []model.Wallet
	if err := c.do(ctx, "list_wallets", http.MethodGet, "/wallets", token, nil, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

// GenerateWallet создает кошелек в сети networkID
func (c *Client) GenerateWallet(ctx context.Context, token, networkID string) (*model.Wallet, error) {
	var wallet model.Wallet
	err := c.do(ctx, "generate_wallet", http.MethodPost, "/wallets", token,
		map[string]string{"network": networkID}, &wallet)
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (c *Client) SetDefaultWallet(ctx context.Context, token, walletID string) error {
	return c.do(ctx, "set_default_wallet", http.MethodPost, "/wallets/default", token,
		map[string]string{"walletId": walletID}, nil)
}
