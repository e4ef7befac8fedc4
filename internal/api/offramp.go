package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ivanoskov/payout_bot/internal/model"
)

const kycApproved = "approved"

// KYCStatus возвращает статус последней заявки KYC. Нет заявок - статус "none".
func (c *Client) KYCStatus(ctx context.Context, token string) (*model.KYCStatus, error) {
	var resp struct {
		Data []struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := c.do(ctx, "kyc_status", http.MethodGet, "/kycs?limit=1", token, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return &model.KYCStatus{Status: "none"}, nil
	}
	status := strings.ToLower(resp.Data[0].Status)
	return &model.KYCStatus{Status: status, IsApproved: status == kycApproved}, nil
}

// BankAccounts возвращает привязанные банковские счета
func (c *Client) BankAccounts(ctx context.Context, token string) ([]model.BankAccount, error) {
	var resp struct {
		Data []struct {
			ID          string `json:"id"`
			Country     string `json:"country"`
			Status      string `json:"status"`
			BankAccount struct {
				BankName          string `json:"bankName"`
				BankAccountNumber string `json:"bankAccountNumber"`
			} `json:"bankAccount"`
		} `json:"data"`
	}
	if err := c.do(ctx, "bank_accounts", http.MethodGet, "/accounts", token, nil, &resp); err != nil {
		return nil, err
	}

	accounts := make([]model.BankAccount, 0, len(resp.Data))
	for _, a := range resp.Data {
		number := a.BankAccount.BankAccountNumber
		if len(number) > 4 {
			number = number[len(number)-4:]
		}
		accounts = append(accounts, model.BankAccount{
			ID:             a.ID,
			BankName:       a.BankAccount.BankName,
			LastFourDigits: number,
			Country:        a.Country,
			Status:         a.Status,
		})
	}
	return accounts, nil
}

// WithdrawalQuote запрашивает подписанную котировку вывода в банк.
// Курс и комиссии берутся из quotePayload.
func (c *Client) WithdrawalQuote(ctx context.Context, token string, q model.QuoteRequest) (*model.WithdrawalQuote, error) {
	req := map[string]any{
		"sourceCountry":          "none",
		"destinationCountry":     q.DestinationCountry,
		"amount":                 q.Amount,
		"currency":               q.Currency,
		"preferredBankAccountId": q.BankAccountID,
		"onlyRemittance":         true,
	}
	var resp struct {
		QuotePayload   string `json:"quotePayload"`
		QuoteSignature string `json:"quoteSignature"`
	}
	if err := c.do(ctx, "withdrawal_quote", http.MethodPost, "/quotes/offramp", token, req, &resp); err != nil {
		return nil, err
	}
	if resp.QuotePayload == "" || resp.QuoteSignature == "" {
		return nil, errors.New("quote response is missing payload or signature")
	}

	var payload struct {
		Rate       string `json:"rate"`
		TotalFee   string `json:"totalFee"`
		ToAmount   string `json:"toAmount"`
		ToCurrency string `json:"toCurrency"`
	}
	if err := json.Unmarshal([]byte(resp.QuotePayload), &payload); err != nil {
		return nil, errors.New("quote payload is not valid JSON")
	}

	return &model.WithdrawalQuote{
		QuotePayload:   resp.QuotePayload,
		QuoteSignature: resp.QuoteSignature,
		Rate:           payload.Rate,
		TotalFee:       payload.TotalFee,
		ToAmount:       payload.ToAmount,
		ToCurrency:     payload.ToCurrency,
	}, nil
}

// ExecuteWithdrawal исполняет вывод по ранее полученной котировке
func (c *Client) ExecuteWithdrawal(ctx context.Context, token string, w model.WithdrawalRequest) (*model.Transfer, error) {
	var resp transferWire
	err := c.do(ctx, "execute_withdrawal", http.MethodPost, "/transfers/offramp", token, map[string]string{
		"quotePayload":   w.QuotePayload,
		"quoteSignature": w.QuoteSignature,
		"purposeCode":    w.PurposeCode,
	}, &resp)
	if err != nil {
		return nil, err
	}
	out := resp.toModel()
	return &out, nil
}
