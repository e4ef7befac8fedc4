package model

import "time"

// User - профиль пользователя платежной платформы
type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	OrganizationID string `json:"organizationId"`
	Status         string `json:"status,omitempty"`
}

type AuthResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         User   `json:"user"`
}

type TokenBalance struct {
	Symbol   string `json:"symbol"`
	Balance  string `json:"balance"`
	Decimals int    `json:"decimals"`
	Address  string `json:"address"`
}

// WalletBalance - балансы токенов одного кошелька в сети
type WalletBalance struct {
	WalletID  string         `json:"walletId"`
	Network   string         `json:"network"`
	IsDefault bool           `json:"isDefault"`
	Tokens    []TokenBalance `json:"balances"`
}

type Wallet struct {
	ID        string `json:"id"`
	Network   string `json:"network"`
	Address   string `json:"walletAddress"`
	IsDefault bool   `json:"isDefault"`
}

// EmailTransfer - перевод на email. Amount в базовых единицах.
type EmailTransfer struct {
	Amount        string
	Currency      string
	ReceiverEmail string
	Network       string
	Note          string
}

// WalletTransfer - перевод на внешний адрес. Amount в базовых единицах.
type WalletTransfer struct {
	Amount          string
	Currency        string
	ReceiverAddress string
	Network         string
	Note            string
}

type BatchTransfer struct {
	Email    string
	Amount   string // базовые единицы
	Currency string
	Note     string
}

// BatchResult - результат по одному получателю пакета
type BatchResult struct {
	Email  string
	ID     string
	Status string
	Error  string
}

func (r BatchResult) Failed() bool {
	return r.Error != ""
}

type Transfer struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	Status           string    `json:"status"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency"`
	Network          string    `json:"network,omitempty"`
	Note             string    `json:"note,omitempty"`
	DestinationEmail string    `json:"destinationEmail,omitempty"`
	DestinationAddr  string    `json:"destinationAddress,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

type TransferPage struct {
	Items      []Transfer
	Page       int
	PageSize   int
	TotalCount int
	HasMore    bool
}

type KYCStatus struct {
	Status     string
	IsApproved bool
}

type BankAccount struct {
	ID             string `json:"id"`
	BankName       string `json:"bankName"`
	LastFourDigits string `json:"lastFourDigits"`
	Country        string `json:"country"`
	Status         string `json:"status"`
}

type QuoteRequest struct {
	Amount             string // базовые единицы
	Currency           string
	BankAccountID      string
	DestinationCountry string
}

// WithdrawalQuote - подписанная котировка на вывод в банк
type WithdrawalQuote struct {
	QuotePayload   string `json:"quotePayload"`
	QuoteSignature string `json:"quoteSignature"`
	Rate           string `json:"rate"`
	TotalFee       string `json:"totalFee"`
	ToAmount       string `json:"toAmount"`
	ToCurrency     string `json:"toCurrency"`
}

type WithdrawalRequest struct {
	QuotePayload   string
	QuoteSignature string
	PurposeCode    string
}
