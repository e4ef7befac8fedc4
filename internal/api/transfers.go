package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ivanoskov/payout_bot/internal/model"
)

const purposeCodeSelf = "self"

type transferRequest struct {
	Email         string `json:"email,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Network       string `json:"network,omitempty"`
	PurposeCode   string `json:"purposeCode"`
	Note          string `json:"note,omitempty"`
}

// transferWire - перевод в ответе API. Получатель может прийти вложенным объектом.
type transferWire struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Status   string    `json:"status"`
	Amount   string    `json:"amount"`
	Currency string    `json:"currency"`
	Token    string    `json:"token"`
	Network  string    `json:"network"`
	Note     string    `json:"note"`
	Created  time.Time `json:"createdAt"`
	Receiver *struct {
		Email   string `json:"email"`
		Address string `json:"address"`
	} `json:"receiver"`
	DestinationEmail string `json:"destinationEmail"`
	DestinationAddr  string `json:"destinationAddress"`
}

func (w transferWire) toModel() model.Transfer {
	t := model.Transfer{
		ID:               w.ID,
		Type:             w.Type,
		Status:           w.Status,
		Amount:           w.Amount,
		Currency:         w.Currency,
		Network:          w.Network,
		Note:             w.Note,
		DestinationEmail: w.DestinationEmail,
		DestinationAddr:  w.DestinationAddr,
		CreatedAt:        w.Created,
	}
	if t.Currency == "" {
		t.Currency = w.Token
	}
	if w.Receiver != nil {
		if t.DestinationEmail == "" {
			t.DestinationEmail = w.Receiver.Email
		}
		if t.DestinationAddr == "" {
			t.DestinationAddr = w.Receiver.Address
		}
	}
	return t
}

// SendEmailTransfer переводит средства на email. Сумма уже в базовых единицах.
func (c *Client) SendEmailTransfer(ctx context.Context, token string, t model.EmailTransfer) (*model.Transfer, error) {
	var resp transferWire
	err := c.do(ctx, "send_email", http.MethodPost, "/transfers/send", token, transferRequest{
		Email:       t.ReceiverEmail,
		Amount:      t.Amount,
		Currency:    t.Currency,
		Network:     t.Network,
		PurposeCode: purposeCodeSelf,
		Note:        t.Note,
	}, &resp)
	if err != nil {
		return nil, err
	}
	out := resp.toModel()
	return &out, nil
}

// SendWalletTransfer переводит средства на внешний адрес
func (c *Client) SendWalletTransfer(ctx context.Context, token string, t model.WalletTransfer) (*model.Transfer, error) {
	var resp transferWire
	err := c.do(ctx, "send_wallet", http.MethodPost, "/transfers/wallet-withdraw", token, transferRequest{
		WalletAddress: t.ReceiverAddress,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Network:       t.Network,
		PurposeCode:   purposeCodeSelf,
		Note:          t.Note,
	}, &resp)
	if err != nil {
		return nil, err
	}
	out := resp.toModel()
	return &out, nil
}

type batchItem struct {
	RequestID string          `json:"requestId"`
	Request   transferRequest `json:"request"`
}

type batchResponse struct {
	Responses []struct {
		RequestID string        `json:"requestId"`
		Response  *transferWire `json:"response"`
		Error     *struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		} `json:"error"`
	} `json:"responses"`
}

// SendBatch отправляет пакет переводов одним запросом. Результаты возвращаются
// в порядке входных записей; ошибка по отдельному получателю не является ошибкой вызова.
func (c *Client) SendBatch(ctx context.Context, token string, transfers []model.BatchTransfer) ([]model.BatchResult, error) {
	items := make([]batchItem, len(transfers))
	byID := make(map[string]int, len(transfers))
	for i, t := range transfers {
		id := uuid.NewString()
		byID[id] = i
		items[i] = batchItem{
			RequestID: id,
			Request: transferRequest{
				Email:       t.Email,
				Amount:      t.Amount,
				Currency:    t.Currency,
				PurposeCode: purposeCodeSelf,
				Note:        t.Note,
			},
		}
	}

	var resp batchResponse
	err := c.do(ctx, "send_batch", http.MethodPost, "/transfers/send-batch", token,
		map[string]any{"requests": items}, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]model.BatchResult, len(transfers))
	for i, t := range transfers {
		results[i] = model.BatchResult{Email: t.Email, Error: "no response for this recipient"}
	}
	for _, r := range resp.Responses {
		i, ok := byID[r.RequestID]
		if !ok {
			continue
		}
		res := model.BatchResult{Email: transfers[i].Email}
		switch {
		case r.Error != nil:
			res.Error = r.Error.Message
			if res.Error == "" {
				res.Error = r.Error.Error
			}
			if res.Error == "" {
				res.Error = "transfer failed"
			}
		case r.Response != nil:
			res.ID = r.Response.ID
			res.Status = r.Response.Status
		}
		results[i] = res
	}
	return results, nil
}

// TransferHistory возвращает страницу истории, page начинается с 1
func (c *Client) TransferHistory(ctx context.Context, token string, page, pageSize int) (*model.TransferPage, error) {
	var resp struct {
		Page    int            `json:"page"`
		Limit   int            `json:"limit"`
		Count   int            `json:"count"`
		HasMore bool           `json:"hasMore"`
		Data    []transferWire `json:"data"`
	}
	path := fmt.Sprintf("/transfers?page=%d&limit=%d", page, pageSize)
	if err := c.do(ctx, "transfer_history", http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, err
	}

	out := &model.TransferPage{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: resp.Count,
		HasMore:    resp.HasMore || page*pageSize < resp.Count,
		Items:      make([]model.Transfer, 0, len(resp.Data)),
	}
	for _, t := range resp.Data {
		out.Items = append(out.Items, t.toModel())
	}
	return out, nil
}
