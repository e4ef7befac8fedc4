package api

import (
	"context"
	"errors"
	"net/http"
)

// ChannelAuth - подпись для подписки на приватный канал уведомлений
type ChannelAuth struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// AuthorizeChannel подписывает подключение socketID к каналу
func (c *Client) AuthorizeChannel(ctx context.Context, token, socketID, channel string) (*ChannelAuth, error) {
	var resp ChannelAuth
	err := c.do(ctx, "notifications_auth", http.MethodPost, "/notifications/auth", token,
		map[string]string{"socket_id": socketID, "channel_name": channel}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Auth == "" {
		return nil, errors.New("notification auth response has no signature")
	}
	return &resp, nil
}
