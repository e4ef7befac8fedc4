package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ivanoskov/payout_bot/internal/model"
)

// RequestOTP отправляет код на email и возвращает id сессии подтверждения
func (c *Client) RequestOTP(ctx context.Context, email string) (string, error) {
	var resp struct {
		SID string `json:"sid"`
	}
	err := c.do(ctx, "request_otp", http.MethodPost, "/auth/email-otp/request", "",
		map[string]string{"email": email}, &resp)
	if err != nil {
		return "", err
	}
	if resp.SID == "" {
		return "", errors.New("otp request returned no session id")
	}
	return resp.SID, nil
}

// Authenticate обменивает код на токен доступа
func (c *Client) Authenticate(ctx context.Context, email, otp, sid string) (*model.AuthResult, error) {
	var resp model.AuthResult
	err := c.do(ctx, "authenticate", http.MethodPost, "/auth/email-otp/authenticate", "",
		map[string]string{"email": email, "otp": otp, "sid": sid}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("authentication returned no access token")
	}
	return &resp, nil
}

// Me возвращает профиль текущего пользователя
func (c *Client) Me(ctx context.Context, token string) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, "me", http.MethodGet, "/auth/me", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
