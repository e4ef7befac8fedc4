package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/ivanoskov/payout_bot/internal/app"
)

// Request структура входящего запроса от API Gateway
type Request struct {
	Body string `json:"body"`
}

// Response структура ответа для API Gateway
type Response struct {
	StatusCode int               `json:"statusCode"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Экземпляр переиспользуется между вызовами в одном контейнере.
// Сессии между контейнерами разделяет только redis или supabase бэкенд.
var (
	instance    *app.App
	instanceErr error
	initOnce    sync.Once
)

func getApp() (*app.App, error) {
	initOnce.Do(func() {
		// контекст вызова живет меньше экземпляра; подписки Pusher не переживают завершение вызова
		instance, instanceErr = app.New(context.Background(), app.Options{Notifications: false})
	})
	return instance, instanceErr
}

func Handler(ctx context.Context, request Request) (*Response, error) {
	a, err := getApp()
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}

	// Обработка webhook-обновления
	if err := a.Bot.HandleWebhook(ctx, []byte(request.Body)); err != nil {
		return errorResponse(http.StatusBadRequest, err)
	}

	return &Response{
		StatusCode: http.StatusOK,
		Body:       "",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}, nil
}

func errorResponse(status int, err error) (*Response, error) {
	return &Response{
		StatusCode: status,
		Body:       err.Error(),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}, nil
}

func main() {
	// Точка входа для локального тестирования
}
