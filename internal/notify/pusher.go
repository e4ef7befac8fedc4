// Package notify держит подписки чатов на события организации в Pusher
// и пересылает их в чат через переданную функцию отправки.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ivanoskov/payout_bot/internal/api"
	"github.com/ivanoskov/payout_bot/internal/model"
)

// События протокола Pusher
const (
	eventConnectionEstablished     = "pusher:connection_established"
	eventError                     = "pusher:error"
	eventPing                      = "pusher:ping"
	eventPong                      = "pusher:pong"
	eventSubscribe                 = "pusher:subscribe"
	eventSubscribed                = "pusher_internal:subscription_succeeded"
	eventSubscriptionError         = "pusher:subscription_error"
	eventInternalSubscriptionError = "pusher_internal:subscription_error"
	eventDeposit                   = "deposit"
)

const (
	msgEnabled = "🔔 Notifications enabled. You will receive real-time updates about deposits."
	msgFailed  = "⚠️ Failed to enable notifications. You may not receive real-time updates."

	maxBackoff = 30 * time.Second
)

// Authorizer подписывает приватный канал для сокета
type Authorizer interface {
	AuthorizeChannel(ctx context.Context, token, socketID, channel string) (*api.ChannelAuth, error)
}

// SendFunc отправляет текст в чат
type SendFunc func(chatID int64, text string)

type Options struct {
	Key     string
	Cluster string
	// Endpoint переопределяет адрес сервера (тесты, self-hosted)
	Endpoint string
	Auth     Authorizer
	Send     SendFunc
	Logger   *zap.Logger
}

// Hub - реестр подписок: не больше одной на чат
type Hub struct {
	endpoint string
	auth     Authorizer
	send     SendFunc
	logger   *zap.Logger

	mu   sync.Mutex
	subs map[int64]*subscription
	wg   sync.WaitGroup
}

type subscription struct {
	chatID  int64
	token   string
	channel string
	cancel  context.CancelFunc

	// announced - пользователю уже сообщили об исходе подписки; поле читает только горутина подписки
	announced bool
}

func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	send := opts.Send
	if send == nil {
		send = func(int64, string) {}
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("wss://ws-%s.pusher.com/app/%s?protocol=7&client=go&version=1.0",
			opts.Cluster, url.PathEscape(opts.Key))
	}
	return &Hub{
		endpoint: endpoint,
		auth:     opts.Auth,
		send:     send,
		logger:   logger.With(zap.String("component", "notify")),
		subs:     make(map[int64]*subscription),
	}
}

// ChannelName - приватный канал организации
func ChannelName(organizationID string) string {
	return "private-org-" + organizationID
}

// Subscribe подписывает чат на события организации, заменяя прежнюю подписку
func (h *Hub) Subscribe(chatID int64, token, organizationID string) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		chatID:  chatID,
		token:   token,
		channel: ChannelName(organizationID),
		cancel:  cancel,
	}

	h.mu.Lock()
	if old, ok := h.subs[chatID]; ok {
		old.cancel()
	}
	h.subs[chatID] = sub
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run(ctx, sub)
	}()
}

// Unsubscribe закрывает подписку чата, если она есть
func (h *Hub) Unsubscribe(chatID int64) {
	h.mu.Lock()
	sub, ok := h.subs[chatID]
	delete(h.subs, chatID)
	h.mu.Unlock()
	if ok {
		sub.cancel()
	}
}

// Subscribed сообщает, есть ли у чата активная подписка
func (h *Hub) Subscribed(chatID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[chatID]
	return ok
}

// Close закрывает все подписки и ждет завершения соединений
func (h *Hub) Close() {
	h.mu.Lock()
	for id, sub := range h.subs {
		sub.cancel()
		delete(h.subs, id)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// run держит соединение подписки и переподключается с экспоненциальной задержкой
func (h *Hub) run(ctx context.Context, sub *subscription) {
	backoff := time.Second
	for {
		subscribed, err := h.session(ctx, sub)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, api.ErrUnauthorized) {
			// токен отозван: переподключение не поможет до нового входа
			h.logger.Info("notification token rejected", zap.Int64("chat", sub.chatID))
			return
		}
		if subscribed {
			backoff = time.Second
		}
		h.logger.Warn("notification connection lost",
			zap.Int64("chat", sub.chatID), zap.Duration("retry_in", backoff), zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// payload раскрывает data: Pusher передает ее JSON-строкой, но допускает и объект
func (f frame) payload(dst any) error {
	raw := []byte(f.Data)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = []byte(s)
	}
	return json.Unmarshal(raw, dst)
}

// session обслуживает одно соединение. true - подписка на канал была подтверждена.
func (h *Hub) session(ctx context.Context, sub *subscription) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, h.endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dial pusher: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	// чтение блокируется, поэтому отмена закрывает соединение
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	subscribed := false
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return subscribed, fmt.Errorf("read pusher frame: %w", err)
		}

		switch f.Event {
		case eventConnectionEstablished:
			if err := h.subscribe(ctx, conn, sub, f); err != nil {
				h.announce(sub, msgFailed)
				return subscribed, err
			}
		case eventPing:
			if err := conn.WriteJSON(frame{Event: eventPong, Data: json.RawMessage(`{}`)}); err != nil {
				return subscribed, fmt.Errorf("write pong: %w", err)
			}
		case eventSubscribed:
			h.announce(sub, msgEnabled)
			subscribed = true
			h.logger.Info("subscribed to notifications", zap.Int64("chat", sub.chatID), zap.String("channel", sub.channel))
		case eventSubscriptionError, eventInternalSubscriptionError:
			h.announce(sub, msgFailed)
			return subscribed, fmt.Errorf("subscription rejected: %s", string(f.Data))
		case eventError:
			h.logger.Warn("pusher error", zap.Int64("chat", sub.chatID), zap.ByteString("data", f.Data))
		case eventDeposit:
			if f.Channel != "" && f.Channel != sub.channel {
				continue
			}
			var d Deposit
			if err := f.payload(&d); err != nil {
				h.logger.Warn("malformed deposit event", zap.Int64("chat", sub.chatID), zap.Error(err))
				continue
			}
			h.send(sub.chatID, d.Message())
		}
	}
}

// announce сообщает об исходе подписки один раз; переподключения проходят молча
func (h *Hub) announce(sub *subscription, text string) {
	if sub.announced {
		return
	}
	sub.announced = true
	h.send(sub.chatID, text)
}

func (h *Hub) subscribe(ctx context.Context, conn *websocket.Conn, sub *subscription, f frame) error {
	var established struct {
		SocketID string `json:"socket_id"`
	}
	if err := f.payload(&established); err != nil || established.SocketID == "" {
		return fmt.Errorf("malformed connection_established frame: %s", string(f.Data))
	}

	auth, err := h.auth.AuthorizeChannel(ctx, sub.token, established.SocketID, sub.channel)
	if err != nil {
		return fmt.Errorf("authorize channel: %w", err)
	}
	if auth == nil || auth.Auth == "" {
		return errors.New("authorize channel: empty auth")
	}

	body := map[string]string{"auth": auth.Auth, "channel": sub.channel}
	if auth.ChannelData != "" {
		body["channel_data"] = auth.ChannelData
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(frame{Event: eventSubscribe, Data: data}); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Deposit - событие зачисления
type Deposit struct {
	Amount  string `json:"amount"`
	Token   string `json:"token"`
	Network string `json:"network"`
}

func (d Deposit) Message() string {
	text := fmt.Sprintf("💰 New deposit received\n\n%s %s", d.Amount, d.Token)
	if d.Network != "" {
		text += " deposited on " + model.NetworkName(d.Network)
	}
	return text
}
