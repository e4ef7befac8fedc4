package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/payout_bot/internal/api"
)

type fakeAuthorizer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (a *fakeAuthorizer) AuthorizeChannel(_ context.Context, token, socketID, channel string) (*api.ChannelAuth, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, token+"|"+socketID+"|"+channel)
	if a.err != nil {
		return nil, a.err
	}
	return &api.ChannelAuth{Auth: "key:signature"}, nil
}

type sentMessage struct {
	chatID int64
	text   string
}

// fakePusher - минимальный сервер протокола Pusher
type fakePusher struct {
	srv         *httptest.Server
	connections int32
	closed      chan struct{}
	subscribed  chan map[string]string
}

func newFakePusher(t *testing.T) *fakePusher {
	p := &fakePusher{
		closed:     make(chan struct{}, 8),
		subscribed: make(chan map[string]string, 8),
	}
	upgrader := websocket.Upgrader{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		atomic.AddInt32(&p.connections, 1)
		defer func() { p.closed <- struct{}{} }()

		p.write(conn, "pusher:connection_established", "", `{"socket_id":"123.456","activity_timeout":120}`)

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Event != eventSubscribe {
				continue
			}
			var data map[string]string
			if err := json.Unmarshal(f.Data, &data); err != nil {
				t.Errorf("subscribe data: %v", err)
				return
			}
			p.subscribed <- data
			channel := data["channel"]
			p.write(conn, eventSubscribed, channel, `{}`)
			p.write(conn, eventPing, "", `{}`)
			p.write(conn, eventDeposit, "private-org-other", `{"amount":"1","token":"USDT","network":"1"}`)
			p.write(conn, eventDeposit, channel, `{"amount":"10","token":"USDC","network":"137"}`)
		}
	}))
	t.Cleanup(p.srv.Close)
	return p
}

// write отправляет кадр; data, как и в Pusher, передается JSON-строкой.
// Ошибки записи не важны: клиент может закрыть соединение в любой момент.
func (p *fakePusher) write(conn *websocket.Conn, event, channel, data string) {
	encoded, _ := json.Marshal(data)
	_ = conn.WriteJSON(frame{Event: event, Channel: channel, Data: encoded})
}

func (p *fakePusher) endpoint() string {
	return "ws" + strings.TrimPrefix(p.srv.URL, "http")
}

func newTestHub(p *fakePusher, auth Authorizer) (*Hub, chan sentMessage) {
	sent := make(chan sentMessage, 16)
	hub := NewHub(Options{
		Endpoint: p.endpoint(),
		Auth:     auth,
		Send:     func(chatID int64, text string) { sent <- sentMessage{chatID, text} },
	})
	return hub, sent
}

func receive(t *testing.T, ch chan sentMessage) sentMessage {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return sentMessage{}
	}
}

func TestHubDeliversDeposits(t *testing.T) {
	p := newFakePusher(t)
	auth := &fakeAuthorizer{}
	hub, sent := newTestHub(p, auth)
	defer hub.Close()

	hub.Subscribe(7, "token-7", "org-1")

	select {
	case data := <-p.subscribed:
		assert.Equal(t, "private-org-org-1", data["channel"])
		assert.Equal(t, "key:signature", data["auth"])
		_, hasChannelData := data["channel_data"]
		assert.False(t, hasChannelData)
	case <-time.After(5 * time.Second):
		t.Fatal("no subscribe frame")
	}

	assert.Equal(t, sentMessage{7, msgEnabled}, receive(t, sent))
	m := receive(t, sent)
	assert.Equal(t, int64(7), m.chatID)
	assert.Equal(t, "💰 New deposit received\n\n10 USDC deposited on Polygon", m.text)

	assert.Equal(t, []string{"token-7|123.456|private-org-org-1"}, auth.calls)
	assert.True(t, hub.Subscribed(7))
}

func TestHubUnsubscribeClosesConnection(t *testing.T) {
	p := newFakePusher(t)
	hub, sent := newTestHub(p, &fakeAuthorizer{})
	defer hub.Close()

	hub.Subscribe(7, "token", "org-1")
	receive(t, sent)

	hub.Unsubscribe(7)
	assert.False(t, hub.Subscribed(7))
	select {
	case <-p.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("connection was not closed")
	}
}

func TestHubResubscribeReplaces(t *testing.T) {
	p := newFakePusher(t)
	hub, sent := newTestHub(p, &fakeAuthorizer{})
	defer hub.Close()

	hub.Subscribe(7, "token", "org-1")
	receive(t, sent)

	hub.Subscribe(7, "token", "org-2")
	select {
	case <-p.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("old connection was not closed")
	}

	// последний subscribe-кадр пришел от новой подписки
	var data map[string]string
	for i := 0; i < 2; i++ {
		data = <-p.subscribed
	}
	assert.Equal(t, "private-org-org-2", data["channel"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&p.connections))
}

func TestHubAuthorizationRejected(t *testing.T) {
	p := newFakePusher(t)
	hub, sent := newTestHub(p, &fakeAuthorizer{err: &api.Error{Status: http.StatusUnauthorized, Message: "Unauthorized"}})

	hub.Subscribe(7, "stale", "org-1")
	assert.Equal(t, sentMessage{7, msgFailed}, receive(t, sent))

	// после отказа по токену подписка не переподключается, Close не зависает
	done := make(chan struct{})
	go func() {
		hub.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&p.connections))
}

func TestDepositMessage(t *testing.T) {
	assert.Equal(t, "💰 New deposit received\n\n5 USDT deposited on Base",
		Deposit{Amount: "5", Token: "USDT", Network: "8453"}.Message())
	assert.Equal(t, "💰 New deposit received\n\n5 USDT", Deposit{Amount: "5", Token: "USDT"}.Message())
}

func TestFramePayload(t *testing.T) {
	var d Deposit
	require.NoError(t, frame{Data: json.RawMessage(`"{\"amount\":\"3\"}"`)}.payload(&d))
	assert.Equal(t, "3", d.Amount)

	require.NoError(t, frame{Data: json.RawMessage(`{"amount":"4"}`)}.payload(&d))
	assert.Equal(t, "4", d.Amount)
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "private-org-abc", ChannelName("abc"))
}
