package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ivanoskov/payout_bot/internal/model"
	"github.com/ivanoskov/payout_bot/internal/repository"
)

const testUser int64 = 42

// fakeAPI записывает вызовы и возвращает заранее заданные ответы
type fakeAPI struct {
	mu sync.Mutex

	balances     []model.WalletBalance
	balancesErr  error
	balanceCalls int

	wallets     []model.Wallet
	defaultSet  []string
	generated   []string
	history     *model.TransferPage
	historyArgs [][2]int
	me          *model.User
	meErr       error

	otpRequests []string
	auth        *model.AuthResult
	authErr     error

	emailTransfers  []model.EmailTransfer
	walletTransfers []model.WalletTransfer
	sendErr         error

	batches      [][]model.BatchTransfer
	batchResults []model.BatchResult
	batchErr     error

	kyc         *model.KYCStatus
	kycErr      error
	accounts    []model.BankAccount
	quote       *model.WithdrawalQuote
	quoteErr    error
	quoteCalls  int
	withdrawals []model.WithdrawalRequest
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		balances: []model.WalletBalance{
			{WalletID: "w-polygon", Network: "137", IsDefault: true, Tokens: []model.TokenBalance{{Symbol: "USDC", Balance: "10000000000"}}},
			{WalletID: "w-base", Network: "8453", Tokens: []model.TokenBalance{{Symbol: "USDC"}, {Symbol: "USDT"}}},
		},
		auth: &model.AuthResult{
			AccessToken: "fresh-token",
			User:        model.User{ID: "u1", Email: "carol@example.com", OrganizationID: "org-9"},
		},
		kyc:      &model.KYCStatus{Status: "approved", IsApproved: true},
		accounts: []model.BankAccount{{ID: "acc-1", BankName: "Revolut", LastFourDigits: "1234", Country: "gb"}},
		quote: &model.WithdrawalQuote{
			QuotePayload:   "payload",
			QuoteSignature: "signature",
			Rate:           "0.92",
			TotalFee:       "275000000",
			ToAmount:       "4725000000",
			ToCurrency:     "EUR",
		},
	}
}

func (f *fakeAPI) RequestOTP(_ context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otpRequests = append(f.otpRequests, email)
	return "sid-1", nil
}

func (f *fakeAPI) Authenticate(_ context.Context, _, _, _ string) (*model.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.auth, nil
}

func (f *fakeAPI) Me(context.Context, string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meErr != nil {
		return nil, f.meErr
	}
	if f.me == nil {
		return &model.User{ID: "u1", Email: "alice@example.com", OrganizationID: "org-1"}, nil
	}
	return f.me, nil
}

func (f *fakeAPI) ListBalances(context.Context, string) ([]model.WalletBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	if f.balancesErr != nil {
		return nil, f.balancesErr
	}
	return f.balances, nil
}

func (f *fakeAPI) ListWallets(context.Context, string) ([]model.Wallet, error) {
	return f.wallets, nil
}

func (f *fakeAPI) GenerateWallet(_ context.Context, _, networkID string) (*model.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated = append(f.generated, networkID)
	return &model.Wallet{ID: "w-new", Network: networkID, Address: "0xabc"}, nil
}

func (f *fakeAPI) SetDefaultWallet(_ context.Context, _, walletID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultSet = append(f.defaultSet, walletID)
	return nil
}

func (f *fakeAPI) SendEmailTransfer(_ context.Context, _ string, t model.EmailTransfer) (*model.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.emailTransfers = append(f.emailTransfers, t)
	return &model.Transfer{ID: "tr-1", Status: "success"}, nil
}

func (f *fakeAPI) SendWalletTransfer(_ context.Context, _ string, t model.WalletTransfer) (*model.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.walletTransfers = append(f.walletTransfers, t)
	return &model.Transfer{ID: "tr-2", Status: "pending"}, nil
}

func (f *fakeAPI) SendBatch(_ context.Context, _ string, transfers []model.BatchTransfer) ([]model.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, transfers)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	if f.batchResults != nil {
		return f.batchResults, nil
	}
	out := make([]model.BatchResult, len(transfers))
	for i, t := range transfers {
		out[i] = model.BatchResult{Email: t.Email, Status: "success"}
	}
	return out, nil
}

func (f *fakeAPI) KYCStatus(context.Context, string) (*model.KYCStatus, error) {
	if f.kycErr != nil {
		return nil, f.kycErr
	}
	return f.kyc, nil
}

func (f *fakeAPI) BankAccounts(context.Context, string) ([]model.BankAccount, error) {
	return f.accounts, nil
}

func (f *fakeAPI) WithdrawalQuote(context.Context, string, model.QuoteRequest) (*model.WithdrawalQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls++
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeAPI) ExecuteWithdrawal(_ context.Context, _ string, w model.WithdrawalRequest) (*model.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawals = append(f.withdrawals, w)
	return &model.Transfer{ID: "wd-1", Status: "processing"}, nil
}

func (f *fakeAPI) TransferHistory(_ context.Context, _ string, page, pageSize int) (*model.TransferPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyArgs = append(f.historyArgs, [2]int{page, pageSize})
	if f.history == nil {
		return &model.TransferPage{Page: page, PageSize: pageSize}, nil
	}
	return f.history, nil
}

type fakeNotifier struct {
	mu           sync.Mutex
	subscribed   map[int64]string
	unsubscribed []int64
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{subscribed: make(map[int64]string)}
}

func (n *fakeNotifier) Subscribe(chatID int64, _, organizationID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribed[chatID] = organizationID
}

func (n *fakeNotifier) Unsubscribe(chatID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subscribed, chatID)
	n.unsubscribed = append(n.unsubscribed, chatID)
}

// mapCache - кеш балансов без срока жизни
type mapCache struct {
	mu          sync.Mutex
	entries     map[int64][]model.WalletBalance
	invalidated int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[int64][]model.WalletBalance)}
}

func (c *mapCache) Get(userID int64) ([]model.WalletBalance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[userID]
	return b, ok
}

func (c *mapCache) Put(userID int64, balances []model.WalletBalance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = balances
	return nil
}

func (c *mapCache) Invalidate(userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.invalidated++
	return nil
}

type testEnv struct {
	engine   *Engine
	api      *fakeAPI
	sessions *repository.Sessions
	notifier *fakeNotifier
	cache    *mapCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		api:      newFakeAPI(),
		sessions: repository.NewSessions(repository.NewMemoryStore(), "test-secret", 0),
		notifier: newFakeNotifier(),
		cache:    newMapCache(),
	}
	env.engine = NewEngine(Options{
		API:      env.api,
		Sessions: env.sessions,
		Balances: env.cache,
		Notifier: env.notifier,
		Logger:   zap.NewNop(),
	})
	return env
}

// login помечает тестового пользователя авторизованным
func (env *testEnv) login(t *testing.T) {
	t.Helper()
	sess, err := env.sessions.Get(context.Background(), testUser)
	require.NoError(t, err)
	sess.Login(&model.AuthResult{
		AccessToken: "token",
		User:        model.User{Email: "me@example.com", OrganizationID: "org-1"},
	})
	require.NoError(t, env.sessions.Save(context.Background(), sess))
}

func (env *testEnv) session(t *testing.T) *model.Session {
	t.Helper()
	sess, err := env.sessions.Get(context.Background(), testUser)
	require.NoError(t, err)
	return sess
}

func (env *testEnv) start(t *testing.T, flow model.FlowName, choice string) *Reply {
	t.Helper()
	r, err := env.engine.StartFlow(context.Background(), testUser, flow, choice)
	require.NoError(t, err)
	return r
}

func (env *testEnv) text(t *testing.T, text string) *Reply {
	t.Helper()
	r, err := env.engine.HandleFlowInput(context.Background(), testUser, Input{Text: text})
	require.NoError(t, err)
	return r
}

func (env *testEnv) action(t *testing.T, a Action) *Reply {
	t.Helper()
	r, err := env.engine.HandleFlowInput(context.Background(), testUser, Input{Action: a})
	require.NoError(t, err)
	return r
}
