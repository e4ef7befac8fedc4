package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ivanoskov/payout_bot/internal/model"
)

// HistoryPageSize - записей на странице истории
const HistoryPageSize = 10

var (
	// ErrNotAuthenticated - операция требует входа
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired - токен отвергнут API, пользователь разлогинен
	ErrSessionExpired = errors.New("session expired")
)

// Profile - профиль пользователя со статусом KYC. KYC равен nil, если статус получить не удалось.
type Profile struct {
	User model.User
	KYC  *model.KYCStatus
}

// withSession выполняет операцию от имени авторизованного пользователя.
// Отказ API по токену разлогинивает сессию.
func (e *Engine) withSession(ctx context.Context, userID int64, fn func(sess *model.Session) error) error {
	unlock := e.locks.lock(userID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !sess.Authenticated {
		return ErrNotAuthenticated
	}

	err = fn(sess)
	if err != nil && Classify(err) == KindAuthExpired {
		e.logger.Info("token rejected, logging out", zap.Int64("user", userID))
		e.expire(sess)
		if saveErr := e.sessions.Save(ctx, sess); saveErr != nil {
			return saveErr
		}
		return ErrSessionExpired
	}
	return err
}

// Session возвращает копию сессии пользователя
func (e *Engine) Session(ctx context.Context, userID int64) (*model.Session, error) {
	return e.sessions.Get(ctx, userID)
}

// Balances возвращает балансы кошельков, кошелек по умолчанию первым
func (e *Engine) Balances(ctx context.Context, userID int64) ([]model.WalletBalance, error) {
	var out []model.WalletBalance
	err := e.withSession(ctx, userID, func(sess *model.Session) error {
		balances, err := e.fetchBalances(ctx, sess)
		if err != nil {
			return err
		}
		out = append([]model.WalletBalance(nil), balances...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].IsDefault && !out[j].IsDefault })
		return nil
	})
	return out, err
}

func (e *Engine) Wallets(ctx context.Context, userID int64) ([]model.Wallet, error) {
	var out []model.Wallet
	err := e.withSession(ctx, userID, func(sess *model.Session) error {
		wallets, err := e.api.ListWallets(ctx, sess.Token)
		if err != nil {
			return fmt.Errorf("list wallets: %w", err)
		}
		out = wallets
		return nil
	})
	return out, err
}

func (e *Engine) SetDefaultWallet(ctx context.Context, userID int64, walletID string) error {
	return e.withSession(ctx, userID, func(sess *model.Session) error {
		if err := e.api.SetDefaultWallet(ctx, sess.Token, walletID); err != nil {
			return fmt.Errorf("set default wallet: %w", err)
		}
		e.invalidateBalances(userID)
		return nil
	})
}

// GenerateWallet создает кошелек в сети networkID
func (e *Engine) GenerateWallet(ctx context.Context, userID int64, networkID string) (*model.Wallet, error) {
	var out *model.Wallet
	err := e.withSession(ctx, userID, func(sess *model.Session) error {
		wallet, err := e.api.GenerateWallet(ctx, sess.Token, networkID)
		if err != nil {
			return fmt.Errorf("generate wallet: %w", err)
		}
		e.invalidateBalances(userID)
		out = wallet
		return nil
	})
	return out, err
}

// History возвращает страницу истории переводов, новые первыми. page начинается с 1.
func (e *Engine) History(ctx context.Context, userID int64, page int) (*model.TransferPage, error) {
	if page < 1 {
		page = 1
	}
	var out *model.TransferPage
	err := e.withSession(ctx, userID, func(sess *model.Session) error {
		p, err := e.api.TransferHistory(ctx, sess.Token, page, HistoryPageSize)
		if err != nil {
			return fmt.Errorf("transfer history: %w", err)
		}
		sort.SliceStable(p.Items, func(i, j int) bool { return p.Items[i].CreatedAt.After(p.Items[j].CreatedAt) })
		out = p
		return nil
	})
	return out, err
}

// Profile возвращает профиль и статус KYC
func (e *Engine) Profile(ctx context.Context, userID int64) (*Profile, error) {
	var out *Profile
	err := e.withSession(ctx, userID, func(sess *model.Session) error {
		user, err := e.api.Me(ctx, sess.Token)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		out = &Profile{User: *user}

		kyc, err := e.api.KYCStatus(ctx, sess.Token)
		if err != nil {
			if Classify(err) == KindAuthExpired {
				return err
			}
			e.logger.Warn("failed to load kyc status", zap.Int64("user", userID), zap.Error(err))
			return nil
		}
		out.KYC = kyc
		return nil
	})
	return out, err
}

// Logout завершает сессию. false - пользователь не был авторизован.
func (e *Engine) Logout(ctx context.Context, userID int64) (bool, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if !sess.Authenticated {
		return false, nil
	}
	if err := e.sessions.Clear(ctx, userID); err != nil {
		return false, err
	}
	if e.notifier != nil {
		e.notifier.Unsubscribe(userID)
	}
	e.invalidateBalances(userID)
	e.logger.Info("user logged out", zap.Int64("user", userID))
	return true, nil
}

// Resubscribe восстанавливает подписку на уведомления для авторизованной сессии
func (e *Engine) Resubscribe(ctx context.Context, userID int64) error {
	if e.notifier == nil {
		return nil
	}
	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return err
	}
	if sess.Authenticated && sess.OrganizationID != "" {
		e.notifier.Subscribe(userID, sess.Token, sess.OrganizationID)
	}
	return nil
}
