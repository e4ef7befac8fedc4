package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ivanoskov/payout_bot/internal/model"
	"github.com/ivanoskov/payout_bot/internal/validate"
)

const (
	keyLoginEmail = "login_email"
	keySID        = "sid"
)

var otpPattern = regexp.MustCompile(`^\d{4,8}$`)

func (e *Engine) startLogin(_ context.Context, sess *model.Session) (*Reply, error) {
	sess.Step = model.At(model.FlowLogin, model.StepLoginEmail)
	return loginEmailPrompt(), nil
}

func loginEmailPrompt() *Reply {
	return reply("🔐 Login\n\nEnter the email address of your account:\n\n(/cancel to abort)")
}

func (e *Engine) loginEmail(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
	email := strings.TrimSpace(in.Text)
	if !validate.IsValidEmail(email) {
		return reprompt("❌ Invalid email format.", loginEmailPrompt()), nil
	}

	sid, err := e.api.RequestOTP(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("request otp: %w", err)
	}
	if err := setFields(sess, map[string]any{keyLoginEmail: email, keySID: sid}); err != nil {
		return nil, err
	}
	sess.Step = model.At(model.FlowLogin, model.StepLoginOTP)

	text := fmt.Sprintf("📨 A one-time code has been sent to %s.\n\nEnter the code:", email)
	if s := validate.SuggestEmailCorrection(email); s.HasTypo {
		text = fmt.Sprintf("⚠️ Did you mean %s? If so, use /cancel and log in again.\n\n%s", s.Suggestion, text)
	}
	return reply(text), nil
}

// otpRetryable - ошибки кода, после которых можно ввести код еще раз
func otpRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid otp") ||
		strings.Contains(msg, "invalid code") ||
		strings.Contains(msg, "expired")
}

func (e *Engine) loginOTP(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
	otp := strings.TrimSpace(in.Text)
	if !otpPattern.MatchString(otp) {
		return reply("❌ The code must contain digits only. Enter the code from the email:"), nil
	}

	email, err := field[string](sess, keyLoginEmail)
	if err != nil {
		return nil, err
	}
	sid, err := field[string](sess, keySID)
	if err != nil {
		return nil, err
	}

	auth, err := e.api.Authenticate(ctx, email, otp, sid)
	if err != nil {
		switch {
		case otpRetryable(err):
			return reply("❌ The code is invalid or has expired. Check the email and try again, or use /cancel and /login to request a new code."), nil
		case strings.Contains(strings.ToLower(err.Error()), "not found"):
			return e.stop(sess, "❌ No account was found for "+email+". Please sign up in the web app first."), nil
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if auth.User.OrganizationID == "" || auth.User.Email == "" {
		// часть версий API не возвращает профиль вместе с токеном
		me, err := e.api.Me(ctx, auth.AccessToken)
		if err != nil {
			e.logger.Warn("failed to load profile after login", zap.Int64("user", sess.UserID), zap.Error(err))
		} else {
			auth.User = *me
		}
	}
	if auth.User.Email == "" {
		auth.User.Email = email
	}

	sess.Login(auth)
	// балансы в кеше могли остаться от другого аккаунта
	e.invalidateBalances(sess.UserID)
	if e.notifier != nil && sess.OrganizationID != "" {
		e.notifier.Subscribe(sess.UserID, sess.Token, sess.OrganizationID)
	}
	return e.complete(sess, fmt.Sprintf("✅ Logged in as %s.\n\n%s", sess.Email, msgBackToMenu)), nil
}
