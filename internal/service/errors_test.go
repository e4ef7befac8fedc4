package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ivanoskov/payout_bot/internal/api"
	"github.com/ivanoskov/payout_bot/internal/model"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindCollaborator},
		{&api.Error{Status: 401, Message: "whatever"}, KindAuthExpired},
		{fmt.Errorf("send: %w", &api.Error{Status: 401}), KindAuthExpired},
		{errors.New("JWT expired"), KindAuthExpired},
		{errors.New("Insufficient balance"), KindInsufficientFunds},
		{errors.New("not enough balance on wallet"), KindInsufficientFunds},
		{errors.New("Amount is below the minimum"), KindBelowMinimum},
		{errors.New("amount too small"), KindBelowMinimum},
		{errors.New("daily limit reached"), KindOverLimit},
		{errors.New("amount exceeds maximum"), KindOverLimit},
		{&api.Error{Status: 403, Message: "KYC not completed"}, KindKYCRequired},
		{errors.New("verification required"), KindKYCRequired},
		{context.DeadlineExceeded, KindCollaborator},
		{errors.New("connection reset by peer"), KindCollaborator},
		// ограничение частоты запросов - сбой транспорта, а не лимит суммы
		{&api.Error{Status: 429, Message: "Limit exceeded, slow down"}, KindCollaborator},
		{errors.New("rate limit exceeded"), KindCollaborator},
		{fmt.Errorf("send: %w", errors.New("Too Many Requests: limit exceeded")), KindCollaborator},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.err), fmt.Sprint(c.err))
	}
}

func TestErrorKindBusinessRule(t *testing.T) {
	assert.False(t, KindCollaborator.BusinessRule())
	assert.False(t, KindAuthExpired.BusinessRule())
	assert.True(t, KindInsufficientFunds.BusinessRule())
	assert.True(t, KindKYCRequired.BusinessRule())
	assert.Equal(t, "over_limit", KindOverLimit.String())
}

func TestFailureMessage(t *testing.T) {
	err := &api.Error{Status: 400, Message: "Minimum withdrawal is 10 USDC"}
	msg := failureMessage(model.FlowWithdraw, Classify(err), err)
	assert.Contains(t, msg, "Withdrawal was not completed: the amount is below the minimum allowed.")
	assert.Contains(t, msg, "Minimum withdrawal is 10 USDC")
	assert.Contains(t, msg, msgBackToMenu)

	msg = failureMessage(model.FlowBatch, KindCollaborator, errors.New("boom"))
	assert.Contains(t, msg, "Batch payment failed")
	assert.NotContains(t, msg, "boom")

	msg = failureMessage(model.FlowSend, KindAuthExpired, nil)
	assert.Contains(t, msg, "/login")
}
