package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ivanoskov/payout_bot/internal/api"
	"github.com/ivanoskov/payout_bot/internal/model"
)

// ErrorKind - категория ошибки удаленного вызова для сообщения пользователю
type ErrorKind int

const (
	KindCollaborator ErrorKind = iota
	KindAuthExpired
	KindInsufficientFunds
	KindBelowMinimum
	KindOverLimit
	KindKYCRequired
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth_expired"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindBelowMinimum:
		return "below_minimum"
	case KindOverLimit:
		return "over_limit"
	case KindKYCRequired:
		return "kyc_required"
	default:
		return "collaborator"
	}
}

// BusinessRule - отказ по правилам платформы, а не сбой
func (k ErrorKind) BusinessRule() bool {
	switch k {
	case KindInsufficientFunds, KindBelowMinimum, KindOverLimit, KindKYCRequired:
		return true
	}
	return false
}

// errorPatterns - таблица подстрок текста ошибки API и их категорий.
// Проверяется по порядку, первая подходящая строка побеждает.
var errorPatterns = []struct {
	substr string
	kind   ErrorKind
}{
	{"unauthorized", KindAuthExpired},
	{"jwt expired", KindAuthExpired},
	{"token expired", KindAuthExpired},
	{"insufficient", KindInsufficientFunds},
	{"not enough balance", KindInsufficientFunds},
	{"minimum", KindBelowMinimum},
	{"too small", KindBelowMinimum},
	{"below the min", KindBelowMinimum},
	{"rate limit", KindCollaborator},
	{"too many requests", KindCollaborator},
	{"maximum", KindOverLimit},
	{"limit", KindOverLimit},
	{"exceed", KindOverLimit},
	{"kyc", KindKYCRequired},
	{"verification required", KindKYCRequired},
}

// Classify относит ошибку к одной из категорий. Сначала по статусу,
// затем по таблице шаблонов в тексте.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindCollaborator
	}
	if errors.Is(err, api.ErrUnauthorized) {
		return KindAuthExpired
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindCollaborator
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
		return KindCollaborator
	}

	msg := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(msg, p.substr) {
			return p.kind
		}
	}
	return KindCollaborator
}

// remoteMessage - текст ошибки удаленного API, если он есть
func remoteMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// failureMessage - сообщение пользователю о прерванном флоу: причина, факт
// незавершенной операции и путь назад
func failureMessage(flow model.FlowName, kind ErrorKind, err error) string {
	var reason string
	switch kind {
	case KindAuthExpired:
		return "🔒 Your session has expired. " + operationName(flow) + " was not completed.\n\nPlease /login again."
	case KindInsufficientFunds:
		reason = "insufficient balance"
	case KindBelowMinimum:
		reason = "the amount is below the minimum allowed"
	case KindOverLimit:
		reason = "the amount exceeds your limit"
	case KindKYCRequired:
		reason = "identity verification (KYC) is required"
	default:
		return "❌ " + operationName(flow) + " failed. The operation was not completed, please try again later.\n\n" + msgBackToMenu
	}

	text := fmt.Sprintf("❌ %s was not completed: %s.", operationName(flow), reason)
	if remote := remoteMessage(err); remote != "" {
		text += "\n" + remote
	}
	return text + "\n\n" + msgBackToMenu
}

func operationName(flow model.FlowName) string {
	switch flow {
	case model.FlowSend:
		return "Transfer"
	case model.FlowWithdraw:
		return "Withdrawal"
	case model.FlowBatch:
		return "Batch payment"
	case model.FlowLogin:
		return "Login"
	default:
		return "Operation"
	}
}
