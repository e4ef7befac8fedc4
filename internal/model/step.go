package model

// FlowName определяет тип многошагового диалога
type FlowName string

const (
	FlowSend     FlowName = "send"
	FlowWithdraw FlowName = "withdraw"
	FlowBatch    FlowName = "batch"
	FlowLogin    FlowName = "login"
)

// StepID - позиция внутри конкретного флоу
type StepID string

const (
	StepEmailRecipient  StepID = "email_recipient"
	StepWalletRecipient StepID = "wallet_recipient"
	StepNetwork         StepID = "network"
	StepAddressWarning  StepID = "address_warning"
	StepToken           StepID = "token"
	StepAmount          StepID = "amount"
	StepLargeAmount     StepID = "large_amount"
	StepNote            StepID = "note"
	StepBankAccount     StepID = "bank_account"
	StepConfirm         StepID = "confirm"

	StepEntries   StepID = "entries"
	StepDuplicate StepID = "duplicate"

	StepLoginEmail StepID = "email"
	StepLoginOTP   StepID = "otp"
)

// Step - пара (флоу, шаг). Нулевое значение означает отсутствие активного флоу.
type Step struct {
	Flow FlowName `json:"flow,omitempty"`
	ID   StepID   `json:"id,omitempty"`
}

func At(flow FlowName, id StepID) Step {
	return Step{Flow: flow, ID: id}
}

func (s Step) IsZero() bool {
	return s.Flow == "" && s.ID == ""
}

// String возвращает тег вида send_email_recipient
func (s Step) String() string {
	if s.IsZero() {
		return ""
	}
	return string(s.Flow) + "_" + string(s.ID)
}
