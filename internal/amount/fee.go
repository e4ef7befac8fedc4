package amount

import "github.com/shopspring/decimal"

var (
	fixedFee       = decimal.NewFromInt(2)
	processingRate = decimal.NewFromFloat(1.5)
	hundred        = decimal.NewFromInt(100)
)

// FeeEstimate - локальная оценка комиссии вывода в банк: $2 + 1.5% от суммы
type FeeEstimate struct {
	Amount        decimal.Decimal `json:"amount"`
	FixedFee      decimal.Decimal `json:"fixed_fee"`
	Percentage    decimal.Decimal `json:"percentage"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	TotalFee      decimal.Decimal `json:"total_fee"`
	Receive       decimal.Decimal `json:"receive"`
}

// EstimateFee считает комиссию для суммы в отображаемых единицах
func EstimateFee(value decimal.Decimal) FeeEstimate {
	processing := value.Mul(processingRate).Div(hundred).Round(2)
	total := fixedFee.Add(processing)

	receive := value.Sub(total)
	if receive.IsNegative() {
		receive = decimal.Zero
	}

	return FeeEstimate{
		Amount:        value,
		FixedFee:      fixedFee,
		Percentage:    processingRate,
		ProcessingFee: processing,
		TotalFee:      total,
		Receive:       receive,
	}
}
