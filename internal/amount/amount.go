// Package amount переводит суммы между отображаемыми единицами и базовыми единицами API (10^8).
package amount

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals - масштаб базовых единиц удаленного API
const Decimals = 8

var (
	// значения выше порога считаются уже переведенными в базовые единицы
	preScaledThreshold = decimal.NewFromInt(1_000_000)
	// суммы выше порога требуют повторного подтверждения
	largeThreshold = decimal.NewFromInt(100)

	displayPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

var (
	ErrNotNumeric      = errors.New("amount is not a number")
	ErrNotPositive     = errors.New("amount must be greater than zero")
	ErrTooManyDecimals = errors.New("amount has more than 8 decimal places")
)

// Unit - единицы, в которых хранится сумма
type Unit string

const (
	UnitDisplay Unit = "display"
	UnitBase    Unit = "base"
)

// Amount - сумма с явными единицами. В базовые единицы переводится ровно один раз, в BaseUnits.
type Amount struct {
	Value decimal.Decimal `json:"value"`
	Unit  Unit            `json:"unit"`
}

// ParseDisplay разбирает введенную пользователем сумму
func ParseDisplay(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if !displayPattern.MatchString(s) {
		return Amount{}, ErrNotNumeric
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, ErrNotNumeric
	}
	if !v.IsPositive() {
		return Amount{}, ErrNotPositive
	}
	if -v.Exponent() > Decimals {
		return Amount{}, ErrTooManyDecimals
	}
	return Amount{Value: v, Unit: UnitDisplay}, nil
}

// BaseUnits возвращает целую строку в базовых единицах без экспоненты
func (a Amount) BaseUnits() string {
	if a.Unit == UnitBase {
		return a.Value.Truncate(0).String()
	}
	return a.Value.Shift(Decimals).Truncate(0).String()
}

// Display возвращает сумму в отображаемых единицах
func (a Amount) Display() decimal.Decimal {
	if a.Unit == UnitBase {
		return a.Value.Shift(-Decimals)
	}
	return a.Value
}

func (a Amount) String() string {
	return a.Display().String()
}

// IsLarge - сумма больше 100 отображаемых единиц
func (a Amount) IsLarge() bool {
	return a.Display().GreaterThan(largeThreshold)
}

// ToBaseUnits переводит сумму неизвестных единиц в базовые.
// Значения больше 1 000 000 считаются уже переведенными и возвращаются как есть;
// это эвристика, для сумм из диалога используйте Amount с явными единицами.
// Неразбираемый ввод возвращается без изменений.
func ToBaseUnits(input string) string {
	s := strings.TrimSpace(input)
	v, err := decimal.NewFromString(s)
	if err != nil {
		return input
	}
	if v.GreaterThan(preScaledThreshold) {
		return s
	}
	return Amount{Value: v, Unit: UnitDisplay}.BaseUnits()
}

// FromBaseUnits переводит строку базовых единиц из ответа API в отображаемые
func FromBaseUnits(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, err
	}
	return v.Shift(-Decimals), nil
}

// Format форматирует десятичную строку с двумя знаками, "0.00" при ошибке разбора
func Format(s string) string {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return "0.00"
	}
	return v.StringFixed(2)
}
