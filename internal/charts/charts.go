package charts

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"

	"github.com/ivanoskov/payout_bot/internal/model"
)

// ChartGenerator генерирует графики балансов
type ChartGenerator struct {
	width  int
	height int
}

// NewChartGenerator создает новый генератор графиков
func NewChartGenerator() *ChartGenerator {
	return &ChartGenerator{width: 1000, height: 500}
}

// Bar - один столбец графика: токен в сети
type Bar struct {
	Network string
	Label   string
	Value   float64
}

// networkColors - цвет столбца по сети, остальные сети синие
var networkColors = map[string]chart.Style{
	"1":     {FillColor: chart.ColorBlue, StrokeColor: chart.ColorBlue},
	"137":   {FillColor: chart.ColorAlternateBlue, StrokeColor: chart.ColorAlternateBlue},
	"8453":  {FillColor: chart.ColorCyan, StrokeColor: chart.ColorCyan},
	"42161": {FillColor: chart.ColorGreen, StrokeColor: chart.ColorGreen},
	"10":    {FillColor: chart.ColorRed, StrokeColor: chart.ColorRed},
}

// BalanceBars собирает ненулевые балансы токенов. Балансы приходят в отображаемых единицах.
func BalanceBars(balances []model.WalletBalance) []Bar {
	var bars []Bar
	for _, w := range balances {
		for _, t := range w.Tokens {
			v, err := decimal.NewFromString(t.Balance)
			if err != nil || !v.IsPositive() {
				continue
			}
			f, _ := v.Float64()
			bars = append(bars, Bar{
				Network: w.Network,
				Label:   fmt.Sprintf("%s (%s)", t.Symbol, model.NetworkName(w.Network)),
				Value:   f,
			})
		}
	}
	return bars
}

// GenerateBalanceChart создает столбчатый график балансов. Без ненулевых балансов возвращает nil.
func (g *ChartGenerator) GenerateBalanceChart(balances []model.WalletBalance) ([]byte, error) {
	bars := BalanceBars(balances)
	if len(bars) == 0 {
		return nil, nil
	}

	maxValue := 0.0
	values := make([]chart.Value, 0, len(bars))
	for _, b := range bars {
		style, ok := networkColors[b.Network]
		if !ok {
			style = chart.Style{FillColor: chart.ColorBlue, StrokeColor: chart.ColorBlue}
		}
		style.FontSize = 10
		style.FontColor = chart.ColorBlack
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %.2f", b.Label, b.Value),
			Value: b.Value,
			Style: style,
		})
		if b.Value > maxValue {
			maxValue = b.Value
		}
	}

	graph := chart.BarChart{
		Title: "Wallet balances",
		TitleStyle: chart.Style{
			FontSize:  14,
			FontColor: chart.ColorBlack,
		},
		Width:    g.width,
		Height:   g.height,
		BarWidth: 60,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
		YAxis: chart.YAxis{
			// ось от нуля: диапазон одного столбца иначе вырождается
			Range: &chart.ContinuousRange{Min: 0, Max: maxValue * 1.1},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.2f", f)
				}
				return ""
			},
			Style: chart.Style{
				FontSize:  10,
				FontColor: chart.ColorBlack,
			},
		},
		Bars: values,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render balance chart: %w", err)
	}
	return buffer.Bytes(), nil
}
