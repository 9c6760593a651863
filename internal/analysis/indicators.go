package analysis

import (
	"math"
	"paper_trading/internal/models"
)

// Trend labels.
const (
	TrendBullish = "BULLISH"
	TrendBearish = "BEARISH"
	TrendNeutral = "NEUTRAL"
)

// Structure labels.
const (
	StructureBullish  = "BULLISH"
	StructureBearish  = "BEARISH"
	StructureSideways = "SIDEWAYS"
)

// Summary condenses a candle window for the chart view.
type Summary struct {
	Symbol        string  `json:"symbol"`
	Interval      string  `json:"interval"`
	Candles       int     `json:"candles"`
	From          int64   `json:"from"`
	To            int64   `json:"to"`
	Open          float64 `json:"open"`
	Close         float64 `json:"close"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        float64 `json:"volume"`
	EMA20         float64 `json:"ema20"`
	RSI           float64 `json:"rsi"`
	ATR           float64 `json:"atr"`
	Support       float64 `json:"support"`
	Resistance    float64 `json:"resistance"`
	Trend         string  `json:"trend"`
	Structure     string  `json:"structure"`
}

// Summarize computes the summary of candles, which must be in time order.
// It returns nil for an empty window.
func Summarize(candles []models.Candle) *Summary {
	if len(candles) == 0 {
		return nil
	}

	first, last := candles[0], candles[len(candles)-1]
	s := &Summary{
		Symbol:   last.Symbol,
		Interval: last.Interval,
		Candles:  len(candles),
		From:     first.OpenTime,
		To:       last.CloseTime,
		Open:     first.Open,
		Close:    last.Close,
		High:     maxBy(candles, func(c models.Candle) float64 { return c.High }),
		Low:      minBy(candles, func(c models.Candle) float64 { return c.Low }),
	}
	for _, c := range candles {
		s.Volume += c.Volume
	}

	s.Change = s.Close - s.Open
	if s.Open > 0 {
		s.ChangePercent = s.Change / s.Open * 100
	}

	s.EMA20 = calculateEMA(closes(candles), 20)
	s.RSI = calculateRSI(candles, 14)
	s.ATR = calculateATR(candles, 14)
	s.Support, s.Resistance = findSupportResistance(candles)
	s.Trend = CalculateTrend(candles)
	s.Structure = detectStructure(candles)
	return s
}

func closes(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
	}
	return prices
}

// detectStructure compares the swing range of both halves of the window:
// higher highs and higher lows are BULLISH, lower highs and lower lows BEARISH.
func detectStructure(candles []models.Candle) string {
	if len(candles) < 4 {
		return StructureSideways
	}
	mid := len(candles) / 2
	high := func(c models.Candle) float64 { return c.High }
	low := func(c models.Candle) float64 { return c.Low }

	firstHalfHigh := maxBy(candles[:mid], high)
	secondHalfHigh := maxBy(candles[mid:], high)
	firstHalfLow := minBy(candles[:mid], low)
	secondHalfLow := minBy(candles[mid:], low)

	if secondHalfHigh > firstHalfHigh && secondHalfLow > firstHalfLow {
		return StructureBullish
	} else if secondHalfHigh < firstHalfHigh && secondHalfLow < firstHalfLow {
		return StructureBearish
	}
	return StructureSideways
}

// Helper generic max/min functions
func maxBy[T any](slice []T, valueFunc func(T) float64) float64 {
	if len(slice) == 0 {
		return 0
	}
	m := -math.MaxFloat64
	for _, item := range slice {
		if v := valueFunc(item); v > m {
			m = v
		}
	}
	return m
}

func minBy[T any](slice []T, valueFunc func(T) float64) float64 {
	if len(slice) == 0 {
		return 0
	}
	m := math.MaxFloat64
	for _, item := range slice {
		if v := valueFunc(item); v < m {
			m = v
		}
	}
	return m
}

func calculateRSI(candles []models.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50
	}

	gains := 0.0
	losses := 0.0

	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func calculateEMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < period {
		// Not enough data for full EMA, return SMA as starting point
		sum := 0.0
		for _, p := range prices {
			sum += p
		}
		return sum / float64(len(prices))
	}

	multiplier := 2.0 / float64(period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)

	for i := period; i < len(prices); i++ {
		ema = (prices[i] * multiplier) + (ema * (1 - multiplier))
	}

	return ema
}

// CalculateTrend determines the trend with an EMA20/EMA50 crossover. Short
// windows (the default 24 hourly candles) compare the last close to EMA20.
func CalculateTrend(candles []models.Candle) string {
	if len(candles) < 2 {
		return TrendNeutral
	}

	prices := closes(candles)
	ema20 := calculateEMA(prices, 20)
	lead, base := prices[len(prices)-1], ema20
	if len(candles) >= 50 {
		lead, base = ema20, calculateEMA(prices, 50)
	}

	// Bullish: lead > base * 1.002
	// Bearish: lead < base * 0.998
	if lead > base*1.002 {
		return TrendBullish
	} else if lead < base*0.998 {
		return TrendBearish
	}
	return TrendNeutral
}

func calculateATR(candles []models.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		tr := math.Max(candles[i].High-candles[i].Low,
			math.Max(math.Abs(candles[i].High-candles[i-1].Close),
				math.Abs(candles[i].Low-candles[i-1].Close)))
		sum += tr
	}

	return sum / float64(period)
}

func findSupportResistance(candles []models.Candle) (float64, float64) {
	window := candles
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	if len(window) < 5 {
		current := window[len(window)-1].Close
		return current * 0.98, current * 1.02
	}

	support := minBy(window, func(c models.Candle) float64 { return c.Low })
	resistance := maxBy(window, func(c models.Candle) float64 { return c.High })
	return support, resistance
}
