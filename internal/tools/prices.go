package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/amanasmuei/lunomcp/internal/luno"
	"github.com/amanasmuei/lunomcp/internal/mcp"
)

const (
	defaultDuration = 86400
	defaultDays     = 7
	minDays         = 1
	maxDays         = 30
)

var durationNames = map[int64]string{
	60:     "1m",
	300:    "5m",
	900:    "15m",
	1800:   "30m",
	3600:   "1h",
	10800:  "3h",
	14400:  "4h",
	28800:  "8h",
	86400:  "24h",
	259200: "3d",
	604800: "7d",
}

// DurationName is the short label of a candle duration in seconds.
func DurationName(seconds int64) string {
	if name, ok := durationNames[seconds]; ok {
		return name
	}
	return fmt.Sprintf("%ds", seconds)
}

// HistoricalPrices is the result of get_historical_prices.
type HistoricalPrices struct {
	Pair         string        `json:"pair"`
	Since        int64         `json:"since"`
	Duration     int64         `json:"duration"`
	DurationName string        `json:"duration_name"`
	Candles      []luno.Candle `json:"candles"`
	CandleCount  int           `json:"candle_count"`
}

func (ts *toolset) historicalPrices(ctx context.Context, args mcp.Arguments) (any, error) {
	pair, err := pairArg(args)
	if err != nil {
		return nil, err
	}
	since, err := args.Int("since")
	if err != nil {
		return nil, err
	}
	duration, err := args.IntOr("duration", defaultDuration)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, mcp.InvalidParams("duration must be positive")
	}

	candles, err := ts.ex.Candles(ctx, pair, since, duration)
	if err != nil {
		return nil, err
	}
	out := HistoricalPrices{
		Pair:         pair,
		Since:        since,
		Duration:     duration,
		DurationName: DurationName(duration),
		Candles:      candles.Candles,
		CandleCount:  len(candles.Candles),
	}
	if out.Candles == nil {
		out.Candles = []luno.Candle{}
	}
	return out, nil
}

// PriceRange is the result of get_price_range.
type PriceRange struct {
	Pair               string `json:"pair"`
	Days               int64  `json:"days"`
	PeriodStart        int64  `json:"period_start"`
	PeriodEnd          int64  `json:"period_end"`
	OpenPrice          string `json:"open_price"`
	ClosePrice         string `json:"close_price"`
	HighestPrice       string `json:"highest_price"`
	LowestPrice        string `json:"lowest_price"`
	PriceChange        string `json:"price_change"`
	PriceChangePercent string `json:"price_change_percent"`
	AveragePrice       string `json:"average_price"`
	TotalVolume        string `json:"total_volume"`
	CandleCount        int    `json:"candle_count"`
}

func (ts *toolset) priceRange(ctx context.Context, args mcp.Arguments) (any, error) {
	pair, err := pairArg(args)
	if err != nil {
		return nil, err
	}
	days, err := args.IntOr("days", defaultDays)
	if err != nil {
		return nil, err
	}
	if days < minDays || days > maxDays {
		return nil, mcp.InvalidParams("days must be between %d and %d", minDays, maxDays)
	}

	since := ts.clock.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
	candles, err := ts.ex.Candles(ctx, pair, since, defaultDuration)
	if err != nil {
		return nil, err
	}
	if len(candles.Candles) == 0 {
		return nil, errors.Errorf("no historical data available for %s over the last %d days", pair, days)
	}

	out, err := summarize(candles.Candles)
	if err != nil {
		return nil, err
	}
	out.Pair = pair
	out.Days = days
	return out, nil
}

// summarize computes range statistics over a non-empty candle series.
func summarize(candles []luno.Candle) (*PriceRange, error) {
	var (
		high, low      = math.Inf(-1), math.Inf(1)
		sumClose, vol  float64
		open, closeVal float64
	)

	for i, c := range candles {
		o, cl, h, l, v, err := parseCandle(c)
		if err != nil {
			return nil, errors.Wrapf(err, "candle at %d", c.Timestamp)
		}
		if i == 0 {
			open = o
		}
		closeVal = cl
		high = math.Max(high, h)
		low = math.Min(low, l)
		sumClose += cl
		vol += v
	}

	change := closeVal - open
	var percent float64
	if open > 0 {
		percent = change / open * 100
	}

	return &PriceRange{
		PeriodStart:        candles[0].Timestamp,
		PeriodEnd:          candles[len(candles)-1].Timestamp,
		OpenPrice:          formatFloat(open),
		ClosePrice:         formatFloat(closeVal),
		HighestPrice:       formatFloat(high),
		LowestPrice:        formatFloat(low),
		PriceChange:        formatFloat(change),
		PriceChangePercent: fmt.Sprintf("%.2f%%", percent),
		AveragePrice:       formatFloat(sumClose / float64(len(candles))),
		TotalVolume:        formatFloat(vol),
		CandleCount:        len(candles),
	}, nil
}

func parseCandle(c luno.Candle) (open, cl, high, low, volume float64, err error) {
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", c.Open, &open},
		{"close", c.Close, &cl},
		{"high", c.High, &high},
		{"low", c.Low, &low},
		{"volume", c.Volume, &volume},
	}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(f.raw, 64); err != nil {
			return 0, 0, 0, 0, 0, errors.Errorf("invalid %s %q", f.name, f.raw)
		}
	}
	return open, cl, high, low, volume, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
