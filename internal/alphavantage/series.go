package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"github.com/papertrade/simulator/internal/model"
	"github.com/papertrade/simulator/internal/quote"
)

const (
	dayLayout      = "2006-01-02"
	intradayLayout = "2006-01-02 15:04:05"
)

// pathFunc is a compiled jsonpath expression.
type pathFunc func(ctx context.Context, v interface{}) (interface{}, error)

func mustPath(expr string) pathFunc {
	p, err := jsonpath.New(expr)
	if err != nil {
		panic(fmt.Sprintf("alphavantage: bad jsonpath %s: %v", expr, err))
	}
	return pathFunc(p)
}

// Paths into one point of a time series object.
var (
	openPath   = mustPath(`$["1. open"]`)
	highPath   = mustPath(`$["2. high"]`)
	lowPath    = mustPath(`$["3. low"]`)
	closePath  = mustPath(`$["4. close"]`)
	volumePath = mustPath(`$["5. volume"]`)
)

// Series fetches TIME_SERIES_DAILY for interval "daily" and
// TIME_SERIES_INTRADAY otherwise. Bars are returned newest first.
func (c *Client) Series(ctx context.Context, symbol, interval string) ([]model.Bar, error) {
	if !quote.ValidInterval(interval) {
		return nil, fmt.Errorf("alphavantage: unsupported interval %q", interval)
	}

	params := url.Values{"symbol": {symbol}}
	seriesKey := "Time Series (Daily)"
	layout := dayLayout
	if interval == "daily" {
		params.Set("function", "TIME_SERIES_DAILY")
	} else {
		params.Set("function", "TIME_SERIES_INTRADAY")
		params.Set("interval", interval)
		seriesKey = fmt.Sprintf("Time Series (%s)", interval)
		layout = intradayLayout
	}

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("alphavantage: %w: decode series: %w", quote.ErrTransport, err)
	}
	raw, err := jsonpath.Get(fmt.Sprintf(`$[%q]`, seriesKey), doc)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: no %s for %s: %w", seriesKey, symbol, quote.ErrNotFound)
	}
	points, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("alphavantage: %w: %s is not an object", quote.ErrTransport, seriesKey)
	}

	bars := make([]model.Bar, 0, len(points))
	for stamp, point := range points {
		ts, err := time.Parse(layout, stamp)
		if err != nil {
			continue
		}
		closing, ok := price(ctx, closePath, point)
		if !ok {
			continue
		}
		open, _ := price(ctx, openPath, point)
		high, _ := price(ctx, highPath, point)
		low, _ := price(ctx, lowPath, point)
		bars = append(bars, model.Bar{
			Time:   ts,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closing,
			Volume: volume(ctx, point),
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.After(bars[j].Time) })
	return bars, nil
}

// price reads the decimal string at path; ok is false when the field is
// missing or not a number.
func price(ctx context.Context, path pathFunc, point interface{}) (decimal.Decimal, bool) {
	raw, err := path(ctx, point)
	if err != nil {
		return decimal.Zero, false
	}
	s, _ := raw.(string)
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

func volume(ctx context.Context, point interface{}) int64 {
	raw, err := volumePath(ctx, point)
	if err != nil {
		return 0
	}
	s, _ := raw.(string)
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
