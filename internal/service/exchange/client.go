package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"RevSight/internal/domain/models"
	drepo "RevSight/internal/domain/repository"
	"RevSight/internal/service/ratelimit"
	xhttp "RevSight/pkg/http"
	"RevSight/pkg/logger"
)

const (
	klinesPath   = "/api/v3/klines"
	pageLimit    = 1000
	rateKey      = "exchange:klines"
	rateCapacity = 10
	rateRefill   = 5 // requests per second
)

// Client implements a CandleSource over a Binance-compatible klines REST
// API. It backfills training history when the local candle tables do not
// reach far enough back.
type Client struct {
	baseURL string
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	log     *logger.Logger
}

func New(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
		limiter: limiter,
		log:     log,
	}
}

var _ drepo.CandleSource = (*Client)(nil)

func intervalFor(tf drepo.Timeframe) string {
	return string(tf)
}

// GetCandles pages through the klines endpoint until the window is covered.
func (c *Client) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf drepo.Timeframe) ([]models.Candle, error) {
	var out []models.Candle
	cursor := from
	step := tf.Duration()

	for cursor.Before(to) {
		if err := c.waitForToken(ctx); err != nil {
			return nil, err
		}

		var raw [][]json.RawMessage
		err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    c.baseURL + klinesPath,
			QueryParams: map[string][]string{
				"symbol":    {symbol},
				"interval":  {intervalFor(tf)},
				"startTime": {strconv.FormatInt(cursor.UnixMilli(), 10)},
				"endTime":   {strconv.FormatInt(to.UnixMilli(), 10)},
				"limit":     {strconv.Itoa(pageLimit)},
			},
		}, &raw)
		if err != nil {
			return nil, fmt.Errorf("klines %s: %w", symbol, err)
		}
		if len(raw) == 0 {
			break
		}

		var last time.Time
		for _, k := range raw {
			candle, err := parseKline(k, symbol)
			if err != nil {
				return nil, fmt.Errorf("klines %s: %w", symbol, err)
			}
			last = candle.Bucket
			if candle.Bucket.After(to) {
				continue
			}
			out = append(out, candle)
		}

		next := last.Add(step)
		if !next.After(cursor) {
			break // server stopped advancing; avoid spinning
		}
		cursor = next
		if len(raw) < pageLimit {
			break
		}
	}

	c.log.Debug("klines fetched",
		logger.String("symbol", symbol),
		logger.String("tf", string(tf)),
		logger.Int("candles", len(out)),
	)
	return out, nil
}

// waitForToken blocks until the limiter admits another request.
func (c *Client) waitForToken(ctx context.Context) error {
	for !c.limiter.Allow(rateKey, rateCapacity, rateRefill) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

// parseKline decodes one kline row: [openTimeMs, open, high, low, close,
// volume, ...] where prices and volume are strings.
func parseKline(k []json.RawMessage, symbol string) (models.Candle, error) {
	if len(k) < 6 {
		return models.Candle{}, fmt.Errorf("kline row too short: %d fields", len(k))
	}
	var openMs int64
	if err := json.Unmarshal(k[0], &openMs); err != nil {
		return models.Candle{}, fmt.Errorf("open time: %w", err)
	}
	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(k[i], &s); err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i-1] = v
	}
	return models.Candle{
		Bucket: time.UnixMilli(openMs).UTC(),
		Symbol: symbol,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
