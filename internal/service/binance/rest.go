package binance

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
	drepo "FinWatch/internal/domain/repository"
)

// RESTClient implements MarketData over the USDⓈ-M futures REST API.
type RESTClient struct {
	client *futures.Client
}

// NewRESTClient creates a futures REST client. baseURL overrides the exchange endpoint when set.
func NewRESTClient(apiKey, secretKey, baseURL string) *RESTClient {
	c := futures.NewClient(apiKey, secretKey)
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	return &RESTClient{client: c}
}

// ExchangeSymbols lists every futures contract with its status.
func (c *RESTClient) ExchangeSymbols(ctx context.Context) ([]models.SymbolInfo, error) {
	info, err := c.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}
	out := make([]models.SymbolInfo, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		out = append(out, models.SymbolInfo{Symbol: s.Symbol, QuoteAsset: s.QuoteAsset, Status: s.Status})
	}
	return out, nil
}

// Klines fetches the newest limit candles of symbol, oldest first. The last
// one is usually still open.
func (c *RESTClient) Klines(ctx context.Context, symbol string, interval drepo.Interval, limit int) ([]models.Candle, error) {
	ks, err := c.client.NewKlinesService().
		Symbol(symbol).
		Interval(string(interval)).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}
	out := make([]models.Candle, 0, len(ks))
	for _, k := range ks {
		cd, err := parseCandle(k.Open, k.High, k.Low, k.Close, k.OpenTime, k.CloseTime)
		if err != nil {
			return nil, fmt.Errorf("klines %s: %w", symbol, err)
		}
		out = append(out, cd)
	}
	return out, nil
}

func parseCandle(open, high, low, close string, openMs, closeMs int64) (models.Candle, error) {
	var c models.Candle
	var err error
	if c.Open, err = decimal.NewFromString(open); err != nil {
		return c, fmt.Errorf("parse open %q: %w", open, err)
	}
	if c.High, err = decimal.NewFromString(high); err != nil {
		return c, fmt.Errorf("parse high %q: %w", high, err)
	}
	if c.Low, err = decimal.NewFromString(low); err != nil {
		return c, fmt.Errorf("parse low %q: %w", low, err)
	}
	if c.Close, err = decimal.NewFromString(close); err != nil {
		return c, fmt.Errorf("parse close %q: %w", close, err)
	}
	c.OpenTime = time.UnixMilli(openMs).UTC()
	c.CloseTime = time.UnixMilli(closeMs).UTC()
	return c, nil
}

var _ drepo.MarketData = (*RESTClient)(nil)
