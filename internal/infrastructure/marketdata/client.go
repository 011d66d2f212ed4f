// Package marketdata fetches daily candles, fx rates and instrument
// metadata from a Yahoo-compatible chart API.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"folio/internal/application/port"
	"folio/internal/domain"
)

type Client struct {
	baseURL string
	client  *http.Client
}

type chartResp struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol         string `json:"symbol"`
		Currency       string `json:"currency"`
		ExchangeName   string `json:"exchangeName"`
		InstrumentType string `json:"instrumentType"`
		ShortName      string `json:"shortName"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// DailyCandles returns one observation per trading day in [from, to]. Days
// the venue was closed simply have no observation.
func (c *Client) DailyCandles(ctx context.Context, ticker string, from, to domain.Date) ([]domain.PriceObservation, error) {
	body, err := c.chart(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	if len(body.Indicators.Quote) == 0 {
		return nil, nil
	}

	currency := domain.Currency(body.Meta.Currency)
	q := body.Indicators.Quote[0]

	var out []domain.PriceObservation
	for i, ts := range body.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil {
			continue
		}
		obs := domain.PriceObservation{
			Ticker:   ticker,
			Date:     domain.DateOf(time.Unix(ts, 0)),
			Close:    decimal.NewFromFloat(*q.Close[i]),
			Currency: currency,
		}
		if i < len(q.Open) && q.Open[i] != nil {
			obs.Open = decimal.NewFromFloat(*q.Open[i])
		}
		if i < len(q.High) && q.High[i] != nil {
			obs.High = decimal.NewFromFloat(*q.High[i])
		}
		if i < len(q.Low) && q.Low[i] != nil {
			obs.Low = decimal.NewFromFloat(*q.Low[i])
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			obs.Volume = int64(*q.Volume[i])
		}
		out = append(out, obs)
	}
	return out, nil
}

// DailyRates fetches the pair as an fx symbol ("EURUSD=X") and reuses the
// candle close as the day's rate.
func (c *Client) DailyRates(ctx context.Context, pair domain.Pair, from, to domain.Date) ([]domain.FxRate, error) {
	symbol := fmt.Sprintf("%s%s=X", pair.From, pair.To)
	candles, err := c.DailyCandles(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	out := make([]domain.FxRate, 0, len(candles))
	for _, obs := range candles {
		if !obs.Close.IsPositive() {
			continue
		}
		out = append(out, domain.FxRate{Pair: pair, Date: obs.Date, Rate: obs.Close})
	}
	return out, nil
}

// InstrumentInfo reads the chart metadata for a ticker.
func (c *Client) InstrumentInfo(ctx context.Context, ticker string) (domain.Instrument, error) {
	to := domain.Today()
	body, err := c.chart(ctx, ticker, to.AddDays(-7), to)
	if err != nil {
		return domain.Instrument{}, err
	}
	if body.Meta.Currency == "" {
		return domain.Instrument{}, fmt.Errorf("no currency reported for %s", ticker)
	}
	return domain.Instrument{
		Ticker:    ticker,
		Currency:  domain.Currency(body.Meta.Currency),
		Name:      body.Meta.ShortName,
		Exchange:  body.Meta.ExchangeName,
		AssetType: body.Meta.InstrumentType,
	}, nil
}

func (c *Client) chart(ctx context.Context, symbol string, from, to domain.Date) (*chartResult, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d",
		c.baseURL, symbol, from.Time().Unix(), to.AddDays(1).Time().Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chart api error: %d %s", resp.StatusCode, string(body))
	}

	var result chartResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Chart.Error != nil {
		return nil, fmt.Errorf("chart api error: %s %s", result.Chart.Error.Code, result.Chart.Error.Description)
	}
	if len(result.Chart.Result) == 0 {
		return nil, fmt.Errorf("no chart data for %s", symbol)
	}
	return &result.Chart.Result[0], nil
}

var _ port.MarketDataProvider = (*Client)(nil)
