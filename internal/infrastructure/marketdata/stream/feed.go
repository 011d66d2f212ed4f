// Package stream attaches to a streaming quote endpoint over websocket and
// turns its pushes into port.Quote values.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"folio/internal/application/port"
	"folio/internal/domain"
)

type QuoteFeed struct {
	wsURL string
}

func NewQuoteFeed(wsURL string) *QuoteFeed {
	return &QuoteFeed{wsURL: strings.TrimSpace(wsURL)}
}

func (f *QuoteFeed) Name() string { return "stream" }

type quoteMsg struct {
	Ticker   string `json:"ticker"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Ts       int64  `json:"ts"`
}

func (f *QuoteFeed) Subscribe(ctx context.Context, tickers []string) (<-chan port.Quote, error) {
	wsURL, err := buildURL(f.wsURL, tickers)
	if err != nil {
		return nil, err
	}

	out := make(chan port.Quote, 1024)
	go f.run(ctx, wsURL, out)
	return out, nil
}

func buildURL(base string, tickers []string) (string, error) {
	if base == "" {
		return "", errors.New("stream ws_url empty")
	}
	cleaned := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		cleaned = append(cleaned, t)
	}
	if len(cleaned) == 0 {
		return "", errors.New("tickers empty")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.RawQuery = "tickers=" + strings.Join(cleaned, ",")
	return u.String(), nil
}

func (f *QuoteFeed) run(ctx context.Context, wsURL string, out chan<- port.Quote) {
	defer close(out)

	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws dial failed")
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Str("feed", f.Name()).Msg("ws connected")

		err = readLoop(ctx, conn, func(b []byte) {
			var msg quoteMsg
			if e := json.Unmarshal(b, &msg); e != nil {
				log.Error().Str("feed", f.Name()).Err(e).Msg("json unmarshal failed")
				return
			}
			ticker := strings.ToUpper(strings.TrimSpace(msg.Ticker))
			price, e := decimal.NewFromString(strings.TrimSpace(msg.Price))
			if ticker == "" || e != nil || !price.IsPositive() {
				return
			}
			ts := msg.Ts
			if ts <= 0 {
				ts = time.Now().UnixMilli()
			}
			out <- port.Quote{
				Ticker:   ticker,
				Price:    price,
				Currency: domain.Currency(strings.ToUpper(strings.TrimSpace(msg.Currency))),
				Ts:       ts,
			}
		})

		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn().Str("feed", f.Name()).Err(err).Msg("ws disconnected, reconnecting")
		time.Sleep(backoff)
		backoff = minDur(backoff*2, maxBackoff)
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err == nil {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			}
			if err != nil {
				errCh <- err
				return
			}
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

var _ port.QuoteFeed = (*QuoteFeed)(nil)
