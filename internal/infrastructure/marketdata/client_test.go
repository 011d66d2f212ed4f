package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"folio/internal/domain"
)

const chartBody = `{
  "chart": {
    "result": [{
      "meta": {
        "symbol": "AAPL",
        "currency": "USD",
        "exchangeName": "NMS",
        "instrumentType": "EQUITY",
        "shortName": "Apple Inc."
      },
      "timestamp": [1704207600, 1704294000, 1704466800],
      "indicators": {
        "quote": [{
          "open":   [184.2, 184.0, null],
          "high":   [186.0, 185.5, 183.0],
          "low":    [183.9, 183.4, 181.5],
          "close":  [185.6, 184.25, 182.7],
          "volume": [58000000, 47000000, 51000000]
        }]
      }
    }],
    "error": null
  }
}`

func chartServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v8/finance/chart/") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDailyCandles(t *testing.T) {
	srv := chartServer(t, chartBody)
	client := NewClient(srv.URL)

	obs, err := client.DailyCandles(context.Background(), "AAPL",
		domain.NewDate(2024, 1, 1), domain.NewDate(2024, 1, 10))
	if err != nil {
		t.Fatalf("DailyCandles failed: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("got %d observations", len(obs))
	}
	first := obs[0]
	if first.Ticker != "AAPL" || first.Currency != "USD" {
		t.Errorf("first = %+v", first)
	}
	if !first.Close.Equal(decimal.RequireFromString("185.6")) {
		t.Errorf("close = %s", first.Close)
	}
	// null open still yields an observation, using the close that exists
	if !obs[2].Open.IsZero() || !obs[2].Close.Equal(decimal.RequireFromString("182.7")) {
		t.Errorf("third = %+v", obs[2])
	}
}

func TestDailyRatesUsesFxSymbol(t *testing.T) {
	var requested string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		fmt.Fprint(w, chartBody)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	rates, err := client.DailyRates(context.Background(),
		domain.Pair{From: "EUR", To: "USD"},
		domain.NewDate(2024, 1, 1), domain.NewDate(2024, 1, 10))
	if err != nil {
		t.Fatalf("DailyRates failed: %v", err)
	}
	if requested != "/v8/finance/chart/EURUSD=X" {
		t.Errorf("requested %s", requested)
	}
	if len(rates) != 3 {
		t.Fatalf("got %d rates", len(rates))
	}
	if rates[0].Pair != (domain.Pair{From: "EUR", To: "USD"}) {
		t.Errorf("pair = %s", rates[0].Pair)
	}
}

func TestInstrumentInfo(t *testing.T) {
	srv := chartServer(t, chartBody)
	client := NewClient(srv.URL)

	ins, err := client.InstrumentInfo(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("InstrumentInfo failed: %v", err)
	}
	want := domain.Instrument{Ticker: "AAPL", Currency: "USD", Name: "Apple Inc.", Exchange: "NMS", AssetType: "EQUITY"}
	if ins != want {
		t.Errorf("instrument = %+v", ins)
	}
}

func TestChartErrorSurfaces(t *testing.T) {
	srv := chartServer(t, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	client := NewClient(srv.URL)

	_, err := client.DailyCandles(context.Background(), "NOPE",
		domain.NewDate(2024, 1, 1), domain.NewDate(2024, 1, 10))
	if err == nil || !strings.Contains(err.Error(), "No data found") {
		t.Fatalf("err = %v", err)
	}
}
