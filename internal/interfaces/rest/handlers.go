package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
	"folio/internal/domain"
)

// PortfolioReader is the slice of the portfolio service the handlers need.
type PortfolioReader interface {
	Positions(ctx context.Context, asOf domain.Date) ([]domain.Position, error)
	History(ctx context.Context, from, to domain.Date) ([]domain.HistoryPoint, error)
	RebuildHistory(ctx context.Context) (int, error)
	Base() domain.Currency
}

// LedgerWriter is the slice of the ledger service the handlers need.
type LedgerWriter interface {
	Record(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
	List(ctx context.Context, f port.TxFilter) ([]domain.Transaction, error)
	ImportCSV(ctx context.Context, r io.Reader) (int, error)
}

// Refresher triggers a manual market-data sync.
type Refresher interface {
	Sync(ctx context.Context) (int, error)
}

type Handlers struct {
	portfolio   PortfolioReader
	ledger      LedgerWriter
	instruments port.InstrumentStore
	refresher   Refresher
	cache       port.Cache
	cacheTTL    time.Duration
}

func NewHandlers(
	portfolio PortfolioReader,
	ledger LedgerWriter,
	instruments port.InstrumentStore,
	refresher Refresher,
	cache port.Cache,
	cacheTTL time.Duration,
) *Handlers {
	return &Handlers{
		portfolio:   portfolio,
		ledger:      ledger,
		instruments: instruments,
		refresher:   refresher,
		cache:       cache,
		cacheTTL:    cacheTTL,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"base_currency": string(h.portfolio.Base()),
	})
}

func (h *Handlers) Positions(w http.ResponseWriter, r *http.Request) {
	asOf := domain.Today()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		var err error
		if asOf, err = domain.ParseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "bad as_of: "+err.Error())
			return
		}
	}

	key := "positions:" + asOf.String()
	if h.serveCached(w, r, key) {
		return
	}

	positions, err := h.portfolio.Positions(r.Context(), asOf)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	h.writeJSONCached(w, r, key, positions)
}

func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	to := domain.Today()
	from := to.AddDays(-30)
	q := r.URL.Query()
	var err error
	if raw := q.Get("from"); raw != "" {
		if from, err = domain.ParseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "bad from: "+err.Error())
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = domain.ParseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "bad to: "+err.Error())
			return
		}
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	key := "history:" + from.String() + ":" + to.String()
	if h.serveCached(w, r, key) {
		return
	}

	points, err := h.portfolio.History(r.Context(), from, to)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if points == nil {
		points = []domain.HistoryPoint{}
	}
	h.writeJSONCached(w, r, key, points)
}

func (h *Handlers) RebuildHistory(w http.ResponseWriter, r *http.Request) {
	n, err := h.portfolio.RebuildHistory(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.cache.Clear(r.Context(), "history")
	writeJSON(w, http.StatusOK, map[string]int{"points": n})
}

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := port.TxFilter{
		Ticker: strings.ToUpper(strings.TrimSpace(q.Get("ticker"))),
		Type:   domain.TxType(strings.ToUpper(strings.TrimSpace(q.Get("type")))),
	}
	var err error
	if raw := q.Get("from"); raw != "" {
		if f.From, err = domain.ParseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "bad from: "+err.Error())
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if f.To, err = domain.ParseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "bad to: "+err.Error())
			return
		}
	}

	txs, err := h.ledger.List(r.Context(), f)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *Handlers) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "bad transaction body: "+err.Error())
		return
	}

	tx, err := h.ledger.Record(r.Context(), tx)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *Handlers) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	body := io.Reader(r.Body)
	// multipart uploads carry the csv in a "file" field; raw bodies are
	// accepted as-is
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field: "+err.Error())
			return
		}
		defer file.Close()
		body = file
	}

	n, err := h.ledger.ImportCSV(r.Context(), body)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"imported": n})
}

func (h *Handlers) ListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.instruments.ListInstruments(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if instruments == nil {
		instruments = []domain.Instrument{}
	}
	writeJSON(w, http.StatusOK, instruments)
}

func (h *Handlers) UpsertInstrument(w http.ResponseWriter, r *http.Request) {
	var ins domain.Instrument
	if err := json.NewDecoder(r.Body).Decode(&ins); err != nil {
		writeError(w, http.StatusBadRequest, "bad instrument body: "+err.Error())
		return
	}
	ins.Ticker = strings.ToUpper(strings.TrimSpace(ins.Ticker))
	ins.Currency = domain.Currency(strings.ToUpper(strings.TrimSpace(string(ins.Currency))))
	if ins.Ticker == "" || ins.Currency == "" {
		writeError(w, http.StatusBadRequest, "ticker and currency are required")
		return
	}

	if err := h.instruments.UpsertInstrument(r.Context(), ins); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.cache.Clear(r.Context(), "")
	writeJSON(w, http.StatusCreated, ins)
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	n, err := h.refresher.Sync(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"written": n})
}

// serveCached writes the cached response for key if there is one.
func (h *Handlers) serveCached(w http.ResponseWriter, r *http.Request, key string) bool {
	b, ok := h.cache.Get(r.Context(), key)
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
	return true
}

func (h *Handlers) writeJSONCached(w http.ResponseWriter, r *http.Request, key string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.cache.Set(r.Context(), key, b, h.cacheTTL)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps engine and storage failures to HTTP statuses: data the
// engine cannot work with is 422, bad requests 400, unknown resources 404.
func statusFor(err error) int {
	var malformed *domain.MalformedTransactionError
	var noRate *domain.RateUnavailableError
	var noPrice *domain.PriceUnavailableError
	var oversell *domain.InsufficientPositionError
	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest
	case errors.As(err, &noRate), errors.As(err, &noPrice), errors.As(err, &oversell):
		return http.StatusUnprocessableEntity
	case errors.Is(err, port.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
