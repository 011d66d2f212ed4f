package domain

import "sort"

// MarketData is an immutable snapshot of everything the calculation core may
// look up: per-ticker price series, per-pair fx series and the instrument
// registry. It is assembled once at the boundary, after all storage reads,
// so the core itself never blocks. Lookups are last-observation-carried-
// forward: the newest observation on or before the requested day wins.
type MarketData struct {
	prices      map[string][]PriceObservation
	rates       map[Pair][]FxRate
	instruments map[string]Instrument
}

// NewMarketData builds a snapshot from unordered observations. Input slices
// are copied and sorted; the caller may discard or reuse them afterwards.
func NewMarketData(prices []PriceObservation, rates []FxRate, instruments []Instrument) *MarketData {
	m := &MarketData{
		prices:      make(map[string][]PriceObservation),
		rates:       make(map[Pair][]FxRate),
		instruments: make(map[string]Instrument, len(instruments)),
	}
	for _, p := range prices {
		m.prices[p.Ticker] = append(m.prices[p.Ticker], p)
	}
	for _, series := range m.prices {
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	}
	for _, r := range rates {
		m.rates[r.Pair] = append(m.rates[r.Pair], r)
	}
	for _, series := range m.rates {
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	}
	for _, ins := range instruments {
		m.instruments[ins.Ticker] = ins
	}
	return m
}

// PriceOnOrBefore returns the newest observation for ticker dated on or
// before the given day.
func (m *MarketData) PriceOnOrBefore(ticker string, on Date) (PriceObservation, bool) {
	series := m.prices[ticker]
	i := latestAt(len(series), on, func(k int) Date { return series[k].Date })
	if i < 0 {
		return PriceObservation{}, false
	}
	return series[i], true
}

// RateOnOrBefore returns the newest rate for the exact directed pair dated
// on or before the given day. Direction fallback is the normalizer's job,
// not the snapshot's.
func (m *MarketData) RateOnOrBefore(pair Pair, on Date) (FxRate, bool) {
	series := m.rates[pair]
	i := latestAt(len(series), on, func(k int) Date { return series[k].Date })
	if i < 0 {
		return FxRate{}, false
	}
	return series[i], true
}

// Instrument returns the registry entry for a ticker.
func (m *MarketData) Instrument(ticker string) (Instrument, bool) {
	ins, ok := m.instruments[ticker]
	return ins, ok
}

// latestAt finds the index of the last element whose date is <= on in a
// date-ascending series, or -1.
func latestAt(n int, on Date, dateAt func(int) Date) int {
	// first index with date > on
	i := sort.Search(n, func(k int) bool { return dateAt(k).After(on) })
	return i - 1
}
