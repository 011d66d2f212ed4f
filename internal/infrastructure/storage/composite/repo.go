package composite

import (
	"context"

	"folio/internal/application/port"
	"folio/internal/domain"
)

// Sink fans snapshot writes out to several sinks. The first failure is
// reported, the remaining sinks still get the write.
type Sink struct {
	sinks []port.SnapshotSink
}

func New(sinks ...port.SnapshotSink) *Sink {
	// nil sinks are allowed; filter in constructor for safety
	out := make([]port.SnapshotSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Sink{sinks: out}
}

func (s *Sink) SavePositions(ctx context.Context, asOf domain.Date, positions []domain.Position) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.SavePositions(ctx, asOf, positions); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Sink) SaveHistory(ctx context.Context, points []domain.HistoryPoint) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.SaveHistory(ctx, points); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
