// Package noop provides stand-ins for optional backends that were not
// configured.
package noop

import (
	"context"
	"time"

	"folio/internal/domain"
)

type Sink struct{}

func (Sink) SavePositions(ctx context.Context, asOf domain.Date, positions []domain.Position) error {
	return nil
}

func (Sink) SaveHistory(ctx context.Context, points []domain.HistoryPoint) error {
	return nil
}

type Cache struct{}

func (Cache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }

func (Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {}

func (Cache) Clear(ctx context.Context, prefix string) int { return 0 }
