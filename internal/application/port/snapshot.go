package port

import (
	"context"

	"folio/internal/domain"
)

// SnapshotSink receives computed positions and history points for
// persistence. It is write-only on purpose: the engine always recomputes
// from the source-of-truth ledger and never reads its own output back.
type SnapshotSink interface {
	SavePositions(ctx context.Context, asOf domain.Date, positions []domain.Position) error
	SaveHistory(ctx context.Context, points []domain.HistoryPoint) error
}
