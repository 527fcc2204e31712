// Package fetcher pulls the market-wide ratios used by the regime engine from
// public data sources.
package fetcher

import (
	"context"
	"errors"

	"signal-bridge/internal/regime"
)

// ErrSourceUnavailable is returned while a source's breaker is open.
var ErrSourceUnavailable = errors.New("market source temporarily unavailable")

// ReadingFetcher produces a regime reading. Sources that fail leave their
// ratio absent; the returned error then describes every failure while the
// partial reading is still usable.
type ReadingFetcher interface {
	FetchReading(ctx context.Context) (regime.Reading, error)
}
