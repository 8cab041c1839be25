package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrDataSourceUnavailable wraps every failure to obtain a chain from the provider.
var ErrDataSourceUnavailable = errors.New("data source unavailable")

// ChainFetcher retrieves the raw option chain of one symbol.
type ChainFetcher interface {
	FetchChain(ctx context.Context, symbol string) (json.RawMessage, error)
}

// ExpiryLister enumerates the expiries the provider lists for a symbol.
type ExpiryLister interface {
	ListExpiries(ctx context.Context, symbol string) ([]time.Time, error)
}
