package quotes

import (
	"context"

	"cryptofolio/pkg/models"
)

// Source provides current market quotes for assets identified by their
// CoinGecko asset id. Implementations return a quote for every requested
// id; an id the source cannot quote is an error, never a silent omission.
type Source interface {
	GetQuotes(ctx context.Context, assetIDs []string) (map[string]models.Quote, error)
}
