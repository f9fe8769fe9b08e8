package source

import (
	"context"

	"MarketBackfill/internal/model"
)

// Source is implemented by the local dataset reader and every remote vendor.
type Source interface {
	LoadBars(ctx context.Context, req model.DataRequest) ([]model.Bar, error)
	Name() string
}
