// Package archive mirrors successful engine results into durable storage.
// The engine stays authoritative; the mirror is rebuilt by replaying
// responses and every write is an idempotent upsert.
package archive

import (
	"context"

	"github.com/Mishragini/OpiniXchange/internal/model"
)

// Sink persists mirrored state.
type Sink interface {
	SaveAccount(ctx context.Context, a *model.Account) error
	SaveBalance(ctx context.Context, a *model.Account) error
	SaveCategory(ctx context.Context, c *model.Category) error
	SaveMarket(ctx context.Context, m *model.Market) error
	SaveOrder(ctx context.Context, o *model.Order) error
	CancelOrder(ctx context.Context, orderID string) error
}
