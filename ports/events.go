package ports

import (
	"context"

	"github.com/layer-3/promox/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogout(ctx context.Context, address string, sessionID string) error
	PublishSale(ctx context.Context, event core.SaleEvent) error
}
