package connectors

import (
	"context"

	"github.com/dwizi/region-relay/internal/gateway"
)

// Connector is a chat transport that feeds inbound messages to the gateway
// and delivers its replies.
type Connector interface {
	gateway.Sender
	Name() string
	Enabled() bool
	Start(ctx context.Context) error
}
