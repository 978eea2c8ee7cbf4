package port

import (
	"context"

	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
)

// Notifier delivers one rendered outbox notification to its recipients
type Notifier interface {
	Send(ctx context.Context, notification *entity.Notification) error
}

// OutboundMessage is a notification request raised by a transition
type OutboundMessage struct {
	Template    string
	Audience    string
	SubjectKey  string
	VendorEmail string
	Variables   map[string]string
}

// Outbox queues notifications inside a transaction and delivers them after commit
type Outbox interface {
	// Enqueue writes an outbox row using the transaction carried by ctx
	Enqueue(ctx context.Context, msg OutboundMessage) (int64, error)

	// Deliver attempts the given rows now; failed rows stay queued for the retry worker
	Deliver(ctx context.Context, ids ...int64) error
}
