package email

import (
	"context"
	"fmt"

	"course-payments/internal/domain/ports/adapter"
	"course-payments/internal/infra/worker"
)

var _ adapter.Notifier = (*AsyncNotifier)(nil)

type submitter interface {
	Submit(ctx context.Context, task worker.Task) error
}

// AsyncNotifier hands deliveries to a worker pool so SMTP round trips stay off the
// request path. Send only reports whether the message was queued.
type AsyncNotifier struct {
	inner adapter.Notifier
	pool  submitter
}

func NewAsyncNotifier(inner adapter.Notifier, pool submitter) *AsyncNotifier {
	return &AsyncNotifier{inner: inner, pool: pool}
}

func (n *AsyncNotifier) Send(ctx context.Context, msg adapter.Notification) error {
	err := n.pool.Submit(ctx, func(wctx context.Context) error {
		return n.inner.Send(wctx, msg)
	})
	if err != nil {
		return fmt.Errorf("queue %s notification: %w", msg.Template, err)
	}
	return nil
}
