package gateway

import (
	"context"

	"github.com/pkexplorer/offworker/pkg/lifecycle"
	"github.com/pkexplorer/offworker/pkg/notify"
	"github.com/pkexplorer/offworker/pkg/replay"
	"github.com/pkexplorer/offworker/pkg/worker"
)

// WireEvents fills the registration's dispatch table with the domain
// handlers. Fetch is not wired here: the proxy route calls the
// dispatcher directly because it needs the response, not just the
// settled event.
func WireEvents(reg *worker.Registration, mgr *lifecycle.Manager, engine *replay.Engine, relay *notify.Relay) {
	reg.On(worker.EventInstall, func(ctx context.Context, _ worker.Event, _ *worker.Work) error {
		return mgr.Install(ctx)
	})

	reg.On(worker.EventActivate, func(ctx context.Context, _ worker.Event, _ *worker.Work) error {
		return mgr.Activate(ctx)
	})

	reg.On(worker.EventSync, func(_ context.Context, event worker.Event, work *worker.Work) error {
		tag := event.Tag
		work.Go(func() error {
			// Detached from the signal's request context: the drain
			// outlives the acknowledgment.
			engine.HandleSync(context.Background(), tag)
			return nil
		})
		return nil
	})

	reg.On(worker.EventPush, func(ctx context.Context, event worker.Event, _ *worker.Work) error {
		return relay.HandlePush(ctx, event.Payload)
	})

	reg.On(worker.EventNotificationClick, func(ctx context.Context, event worker.Event, _ *worker.Work) error {
		return relay.HandleClick(ctx, event.Action, event.TargetURL)
	})

	reg.On(worker.EventMessage, func(ctx context.Context, event worker.Event, _ *worker.Work) error {
		return mgr.HandleMessage(ctx, event.Message)
	})
}
