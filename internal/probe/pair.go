package probe

import (
	"context"
	"time"

	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/sourcegraph/conc/pool"
)

// RunPair runs a manager and a receiver against the same relay. The receiver
// starts after delay, so a positive delay exercises the late-join replay.
func RunPair(ctx context.Context, base Config, manager, receiver domain.ClientID, delay time.Duration, api *webrtc.API) ([]Result, error) {
	results := make([]Result, 2)
	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		cfg := base
		cfg.Role, cfg.Self, cfg.Peer = RoleManager, manager, receiver
		res, err := Run(ctx, cfg, api)
		results[0] = res
		return err
	})
	p.Go(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		cfg := base
		cfg.Role, cfg.Self, cfg.Peer = RoleReceiver, receiver, manager
		res, err := Run(ctx, cfg, api)
		results[1] = res
		return err
	})

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
