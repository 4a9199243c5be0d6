package orch

import (
	"errors"

	"github.com/dkeye/rendezvous/internal/app"
	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/rs/zerolog/log"
)

// outcome collects channels to close once the session lock is released.
type outcome struct {
	slow []core.Channel
}

// send never blocks. A full queue is resolved by the policy.
func (r *Router) send(target core.Channel, frame core.Frame, out *outcome) error {
	err := target.TrySend(frame)
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrBackpressure) {
		r.Metrics.Inc(metrics.EventDroppedNoTarget)
		return err
	}

	action := app.DropMessage
	if r.Policy != nil {
		action = r.Policy.OnBackPressure(target)
	}
	switch action {
	case app.CloseTarget:
		out.slow = append(out.slow, target)
	case app.DropMessage:
		r.Metrics.Inc(metrics.EventDroppedBackpressure)
	}
	return err
}

func (o outcome) apply(r *Router) {
	for _, ch := range o.slow {
		if ch.IsClosed() {
			continue
		}
		r.Metrics.Inc(metrics.EventClosedBackpressure)
		log.Warn().Str("module", "orch").Str("conn", ch.ID()).Msg("closing slow channel")
		ch.Close(core.CloseBackpressure)
	}
}
