// Package orch routes decoded signaling messages between bound channels.
package orch

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/rendezvous/internal/app"
	"github.com/dkeye/rendezvous/internal/auth"
	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/rs/zerolog/log"
)

type Router struct {
	Store   *app.Store
	Auth    auth.Validator
	Policy  app.Policy
	Metrics *metrics.Metrics
	Now     core.Clock
}

func (r *Router) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// HandleFrame processes one inbound frame from ch. Frames of one channel
// must be handed in arrival order. A returned error means the frame was
// dropped; after an auth failure ch has already been closed.
func (r *Router) HandleFrame(ch core.Channel, frame core.Frame) error {
	msg, err := domain.Decode(frame)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownMessageType) {
			r.Metrics.Inc(metrics.EventUnknownType)
		} else {
			r.Metrics.Inc(metrics.EventMalformed)
		}
		log.Warn().Str("module", "orch").Str("conn", ch.ID()).Err(err).Msg("dropped frame")
		return err
	}

	now := r.now()
	if err := r.Auth.Validate(msg.Credential, now); err != nil {
		r.Metrics.Inc(metrics.EventAuthFailed)
		log.Warn().Str("module", "orch").Str("conn", ch.ID()).
			Str("session", string(msg.Session)).Str("from", string(msg.From)).Err(err).Msg("authentication failed")
		ch.Close(core.CloseAuthFailed)
		return fmt.Errorf("authenticate %s: %w", msg.From, err)
	}

	var out outcome
	prev := r.Store.BindDo(msg.Session, msg.From, ch, now, func(s *app.Session) {
		out = r.dispatch(s, ch, msg, now)
	})
	if prev != nil {
		log.Info().Str("module", "orch").Str("session", string(msg.Session)).Str("from", string(msg.From)).
			Str("conn", ch.ID()).Str("replaced", prev.ID()).Msg("identity rebound to new connection")
	}
	out.apply(r)
	return nil
}

// Disconnect drops the binding of a closed channel. Cached state stays.
func (r *Router) Disconnect(ch core.Channel) {
	r.Store.Unbind(ch)
}

// dispatch runs under the session lock. Closing slow targets is deferred to
// the returned outcome.
func (r *Router) dispatch(s *app.Session, ch core.Channel, msg domain.Message, now time.Time) outcome {
	switch msg.Kind {
	case domain.KindJoin:
		return r.replay(s, ch, msg, now)
	case domain.KindOffer:
		s.StoreOffer(msg.From, msg.To, msg.Payload, now)
		r.Metrics.Inc(metrics.EventOffersStored)
	case domain.KindICE:
		evicted := s.StoreCandidate(msg.From, msg.Payload, now)
		r.Metrics.Inc(metrics.EventCandidatesStored)
		r.Metrics.Add(metrics.EventCandidatesEvicted, uint64(evicted))
	case domain.KindAnswer, domain.KindControl:
	}
	return r.relay(s, msg)
}

func (r *Router) replay(s *app.Session, ch core.Channel, msg domain.Message, now time.Time) outcome {
	envs := s.ReplayFor(msg.From, now)
	var out outcome
	for _, e := range envs {
		frame, err := domain.Encode(e)
		if err != nil {
			log.Error().Str("module", "orch").Str("session", string(msg.Session)).Err(err).Msg("encode replay")
			continue
		}
		if err := r.send(ch, frame, &out); err != nil {
			break
		}
		r.Metrics.Inc(metrics.EventReplayed)
	}
	log.Debug().Str("module", "orch").Str("session", string(msg.Session)).Str("from", string(msg.From)).
		Int("replayed", len(envs)).Msg("join")
	return out
}

func (r *Router) relay(s *app.Session, msg domain.Message) outcome {
	var out outcome
	target, ok := s.Lookup(msg.To)
	if !ok || target.IsClosed() {
		r.Metrics.Inc(metrics.EventDroppedNoTarget)
		log.Debug().Str("module", "orch").Str("session", string(msg.Session)).Str("from", string(msg.From)).
			Str("to", string(msg.To)).Str("type", string(msg.Kind)).Err(core.ErrUnknownTarget).Msg("dropped")
		return out
	}
	frame, err := domain.Encode(msg.Outbound())
	if err != nil {
		log.Error().Str("module", "orch").Str("session", string(msg.Session)).Err(err).Msg("encode relay")
		return out
	}
	if err := r.send(target, frame, &out); err == nil {
		r.Metrics.Inc(metrics.EventRelayed)
	}
	return out
}
