package app

import (
	"encoding/json"
	"time"

	"github.com/dkeye/rendezvous/internal/domain"
)

// StoreOffer keeps the latest offer of from, replacing any earlier one.
func (s *Session) StoreOffer(from, to domain.ClientID, payload json.RawMessage, now time.Time) {
	c := s.client(from)
	c.offer = &storedEntry{To: to, Payload: payload, CreatedAt: now}
}

// StoreCandidate appends a candidate of from and returns how many old
// candidates were evicted to stay under the cap.
func (s *Session) StoreCandidate(from domain.ClientID, payload json.RawMessage, now time.Time) int {
	c := s.client(from)
	evicted := 0
	if limit := s.cfg.MaxCandidatesPerSender; limit > 0 && len(c.candidates) >= limit {
		evicted = len(c.candidates) - limit + 1
		c.candidates = append(c.candidates[:0], c.candidates[evicted:]...)
	}
	c.candidates = append(c.candidates, storedEntry{Payload: payload, CreatedAt: now})
	return evicted
}

// ReplayFor builds what a late joiner needs: every other sender's live offer,
// then every other sender's live candidates in append order. Entries older
// than the TTL at now are skipped but left for the sweeper.
func (s *Session) ReplayFor(requester domain.ClientID, now time.Time) []domain.Envelope {
	var offers, candidates []domain.Envelope
	for _, sender := range s.order {
		// Own offers and candidates are never echoed back to their author.
		if sender == requester {
			continue
		}
		c := s.clients[sender]
		if c.offer != nil && s.live(c.offer.CreatedAt, now) {
			offers = append(offers, domain.Envelope{
				Type:    domain.KindOffer,
				Session: s.id,
				From:    sender,
				To:      requester,
				Payload: c.offer.Payload,
			})
		}
		for _, cand := range c.candidates {
			if !s.live(cand.CreatedAt, now) {
				continue
			}
			candidates = append(candidates, domain.Envelope{
				Type:    domain.KindICE,
				Session: s.id,
				From:    sender,
				To:      requester,
				Payload: cand.Payload,
			})
		}
	}
	return append(offers, candidates...)
}

func (s *Session) live(createdAt, now time.Time) bool {
	return now.Sub(createdAt) <= s.cfg.TTL
}
