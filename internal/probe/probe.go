// Package probe negotiates a real WebRTC data channel through the relay.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/rendezvous/internal/adapters/rtc"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Role string

const (
	RoleManager  Role = "manager"
	RoleReceiver Role = "receiver"
)

const (
	pingMessage = "ping"
	pongMessage = "pong"
)

var ErrUnexpectedMessage = errors.New("unexpected data channel message")

type Config struct {
	URL        string
	Session    domain.SessionID
	Self       domain.ClientID
	Peer       domain.ClientID
	Credential string
	Role       Role
	WebRTC     webrtc.Configuration
}

type Result struct {
	Role     Role
	Elapsed  time.Duration
	Received string
}

// Run dials the relay, joins the session and drives one negotiation. The
// manager offers and sends ping; the receiver answers and replies pong.
func Run(ctx context.Context, cfg Config, api *webrtc.API) (Result, error) {
	start := time.Now()
	if cfg.Role != RoleManager && cfg.Role != RoleReceiver {
		return Result{}, fmt.Errorf("unknown role %q", cfg.Role)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	sig := &signalClient{conn: conn, session: cfg.Session, self: cfg.Self, credential: cfg.Credential}

	peer, err := rtc.NewPeer(api, cfg.WebRTC, string(cfg.Self))
	if err != nil {
		return Result{}, fmt.Errorf("new peer: %w", err)
	}
	defer peer.Close()

	// Candidates must follow the description they belong to.
	cands := make(chan webrtc.ICECandidateInit, 64)
	peer.OnICECandidate(func(c webrtc.ICECandidateInit) {
		select {
		case cands <- c:
		default:
			log.Warn().Str("module", "probe").Msg("candidate queue full")
		}
	})
	var trickleOnce sync.Once
	drain := func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-cands:
				if err := sig.send(domain.KindICE, cfg.Peer, c); err != nil {
					return
				}
			}
		}
	}
	trickle := func() { trickleOnce.Do(func() { go drain() }) }

	received := make(chan string, 1)
	peer.OnMessage(func(data []byte) {
		select {
		case received <- string(data):
		default:
		}
	})

	inbound := make(chan domain.Envelope, 64)
	readErr := make(chan error, 1)
	go sig.read(inbound, readErr)

	if err := sig.send(domain.KindJoin, "", nil); err != nil {
		return Result{}, err
	}

	if cfg.Role == RoleManager {
		offer, err := peer.CreateOffer()
		if err != nil {
			return Result{}, fmt.Errorf("create offer: %w", err)
		}
		if err := sig.send(domain.KindOffer, cfg.Peer, offer); err != nil {
			return Result{}, err
		}
		trickle()
		log.Info().Str("module", "probe").Str("session", string(cfg.Session)).Str("to", string(cfg.Peer)).Msg("offer sent")
	}

	opened := peer.Opened()
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case err := <-readErr:
			return Result{}, fmt.Errorf("signaling: %w", err)
		case <-peer.Failed():
			return Result{}, errors.New("peer connection failed")
		case <-opened:
			opened = nil
			if cfg.Role == RoleManager {
				if err := peer.Send([]byte(pingMessage)); err != nil {
					return Result{}, err
				}
			}
		case msg := <-received:
			want := pingMessage
			if cfg.Role == RoleManager {
				want = pongMessage
			}
			if msg != want {
				return Result{}, fmt.Errorf("%w: %q", ErrUnexpectedMessage, msg)
			}
			if cfg.Role == RoleReceiver {
				if err := peer.Send([]byte(pongMessage)); err != nil {
					return Result{}, err
				}
				// Let the pong leave before the peer is torn down.
				time.Sleep(100 * time.Millisecond)
			}
			res := Result{Role: cfg.Role, Elapsed: time.Since(start), Received: msg}
			log.Info().Str("module", "probe").Str("role", string(cfg.Role)).Dur("elapsed", res.Elapsed).Msg("data channel verified")
			return res, nil
		case env := <-inbound:
			if env.From != cfg.Peer {
				continue
			}
			if err := handle(peer, sig, cfg, env, trickle); err != nil {
				return Result{}, err
			}
		}
	}
}

func handle(peer *rtc.Peer, sig *signalClient, cfg Config, env domain.Envelope, trickle func()) error {
	switch env.Type {
	case domain.KindOffer:
		if cfg.Role != RoleReceiver {
			return nil
		}
		var offer webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &offer); err != nil {
			return fmt.Errorf("decode offer: %w", err)
		}
		answer, err := peer.ApplyOfferAndCreateAnswer(offer)
		if err != nil {
			return fmt.Errorf("apply offer: %w", err)
		}
		if err := sig.send(domain.KindAnswer, cfg.Peer, answer); err != nil {
			return err
		}
		trickle()
	case domain.KindAnswer:
		if cfg.Role != RoleManager {
			return nil
		}
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &answer); err != nil {
			return fmt.Errorf("decode answer: %w", err)
		}
		if err := peer.ApplyAnswer(answer); err != nil {
			return fmt.Errorf("apply answer: %w", err)
		}
	case domain.KindICE:
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(env.Payload, &c); err != nil {
			return fmt.Errorf("decode candidate: %w", err)
		}
		if err := peer.AddICECandidate(c); err != nil {
			return fmt.Errorf("add candidate: %w", err)
		}
	case domain.KindControl, domain.KindJoin:
	}
	return nil
}
