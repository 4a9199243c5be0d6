package probe

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/gorilla/websocket"
)

// signalClient speaks the relay protocol over one websocket.
type signalClient struct {
	conn       *websocket.Conn
	session    domain.SessionID
	self       domain.ClientID
	credential string

	mu sync.Mutex
}

type outbound struct {
	Type       domain.Kind      `json:"type"`
	Session    domain.SessionID `json:"session"`
	From       domain.ClientID  `json:"from"`
	To         domain.ClientID  `json:"to,omitempty"`
	Payload    any              `json:"payload,omitempty"`
	Credential string           `json:"credential"`
}

func (c *signalClient) send(kind domain.Kind, to domain.ClientID, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := outbound{
		Type:       kind,
		Session:    c.session,
		From:       c.self,
		To:         to,
		Payload:    payload,
		Credential: c.credential,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

// read delivers inbound envelopes until the connection fails.
func (c *signalClient) read(out chan<- domain.Envelope, errs chan<- error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			errs <- err
			return
		}
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		out <- env
	}
}
