package signal

import (
	"context"
	"time"

	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(ctl.Limits.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	stop := ctx.Done()
	for {
		select {
		case <-stop:
			stop = nil
			c.Close(core.CloseShutdown)
		case <-c.done:
			reason := c.closeReason()
			msg := websocket.FormatCloseMessage(reason.Code, reason.Text)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(ctl.Limits.WriteWait))
			log.Debug().Str("module", "signal").Str("conn", c.ID()).Int("code", reason.Code).Msg("sent close")
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Limits.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", c.ID()).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", c.ID()).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Limits.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", c.ID()).Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(c *WsConn) {
	defer func() {
		c.Close(core.CloseNormal)
		ctl.Router.Disconnect(c)
		ctl.Limiter.Forget(c.ID())
		ctl.Metrics.Inc(metrics.EventConnectionsClosed)
		log.Info().Str("module", "signal").Str("conn", c.ID()).Msg("connection closed")
	}()

	c.conn.SetReadLimit(ctl.Limits.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Limits.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Limits.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.IsClosed() {
				log.Warn().Err(err).Str("module", "signal").Str("conn", c.ID()).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Limits.PongWait))

		if !ctl.Limiter.Allow(c.ID()) {
			ctl.Metrics.Inc(metrics.EventRateLimited)
			log.Warn().Str("module", "signal").Str("conn", c.ID()).Msg("rate limited, frame dropped")
			continue
		}
		_ = ctl.Router.HandleFrame(c, data)
		if c.IsClosed() {
			return
		}
	}
}
