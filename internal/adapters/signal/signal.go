// Package signal serves the signaling websocket endpoint.
package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/rendezvous/internal/app/orch"
	"github.com/dkeye/rendezvous/internal/config"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Limits struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func LimitsFrom(cfg *config.Config) Limits {
	return Limits{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait(),
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	}
}

const (
	defaultPingPeriod = 54 * time.Second
	defaultWriteWait  = 5 * time.Second
	defaultSendBuffer = 256
)

func (l Limits) withDefaults() Limits {
	if l.PingPeriod <= 0 {
		l.PingPeriod = defaultPingPeriod
	}
	if l.PongWait <= 0 {
		l.PongWait = l.PingPeriod * 10 / 9
	}
	if l.WriteWait <= 0 {
		l.WriteWait = defaultWriteWait
	}
	if l.SendBuffer <= 0 {
		l.SendBuffer = defaultSendBuffer
	}
	return l
}

type Controller struct {
	Router  *orch.Router
	Limits  Limits
	Limiter *RateLimiter
	Metrics *metrics.Metrics
}

func NewController(router *orch.Router, limits Limits, limiter *RateLimiter, m *metrics.Metrics) *Controller {
	return &Controller{
		Router:  router,
		Limits:  limits.withDefaults(),
		Limiter: limiter,
		Metrics: m,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the pumps. ctx ends every
// connection it started when cancelled.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := NewWsConn(ws, ctl.Limits.SendBuffer)
	ctl.Metrics.Inc(metrics.EventConnectionsOpened)
	log.Info().Str("module", "signal").Str("conn", conn.ID()).Str("remote", c.ClientIP()).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(conn)
}
