package http

import (
	"context"
	"net/http"

	"github.com/dkeye/rendezvous/internal/adapters/signal"
	"github.com/dkeye/rendezvous/internal/app"
	"github.com/dkeye/rendezvous/internal/auth"
	"github.com/dkeye/rendezvous/internal/config"
	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Deps is everything the HTTP surface serves. A nil Devices disables the
// device registry routes.
type Deps struct {
	Signal  *signal.Controller
	Store   *app.Store
	Metrics *metrics.Metrics

	Devices *app.DeviceRegistry
	Tokens  auth.TokenValidator
	Signer  auth.Signer
	Now     core.Clock
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	for _, g := range []struct {
		name, help string
		read       func() int
	}{
		{"sessions", "Live signaling sessions.", deps.Store.Len},
		{"bound_channels", "Connections holding a binding.", deps.Store.Bound},
	} {
		if err := deps.Metrics.GaugeFunc(g.name, g.help, g.read); err != nil {
			log.Warn().Str("module", "http").Str("gauge", g.name).Err(err).Msg("gauge not registered")
		}
	}
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		deps.Signal.HandleSignal(ctx, c)
	})

	if deps.Devices != nil {
		h := &deviceHandlers{
			registry: deps.Devices,
			signer:   deps.Signer,
			now:      deps.Now,
		}
		api.POST("/devices/register", h.register)
		authed := api.Group("/devices", BearerMiddleware(deps.Tokens, deps.Now))
		authed.GET("", h.list)
		authed.PATCH("/:id", h.updateStatus)
		authed.POST("/:id/message", h.message)
	}

	log.Info().Str("module", "adapters.http").Bool("devices", deps.Devices != nil).Msg("router setup")
	return r
}
