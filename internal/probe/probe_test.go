package probe

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/rendezvous/internal/adapters/rtc"
	"github.com/dkeye/rendezvous/internal/adapters/signal"
	"github.com/dkeye/rendezvous/internal/app"
	"github.com/dkeye/rendezvous/internal/app/orch"
	"github.com/dkeye/rendezvous/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const secret = "probe-secret"

func newRelay(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := app.NewStore(app.StoreConfig{TTL: time.Hour}, nil)
	router := &orch.Router{Store: store, Auth: auth.SharedSecret{Expected: secret}, Policy: app.DropPolicy{}}
	ctl := signal.NewController(router, signal.Limits{ReadLimit: 1 << 16}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	engine := gin.New()
	engine.GET("/api/ws/signal", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
}

func TestRunPair_LateJoin(t *testing.T) {
	if testing.Short() {
		t.Skip("negotiates a real peer connection")
	}
	url := newRelay(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	base := Config{URL: url, Session: "probe", Credential: secret, WebRTC: webrtc.Configuration{}}
	results, err := RunPair(ctx, base, "m1", "r1", 300*time.Millisecond, rtc.NewAPI(zerolog.WarnLevel))
	if err != nil {
		t.Fatalf("RunPair: %v", err)
	}
	if results[0].Role != RoleManager || results[0].Received != pongMessage {
		t.Fatalf("manager=%+v", results[0])
	}
	if results[1].Role != RoleReceiver || results[1].Received != pingMessage {
		t.Fatalf("receiver=%+v", results[1])
	}
}

func TestRun_RejectsUnknownRole(t *testing.T) {
	_, err := Run(context.Background(), Config{Role: "observer"}, nil)
	if err == nil {
		t.Fatalf("unknown role accepted")
	}
}

func TestRun_BadCredentialEndsProbe(t *testing.T) {
	url := newRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := Config{URL: url, Session: "probe", Self: "r1", Peer: "m1", Credential: "wrong", Role: RoleReceiver}
	if _, err := Run(ctx, cfg, rtc.NewAPI(zerolog.WarnLevel)); err == nil {
		t.Fatalf("probe succeeded with a bad credential")
	}
}
