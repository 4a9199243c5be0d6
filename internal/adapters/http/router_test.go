package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/rendezvous/internal/adapters/signal"
	"github.com/dkeye/rendezvous/internal/app"
	"github.com/dkeye/rendezvous/internal/app/orch"
	"github.com/dkeye/rendezvous/internal/auth"
	"github.com/dkeye/rendezvous/internal/config"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/gin-gonic/gin"
)

const key = "registry-key"

var t0 = time.Unix(1_700_000_000, 0).UTC()

func newEngine(t *testing.T, withDevices bool) (*gin.Engine, *metrics.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := metrics.New()
	store := app.NewStore(app.StoreConfig{TTL: time.Hour}, m)
	tokens := auth.NewTokenValidator(key, auth.DefaultTokenLeeway)
	router := &orch.Router{Store: store, Auth: tokens, Policy: app.DropPolicy{}, Metrics: m}
	signer, err := auth.NewSigner(key, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	now := func() time.Time { return t0 }

	deps := Deps{
		Signal:  signal.NewController(router, signal.Limits{}, nil, m),
		Store:   store,
		Metrics: m,
		Tokens:  tokens,
		Signer:  signer,
		Now:     now,
	}
	if withDevices {
		deps.Devices = app.NewDeviceRegistry(now)
	}
	cfg := &config.Config{Mode: "test"}
	return SetupRouter(context.Background(), cfg, deps), m
}

func do(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func register(t *testing.T, r http.Handler, name string) registerResponse {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/devices/register", "", map[string]any{"deviceName": name})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", w.Code, w.Body)
	}
	var resp registerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	r, _ := newEngine(t, false)
	w := do(t, r, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"ok":true}` {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, m := newEngine(t, false)
	m.Inc(metrics.EventRelayed)
	w := do(t, r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`rendezvous_events_total{event="relayed"} 1`,
		"rendezvous_sessions 0",
		"rendezvous_bound_channels 0",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestDevices_DisabledWithoutRegistry(t *testing.T) {
	r, _ := newEngine(t, false)
	w := do(t, r, http.MethodPost, "/api/devices/register", "", map[string]any{"deviceName": "x"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", w.Code)
	}
}

func TestDevices_RegisterIssuesUsableToken(t *testing.T) {
	r, _ := newEngine(t, true)
	resp := register(t, r, "kitchen")
	if resp.DeviceID != "JRV-NODE-0001" {
		t.Fatalf("deviceId=%s", resp.DeviceID)
	}

	claims, err := auth.NewTokenValidator(key, 0).Parse(resp.Token, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.ID != "JRV-NODE-0001" || claims.Name != "kitchen" {
		t.Fatalf("claims=%+v", claims)
	}

	w := do(t, r, http.MethodPost, "/api/devices/register", "", map[string]any{"isParent": true})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing name status=%d, want 400", w.Code)
	}
}

func TestDevices_BearerRequired(t *testing.T) {
	r, _ := newEngine(t, true)
	if w := do(t, r, http.MethodGet, "/api/devices", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status=%d, want 401", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/devices", "garbage", nil); w.Code != http.StatusForbidden {
		t.Fatalf("bad token status=%d, want 403", w.Code)
	}
}

func TestDevices_ListUpdateMessage(t *testing.T) {
	r, _ := newEngine(t, true)
	a := register(t, r, "kitchen")
	register(t, r, "hall")

	w := do(t, r, http.MethodGet, "/api/devices", a.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d", w.Code)
	}
	var list []domain.Device
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 2 || list[1].ID != "JRV-NODE-0002" || list[0].Status != domain.DeviceOnline {
		t.Fatalf("list=%+v", list)
	}

	w = do(t, r, http.MethodPatch, "/api/devices/JRV-NODE-0001", a.Token, map[string]any{"status": "Offline"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status=%d body=%s", w.Code, w.Body)
	}
	if w := do(t, r, http.MethodPatch, "/api/devices/JRV-NODE-0001", a.Token, map[string]any{"status": "Away"}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad status code=%d, want 400", w.Code)
	}
	if w := do(t, r, http.MethodPatch, "/api/devices/JRV-NODE-0404", a.Token, map[string]any{"status": "Online"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown device code=%d, want 404", w.Code)
	}

	w = do(t, r, http.MethodPost, "/api/devices/JRV-NODE-0002/message", a.Token, map[string]any{"message": "lights on"})
	if w.Code != http.StatusOK {
		t.Fatalf("message status=%d body=%s", w.Code, w.Body)
	}
	var msg messageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !msg.Success || msg.DeviceID != "JRV-NODE-0002" || msg.ReceivedMessage != "lights on" || !msg.Timestamp.Equal(t0) {
		t.Fatalf("message=%+v", msg)
	}

	if w := do(t, r, http.MethodPost, "/api/devices/JRV-NODE-0404/message", a.Token, map[string]any{"message": "x"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown device code=%d, want 404", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/api/devices/JRV-NODE-0002/message", a.Token, map[string]any{}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty message code=%d, want 400", w.Code)
	}
}
