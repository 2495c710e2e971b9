// Package agent implements the GatewayAgent lifecycle: bootstrap from
// local cache or the backend, a websocket provisioning handshake, an
// active session with concurrent listener/heartbeat fibers, and
// automatic credential wipe on authentication failure. Grounded
// directly on the original source's main.py HeadlessClient — its
// asyncio.TaskGroup scope becomes an errgroup.Group here.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/donghyeon/scaleledger-gateway/pkg/backend/httpapi"
	"github.com/donghyeon/scaleledger-gateway/pkg/backend/wsapi"
	"github.com/donghyeon/scaleledger-gateway/pkg/events"
	"github.com/donghyeon/scaleledger-gateway/pkg/hostinfo"
	"github.com/donghyeon/scaleledger-gateway/pkg/logger"
	"github.com/donghyeon/scaleledger-gateway/pkg/store"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Phase is one position in the GatewayAgent's lifecycle.
type Phase string

const (
	PhaseBootstrap    Phase = "BOOTSTRAP"
	PhaseProvisioning Phase = "PROVISIONING"
	PhaseActive       Phase = "ACTIVE"
)

// ErrAuthDegraded signals that the backend no longer recognizes the
// gateway's token; the outer loop wipes local auth and re-bootstraps.
var ErrAuthDegraded = errors.New("agent: authentication degraded")

// Config configures a GatewayAgent.
type Config struct {
	BaseURL           string
	WSURL             string // defaults to BaseURL with http(s) swapped for ws(s)
	RetryInterval     time.Duration
	HeartbeatInterval time.Duration

	API   httpapi.APIClient
	Store *store.GatewayStore

	// Events, if set, is drained during the active loop and forwarded
	// to the backend over the active websocket connection. A WeighingWorker
	// feeds this from its events.ChannelSink. Dropped once in-memory if
	// the backend is unreachable for long periods — no offline queue,
	// per spec.md §1 Non-goals.
	Events <-chan events.Event

	// Dial opens a websocket connection; defaults to wsapi.Connect.
	Dial func(ctx context.Context, url string) (*wsapi.Conn, error)
}

// Agent is one GatewayAgent instance, running on the caller's
// goroutine (in cmd/gatewayd, an errgroup goroutine beside the worker's).
type Agent struct {
	cfg Config
	log zerolog.Logger

	macAddress string
	ipAddress  string
	hostname   string

	accessToken string
	gatewayID   int64
}

// New builds an Agent, resolving this machine's MAC/IP/hostname via
// pkg/hostinfo.
func New(cfg Config) (*Agent, error) {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Dial == nil {
		cfg.Dial = wsapi.Connect
	}
	if cfg.WSURL == "" {
		cfg.WSURL = toWebsocketURL(cfg.BaseURL)
	}

	mac, err := hostinfo.MACAddress()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mac address: %w", err)
	}

	return &Agent{
		cfg:        cfg,
		log:        logger.GetLogger(),
		macAddress: mac,
		ipAddress:  hostinfo.IPAddress(),
		hostname:   mustHostname(),
	}, nil
}

func mustHostname() string {
	h, err := hostinfo.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return h
}

func toWebsocketURL(baseURL string) string {
	switch {
	case len(baseURL) >= 5 && baseURL[:5] == "https":
		return "wss" + baseURL[5:]
	case len(baseURL) >= 4 && baseURL[:4] == "http":
		return "ws" + baseURL[4:]
	default:
		return baseURL
	}
}

// Run drives the lifecycle until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		a.bootstrap(ctx)

		var err error
		if a.accessToken == "" {
			err = a.runProvisioningLoop(ctx)
		} else {
			err = a.runActiveLoop(ctx)
		}

		switch {
		case err == nil:
			// fell out cleanly (e.g. provisioning handed over); loop
			// back around to re-evaluate bootstrap immediately.
		case errors.Is(err, ErrAuthDegraded):
			a.log.Warn().Msg("sys.loop.auth_degraded")
			a.wipeLocalAuth()
		case errors.Is(err, context.Canceled):
			a.log.Info().Msg("sys.loop.cancelled")
			return nil
		default:
			a.log.Error().Err(err).Dur("retry_in", a.cfg.RetryInterval).Msg("sys.loop.unexpected_crashed")
			sleepCtx(ctx, a.cfg.RetryInterval)
		}
	}
}

// bootstrap implements spec.md §4.4 phase 1: adopt a cached token, then
// try to refresh/validate it against the backend.
func (a *Agent) bootstrap(ctx context.Context) {
	a.log.Debug().Msg("sys.boot.state.evaluating")

	if a.accessToken == "" {
		g, err := a.cfg.Store.GetByMAC(a.macAddress)
		if err != nil {
			a.log.Error().Err(err).Msg("sys.boot.local_cache.error")
		} else if g.Provisioned() {
			a.accessToken = g.AccessToken
			a.gatewayID = g.ID
			a.log.Info().Int64("gateway_id", a.gatewayID).Msg("sys.boot.local_cache.loaded")
		}
		if a.accessToken == "" {
			a.log.Info().Msg("sys.boot.auth.missing")
			return
		}
	}

	a.log.Info().Msg("sys.boot.remote_api.syncing")
	g, err := a.cfg.API.RetrieveGatewaySelf(ctx, a.accessToken)
	if err != nil {
		var authErr *httpapi.AuthError
		if errors.As(err, &authErr) {
			a.log.Warn().Int("status", authErr.StatusCode).Msg("sys.boot.auth.rejected")
			a.wipeLocalAuth()
			return
		}
		a.log.Warn().Err(err).Msg("sys.boot.network.offline")
		return
	}

	if err := a.cfg.Store.Upsert(g); err != nil {
		a.log.Error().Err(err).Msg("sys.boot.local_cache.write_error")
		return
	}
	a.gatewayID = g.ID
	a.log.Info().Int64("gateway_id", a.gatewayID).Msg("sys.boot.remote_api.success")
}

func (a *Agent) wipeLocalAuth() {
	a.log.Warn().Msg("sys.auth.local_db.wipe")
	if err := a.cfg.Store.DeleteAll(); err != nil {
		a.log.Error().Err(err).Msg("sys.auth.local_db.wipe_error")
	}
	a.accessToken = ""
	a.gatewayID = 0
}

type wireFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// runProvisioningLoop implements spec.md §4.4 phase 2.
func (a *Agent) runProvisioningLoop(ctx context.Context) error {
	url := a.cfg.WSURL + "/ws/devices/gateways/provisioning/"
	a.log.Info().Str("url", url).Msg("net.ws.provisioning.connecting")

	conn, err := a.cfg.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("net.ws.provisioning.connect_failed: %w", err)
	}
	defer conn.Close()
	a.log.Info().Msg("net.ws.provisioning.connected")

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case raw, ok := <-conn.Messages():
			if !ok {
				return fmt.Errorf("net.ws.provisioning.connection_lost")
			}
			a.dispatchProvisioning(conn, raw)
			if a.accessToken != "" {
				a.log.Info().Msg("biz.provisioning.handover_ready")
				return nil
			}
		}
	}
}

func (a *Agent) dispatchProvisioning(conn *wsapi.Conn, raw []byte) {
	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		a.log.Error().Msg("net.ws.message.invalid_json")
		return
	}

	switch frame.Type {
	case "identify":
		a.log.Info().Msg("biz.provisioning.identify.received")
		conn.Send(map[string]any{
			"type": "identity",
			"payload": map[string]string{
				"mac_address": a.macAddress,
				"hostname":    a.hostname,
				"ip_address":  a.ipAddress,
			},
		})
	case "gateway.registered":
		a.log.Info().Msg("biz.provisioning.registered.received")
		var payload struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(frame.Payload, &payload); err == nil && payload.AccessToken != "" {
			a.accessToken = payload.AccessToken
		}
	default:
		a.log.Warn().Str("type", frame.Type).Msg("net.ws.message.ignored")
	}
}

// runActiveLoop implements spec.md §4.4 phase 3: listener and heartbeat
// fibers share cancellation via errgroup, the Go idiom for a
// structured-concurrency scope.
func (a *Agent) runActiveLoop(ctx context.Context) error {
	url := fmt.Sprintf("%s/ws/devices/gateways/%d/", a.cfg.WSURL, a.gatewayID)
	a.log.Info().Str("url", url).Msg("net.ws.active.connecting")

	conn, err := a.cfg.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("net.ws.active.connect_failed: %w", err)
	}
	defer conn.Close()
	a.log.Info().Msg("net.ws.active.connected")

	token := a.accessToken // snapshot: neither fiber rewrites it

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.listenActive(gctx, conn) })
	g.Go(func() error { return a.heartbeatWorker(gctx, token) })
	if a.cfg.Events != nil {
		g.Go(func() error { return a.forwardEvents(gctx, conn) })
	}
	return g.Wait()
}

// forwardEvents drains the WeighingWorker's event sink and relays each
// event to the backend as an "event" wire frame. It never blocks the
// worker: events.ChannelSink already drops oldest-on-full upstream of
// this, so forwardEvents only needs to keep pace with its own channel.
func (a *Agent) forwardEvents(ctx context.Context, conn *wsapi.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case ev, ok := <-a.cfg.Events:
			if !ok {
				return nil
			}
			a.sendEvent(conn, ev)
		}
	}
}

func (a *Agent) sendEvent(conn *wsapi.Conn, ev events.Event) {
	var name string
	var payload map[string]any

	switch e := ev.(type) {
	case events.RFIDTagged:
		name = "weighing.rfid_tagged"
		payload = map[string]any{"rfid_card_uid": e.RFIDCardUID}
	case events.WeighingCompleted:
		name = "weighing.completed"
		payload = map[string]any{"rfid_card_uid": e.RFIDCardUID, "weight": e.Weight}
	default:
		a.log.Warn().Msg("biz.event.unknown_type")
		return
	}

	payload["event_id"] = ev.EventUUID()
	payload["timestamp"] = ev.EventTimestamp()

	if err := conn.Send(map[string]any{"type": name, "payload": payload}); err != nil {
		a.log.Warn().Err(err).Str("event", name).Msg("net.ws.event.send_failed")
	}
}

func (a *Agent) listenActive(ctx context.Context, conn *wsapi.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case raw, ok := <-conn.Messages():
			if !ok {
				return fmt.Errorf("net.ws.active.connection_lost")
			}

			var frame wireFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				a.log.Error().Msg("net.ws.message.invalid_json")
				continue
			}

			switch frame.Type {
			case "scan.peripherals":
				a.log.Info().Msg("biz.active.scan_peripherals.executing")
				peripherals, err := hostinfo.ScanPeripherals()
				if err != nil {
					a.log.Error().Err(err).Msg("biz.active.scan_peripherals.error")
					continue
				}
				conn.Send(map[string]any{
					"type":    "peripherals.scanned",
					"payload": peripherals,
				})
				a.log.Info().Int("count", len(peripherals)).Msg("biz.active.scan_peripherals.completed")
			default:
				a.log.Debug().Str("type", frame.Type).Msg("net.ws.message.ignored")
			}
		}
	}
}

func (a *Agent) heartbeatWorker(ctx context.Context, token string) error {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		a.log.Debug().Msg("net.api.heartbeat.sending")
		err := a.cfg.API.SendHeartbeat(ctx, token)
		if err != nil {
			var authErr *httpapi.AuthError
			if errors.As(err, &authErr) {
				a.log.Error().Int("status", authErr.StatusCode).Msg("net.api.heartbeat.auth_rejected")
				return ErrAuthDegraded
			}
			a.log.Warn().Err(err).Msg("net.api.heartbeat.error")
		} else {
			a.log.Debug().Msg("net.api.heartbeat.success")
		}

		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
		}
	}
}

func (a *Agent) RegisterSelf(ctx context.Context) error {
	g, err := a.cfg.API.RegisterGateway(ctx, a.macAddress, a.hostname, a.ipAddress, a.hostname)
	if err != nil {
		return fmt.Errorf("failed to register gateway: %w", err)
	}
	a.accessToken = g.AccessToken
	a.gatewayID = g.ID
	return a.cfg.Store.Upsert(g)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
