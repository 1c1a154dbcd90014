package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/logging"
	"futures-radar-bot/internal/market"
)

const writeTimeout = 10 * time.Second

// Client owns the websocket connection to the upstream feed: subscribing,
// heartbeating, decoding and reconnecting. Decoded events are handed to the
// registered handlers on the reader goroutine, so handlers must not block.
type Client struct {
	mu sync.RWMutex

	url      string
	exchange string

	conn       *websocket.Conn
	writeMu    sync.Mutex
	channels   []string
	channelSet map[string]bool

	onLiquidation func(market.LiquidationEvent)
	onTrade       func(market.TradeEvent)
	onTerminal    func(error)

	hb     *heartbeatMonitor
	dialer *websocket.Dialer

	reconnectBase     time.Duration
	reconnectMaxDelay time.Duration
	maxAttempts       int

	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup

	framesReceived uint64
	eventsDecoded  uint64
	decodeErrors   uint64
	serverErrors   uint64
	unroutedFrames uint64
	reconnects     int
	connectedSince time.Time

	log *logging.Logger
}

// NewClient creates a feed client from config. Handlers are registered
// afterwards; Start establishes the connection.
func NewClient(cfg config.FeedConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}

	url := cfg.URL
	if cfg.APIKey != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url = url + sep + "cg-api-key=" + cfg.APIKey
	}

	connectTimeout := time.Duration(cfg.ConnectTimeoutSec) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}

	reconnectBase := time.Duration(cfg.ReconnectBaseSec) * time.Second
	if reconnectBase <= 0 {
		reconnectBase = 2 * time.Second
	}
	reconnectMaxDelay := time.Duration(cfg.ReconnectMaxDelaySec) * time.Second
	if reconnectMaxDelay <= 0 {
		reconnectMaxDelay = 60 * time.Second
	}
	maxAttempts := cfg.ReconnectMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		url:        url,
		exchange:   cfg.Exchange,
		channelSet: make(map[string]bool),
		hb: newHeartbeatMonitor(
			time.Duration(cfg.HeartbeatBaseSec)*time.Second,
			time.Duration(cfg.HeartbeatMinSec)*time.Second,
			time.Duration(cfg.HeartbeatMaxSec)*time.Second,
			time.Duration(cfg.PongTimeoutSec)*time.Second,
		),
		dialer:            &websocket.Dialer{HandshakeTimeout: connectTimeout},
		reconnectBase:     reconnectBase,
		reconnectMaxDelay: reconnectMaxDelay,
		maxAttempts:       maxAttempts,
		stopChan:          make(chan struct{}),
		log:               logger.WithComponent("feed"),
	}
}

// SetLiquidationHandler registers the callback for liquidation events.
func (c *Client) SetLiquidationHandler(cb func(market.LiquidationEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLiquidation = cb
}

// SetTradeHandler registers the callback for large-trade events.
func (c *Client) SetTradeHandler(cb func(market.TradeEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrade = cb
}

// SetTerminalHandler registers the callback invoked when reconnect
// attempts are exhausted and the client gives up.
func (c *Client) SetTerminalHandler(cb func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTerminal = cb
}

// Subscribe adds a channel. If connected the subscribe frame is sent
// immediately; either way the channel is re-subscribed after reconnects.
func (c *Client) Subscribe(channel string) error {
	c.mu.Lock()
	if !c.channelSet[channel] {
		c.channelSet[channel] = true
		c.channels = append(c.channels, channel)
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.writeJSON(conn, wsRequest{Op: "subscribe", Args: []string{channel}})
}

// Unsubscribe removes a channel and, if connected, tells the feed.
func (c *Client) Unsubscribe(channel string) error {
	c.mu.Lock()
	if c.channelSet[channel] {
		delete(c.channelSet, channel)
		for i, ch := range c.channels {
			if ch == channel {
				c.channels = append(c.channels[:i], c.channels[i+1:]...)
				break
			}
		}
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.writeJSON(conn, wsRequest{Op: "unsubscribe", Args: []string{channel}})
}

// Start connects in the background and begins delivering events.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	c.log.Info("feed client started", "url_host", hostOnly(c.url))
	return nil
}

// Stop closes the connection and waits for all client goroutines.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = false
	close(c.stopChan)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	c.log.Info("feed client stopped")
}

// IsConnected reports whether a live connection exists right now.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *Client) stopped() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

// run is the connect/serve/reconnect loop.
func (c *Client) run() {
	defer c.wg.Done()

	attempt := 0
	for {
		if c.stopped() {
			return
		}

		if attempt > 0 {
			delay := backoffDelay(c.reconnectBase, c.reconnectMaxDelay, attempt-1)
			c.log.Warn("reconnecting to feed",
				"attempt", attempt, "max_attempts", c.maxAttempts, "delay", delay.String())
			select {
			case <-c.stopChan:
				return
			case <-time.After(delay):
			}
		}

		conn, _, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			attempt++
			c.log.Error("feed connect failed", "attempt", attempt, "error", err)
			if attempt >= c.maxAttempts {
				c.log.Error("feed reconnect attempts exhausted", "attempts", attempt)
				c.reportTerminal(fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, attempt, err))
				return
			}
			continue
		}

		attempt = 0
		c.serveConn(conn)

		if c.stopped() {
			return
		}

		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		c.log.Warn("feed connection lost, scheduling reconnect")
		attempt = 1
	}
}

// serveConn subscribes, heartbeats and reads one connection to exhaustion.
func (c *Client) serveConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connectedSince = time.Now()
	channels := append([]string(nil), c.channels...)
	c.mu.Unlock()

	c.hb.reset()
	c.log.Info("feed connected", "channels", len(channels))

	for _, ch := range channels {
		if err := c.writeJSON(conn, wsRequest{Op: "subscribe", Args: []string{ch}}); err != nil {
			c.log.Error("subscribe failed", "channel", ch, "error", err)
			conn.Close()
			c.clearConn(conn)
			return
		}
		c.log.Debug("subscribed", "channel", ch)
	}

	hbDone := make(chan struct{})
	c.wg.Add(1)
	go c.heartbeatLoop(conn, hbDone)

	c.readLoop(conn)

	close(hbDone)
	conn.Close()
	c.clearConn(conn)
}

func (c *Client) clearConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

// heartbeatLoop sends heartbeats on the adaptive interval and closes the
// connection once too many go unanswered.
func (c *Client) heartbeatLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer c.wg.Done()

	timer := time.NewTimer(c.hb.currentInterval())
	defer timer.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.stopChan:
			return
		case <-timer.C:
			if c.hb.expirePending(time.Now()) {
				failures := c.hb.consecutiveFailures()
				c.log.Warn("heartbeat reply missing", "consecutive_failures", failures)
				if failures >= heartbeatFailureLimit {
					c.log.Error("connection dead, forcing reconnect", "failed_heartbeats", failures)
					conn.Close()
					return
				}
			}

			if !c.hb.hasPending() {
				if err := c.writeText(conn, "ping"); err != nil {
					c.log.Warn("heartbeat send failed", "error", err)
					conn.Close()
					return
				}
				c.hb.markSent(time.Now())
			}

			timer.Reset(c.hb.currentInterval())
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if c.stopped() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("feed closed the connection")
			} else {
				c.log.Warn("feed read error", "error", err)
			}
			return
		}

		c.handleFrame(conn, msg)
	}
}

// handleFrame classifies one inbound frame: heartbeat replies, server
// pings, subscription acks, error objects and data envelopes. Only data
// envelopes reach the handlers.
func (c *Client) handleFrame(conn *websocket.Conn, msg []byte) {
	c.mu.Lock()
	c.framesReceived++
	c.mu.Unlock()

	if string(msg) == "pong" {
		c.hb.pongReceived(time.Now())
		return
	}

	var fr wsFrame
	if err := json.Unmarshal(msg, &fr); err != nil {
		c.mu.Lock()
		c.decodeErrors++
		c.mu.Unlock()
		c.log.Debug("undecodable frame skipped", "error", err)
		return
	}

	switch {
	case fr.Event == "ping":
		// Counts as a heartbeat reply when one is outstanding, and is
		// answered either way.
		c.hb.pongReceived(time.Now())
		if err := c.writeText(conn, "pong"); err != nil {
			c.log.Debug("pong reply failed", "error", err)
		}

	case fr.Success != nil:
		c.log.Debug("subscription acknowledged", "success", *fr.Success, "channel", fr.Channel)

	case len(fr.Error) > 0:
		c.mu.Lock()
		c.serverErrors++
		c.mu.Unlock()
		c.log.Warn("feed error frame", "error", string(fr.Error))

	case fr.Channel != "" && len(fr.Data) > 0:
		c.routeEnvelope(fr)

	default:
		c.mu.Lock()
		c.unroutedFrames++
		c.mu.Unlock()
		c.log.Debug("unrouted frame skipped", "channel", fr.Channel)
	}
}

// routeEnvelope decodes a data envelope's items and hands them to the
// matching handler.
func (c *Client) routeEnvelope(fr wsFrame) {
	c.mu.RLock()
	onLiquidation := c.onLiquidation
	onTrade := c.onTrade
	c.mu.RUnlock()

	switch {
	case fr.Channel == ChannelLiquidations:
		if onLiquidation == nil {
			c.noteUnrouted(fr.Channel)
			return
		}
		for _, it := range fr.Data {
			ev, err := it.liquidationEvent()
			if err != nil {
				c.noteDecodeError(fr.Channel, err)
				continue
			}
			c.noteDecoded()
			onLiquidation(ev)
		}

	case strings.HasPrefix(fr.Channel, tradeChannelPrefix):
		if onTrade == nil {
			c.noteUnrouted(fr.Channel)
			return
		}
		for _, it := range fr.Data {
			ev, err := it.tradeEvent()
			if err != nil {
				c.noteDecodeError(fr.Channel, err)
				continue
			}
			c.noteDecoded()
			onTrade(ev)
		}

	default:
		c.noteUnrouted(fr.Channel)
	}
}

func (c *Client) noteDecoded() {
	c.mu.Lock()
	c.eventsDecoded++
	c.mu.Unlock()
}

func (c *Client) noteDecodeError(channel string, err error) {
	c.mu.Lock()
	c.decodeErrors++
	c.mu.Unlock()
	c.log.Debug("event decode failed", "channel", channel, "error", err)
}

func (c *Client) noteUnrouted(channel string) {
	c.mu.Lock()
	c.unroutedFrames++
	c.mu.Unlock()
	c.log.Debug("no handler for channel", "channel", channel)
}

func (c *Client) reportTerminal(err error) {
	c.mu.Lock()
	c.isRunning = false
	cb := c.onTerminal
	c.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

func (c *Client) writeText(conn *websocket.Conn, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *Client) writeJSON(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// backoffDelay doubles the base per prior failure, capped at max.
func backoffDelay(base, max time.Duration, n int) time.Duration {
	delay := base
	for i := 0; i < n; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func hostOnly(url string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(url, "wss://"), "ws://")
	if i := strings.IndexAny(trimmed, "/?"); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

// Stats returns a snapshot of client counters for the status API.
func (c *Client) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	connectedSince := ""
	if c.conn != nil {
		connectedSince = c.connectedSince.UTC().Format(time.RFC3339)
	}

	return map[string]interface{}{
		"connected":       c.conn != nil,
		"connected_since": connectedSince,
		"channels":        len(c.channels),
		"reconnects":      c.reconnects,
		"frames_received": c.framesReceived,
		"events_decoded":  c.eventsDecoded,
		"decode_errors":   c.decodeErrors,
		"server_errors":   c.serverErrors,
		"unrouted_frames": c.unroutedFrames,
		"heartbeat":       c.hb.stats(),
	}
}
