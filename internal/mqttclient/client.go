// Package mqttclient is the envelope-based MQTT client library every
// TARS worker uses for all broker I/O: connect, subscribe, dispatch,
// publish-with-envelope, automatic reconnection with subscription
// recovery, application-level keepalive, and at-most-once
// deduplication (spec §4.1).
package mqttclient

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tars-project/tars/internal/envelope"
	"github.com/tars-project/tars/internal/metrics"
	"github.com/tars-project/tars/internal/topics"
)

// Handler processes one matched message's raw payload. Handlers must
// not block indefinitely — invocations for a given subscription are
// serialized, so a slow handler delays the rest of that subscription's
// backlog (spec §5 ordering guarantees).
type Handler func(topic string, payload []byte)

// Options configures a Client. Every field corresponds to an
// environment variable in the configuration contract (spec §4.1); the
// zero value for Keepalive/ReconnectMinDelay/ReconnectMaxDelay is
// replaced with the documented default.
type Options struct {
	BrokerURL  string
	ClientID   string
	SourceName string // defaults to ClientID
	Username   string
	Password   string

	Keepalive time.Duration // default 60s

	EnableHealth      bool
	EnableHeartbeat   bool
	HeartbeatInterval time.Duration // default 5s

	DedupTTL        time.Duration // 0 disables dedup
	DedupMaxEntries int           // 0 disables dedup

	ReconnectMinDelay time.Duration // default 500ms
	ReconnectMaxDelay time.Duration // default 5s

	Log zerolog.Logger
}

func (o *Options) applyDefaults() {
	if o.Keepalive <= 0 {
		o.Keepalive = 60 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 5 * time.Second
	}
	if o.ReconnectMinDelay <= 0 {
		o.ReconnectMinDelay = 500 * time.Millisecond
	}
	if o.ReconnectMaxDelay <= 0 {
		o.ReconnectMaxDelay = 5 * time.Second
	}
	if o.SourceName == "" {
		o.SourceName = o.ClientID
	}
}

type subscription struct {
	filter  string
	qos     byte
	handler Handler
	queue   chan mqtt.Message
}

// Client is the shared MQTT library type every worker uses for
// connect/subscribe/publish.
type Client struct {
	opts Options
	log  zerolog.Logger

	conn mqtt.Client

	mu            sync.Mutex
	subscriptions []*subscription // registration order, replayed on reconnect

	dedup *dedupCache

	lastHeartbeat   atomicTime
	heartbeatCancel chan struct{}

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// atomicTime is a tiny mutex-guarded timestamp; avoids pulling in
// sync/atomic's pointer dance for a single time.Time.
type atomicTime struct {
	mu sync.Mutex
	t  time.Time
}

func (a *atomicTime) set(t time.Time) {
	a.mu.Lock()
	a.t = t
	a.mu.Unlock()
}

func (a *atomicTime) get() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t
}

// New builds a Client without connecting.
func New(opts Options) *Client {
	opts.applyDefaults()
	return &Client{
		opts:     opts,
		log:      opts.Log,
		dedup:    newDedupCache(opts.DedupTTL, opts.DedupMaxEntries),
		shutdown: make(chan struct{}),
	}
}

// Connect opens a session, starts the dispatch path and (if enabled)
// the heartbeat loop, and publishes the initial retained health
// message.
func (c *Client) Connect() error {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(c.opts.BrokerURL).
		SetClientID(c.opts.ClientID).
		SetKeepAlive(c.opts.Keepalive).
		SetAutoReconnect(true).
		SetConnectRetryInterval(c.opts.ReconnectMinDelay).
		SetMaxReconnectInterval(c.opts.ReconnectMaxDelay).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetDefaultPublishHandler(c.onMessage)

	if c.opts.Username != "" {
		clientOpts.SetUsername(c.opts.Username)
	}
	if c.opts.Password != "" {
		clientOpts.SetPassword(c.opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttclient: connect: %w", err)
	}

	if c.opts.EnableHeartbeat {
		c.heartbeatCancel = make(chan struct{})
		go c.heartbeatLoop()
	}

	if c.opts.EnableHealth {
		if err := c.PublishHealth(true, "ready", ""); err != nil {
			c.log.Warn().Err(err).Msg("failed to publish initial health")
		}
	}

	return nil
}

// onConnect re-subscribes every registered filter, in registration
// order, before any dispatch resumes — the subscription-recovery
// invariant spec §8 requires after a forced disconnect.
func (c *Client) onConnect(conn mqtt.Client) {
	c.mu.Lock()
	subs := append([]*subscription(nil), c.subscriptions...)
	c.mu.Unlock()

	c.log.Info().Int("count", len(subs)).Msg("mqtt connected, resubscribing")
	for _, s := range subs {
		if err := c.rawSubscribe(conn, s); err != nil {
			c.log.Error().Err(err).Str("filter", s.filter).Msg("resubscribe failed")
		}
	}

	if c.opts.EnableHealth {
		if err := c.PublishHealth(true, "reconnected", ""); err != nil {
			c.log.Warn().Err(err).Msg("failed to publish reconnect health")
		}
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
	metrics.MQTTReconnectsTotal.Inc()
}

// onMessage is paho's single incoming-message callback. It matches the
// topic against every registered filter, deduplicates, and enqueues
// onto that subscription's serialized queue — returning immediately so
// different topics' handlers can run concurrently while a given
// subscription's handlers stay strictly ordered (spec §5).
func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()
	metrics.MQTTMessagesReceivedTotal.Inc()

	if c.dedup.enabled() {
		e, err := envelope.Decode(payload)
		if err == nil && c.dedup.seen(e.ID) {
			c.log.Debug().Str("topic", topic).Str("envelope_id", e.ID).Msg("dropping duplicate message")
			metrics.MQTTMessagesDedupedTotal.Inc()
			return
		}
	}

	c.mu.Lock()
	var matched []*subscription
	for _, s := range c.subscriptions {
		if MatchTopic(s.filter, topic) {
			matched = append(matched, s)
		}
	}
	c.mu.Unlock()

	if len(matched) == 0 {
		c.log.Warn().Str("topic", topic).Msg("no handler for topic")
		return
	}

	for _, s := range matched {
		select {
		case s.queue <- msg:
		default:
			c.log.Warn().Str("topic", topic).Str("filter", s.filter).Msg("handler queue full, dropping message")
		}
	}
}

// Subscribe registers filter's handler. If the client is already
// connected, the filter is subscribed immediately; it is also replayed
// on every subsequent reconnect.
func (c *Client) Subscribe(filter string, qos byte, handler Handler) error {
	s := &subscription{
		filter:  filter,
		qos:     qos,
		handler: handler,
		queue:   make(chan mqtt.Message, 256),
	}

	go c.runSubscription(s)

	c.mu.Lock()
	c.subscriptions = append(c.subscriptions, s)
	connected := c.conn != nil && c.conn.IsConnected()
	c.mu.Unlock()

	if connected {
		return c.rawSubscribe(c.conn, s)
	}
	return nil
}

func (c *Client) rawSubscribe(conn mqtt.Client, s *subscription) error {
	token := conn.Subscribe(s.filter, s.qos, nil)
	token.Wait()
	return token.Error()
}

// runSubscription drains one subscription's queue, invoking its
// handler one message at a time. Handler panics are isolated: this
// loop only ever logs and continues.
func (c *Client) runSubscription(s *subscription) {
	for {
		select {
		case msg, ok := <-s.queue:
			if !ok {
				return
			}
			c.invokeHandler(s, msg)
		case <-c.shutdown:
			return
		}
	}
}

func (c *Client) invokeHandler(s *subscription, msg mqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().
				Str("topic", msg.Topic()).
				Interface("panic", r).
				Msg("subscription handler panicked")
		}
	}()
	s.handler(msg.Topic(), msg.Payload())
}

// PublishEvent wraps data in a fresh envelope (new id, current
// timestamp, configured source name) and publishes it to topic.
func (c *Client) PublishEvent(topic, eventType string, data any, correlate string, qos byte, retain bool) error {
	if c.conn == nil || !c.conn.IsConnected() {
		return errors.New("mqttclient: publish during reconnect gap: not connected")
	}

	if !topics.MatchesType(topic, eventType) {
		c.log.Debug().Str("topic", topic).Str("event_type", eventType).Msg("event type does not match topic's registered type")
	}

	e, err := envelope.New(eventType, c.opts.SourceName, data, correlate)
	if err != nil {
		return fmt.Errorf("mqttclient: build envelope: %w", err)
	}
	payload, err := envelope.Encode(e)
	if err != nil {
		return fmt.Errorf("mqttclient: encode envelope: %w", err)
	}

	token := c.conn.Publish(topic, qos, retain, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttclient: publish %s: %w", topic, err)
	}
	return nil
}

// PublishEventWithID behaves like PublishEvent but lets the caller
// choose the envelope id up front, so a correlation future can be
// registered under that exact id before the request is even on the
// wire (avoiding the race of publishing first and learning the id
// only afterward).
func (c *Client) PublishEventWithID(topic, eventType, id string, data any, correlate string, qos byte, retain bool) error {
	if c.conn == nil || !c.conn.IsConnected() {
		return errors.New("mqttclient: publish during reconnect gap: not connected")
	}

	e, err := envelope.NewWithID(id, eventType, c.opts.SourceName, data, correlate)
	if err != nil {
		return fmt.Errorf("mqttclient: build envelope: %w", err)
	}
	payload, err := envelope.Encode(e)
	if err != nil {
		return fmt.Errorf("mqttclient: encode envelope: %w", err)
	}

	token := c.conn.Publish(topic, qos, retain, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttclient: publish %s: %w", topic, err)
	}
	return nil
}

// PublishHealth publishes to system/health/<client_id>, always QoS 1
// retained.
func (c *Client) PublishHealth(ok bool, event, errMsg string) error {
	data := map[string]any{"ok": ok}
	if event != "" {
		data["event"] = event
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	return c.PublishEvent(topics.HealthTopic(c.opts.ClientID), "health.status", data, "", 1, true)
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	watchdog := time.NewTicker(c.opts.HeartbeatInterval)
	defer watchdog.Stop()

	for {
		select {
		case <-c.heartbeatCancel:
			return
		case <-ticker.C:
			c.publishHeartbeatOnce()
		case <-watchdog.C:
			last := c.lastHeartbeat.get()
			if !last.IsZero() && time.Since(last) > 3*c.opts.HeartbeatInterval {
				c.log.Warn().Msg("heartbeat watchdog: no successful publish for 3x interval, forcing reconnect")
				c.forceReconnect()
			}
		}
	}
}

func (c *Client) publishHeartbeatOnce() {
	data := map[string]any{"ok": true, "event": "heartbeat", "timestamp": time.Now().Unix()}

	done := make(chan error, 1)
	go func() {
		done <- c.PublishEvent(topics.KeepaliveTopic(c.opts.ClientID), "", data, "", 0, false)
	}()

	select {
	case err := <-done:
		if err != nil {
			c.log.Error().Err(err).Msg("heartbeat publish failed")
			return
		}
		c.lastHeartbeat.set(time.Now())
	case <-time.After(2 * time.Second):
		c.log.Warn().Msg("heartbeat publish exceeded 2s, forcing reconnect")
		metrics.MQTTHeartbeatFailuresTotal.Inc()
		c.forceReconnect()
	}
}

func (c *Client) forceReconnect() {
	metrics.MQTTReconnectsTotal.Inc()
	if c.conn == nil {
		return
	}
	c.conn.Disconnect(0)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("forced reconnect failed")
	}
}

// nextBackoff computes min(max, min*2^attempt), the reconnect delay
// schedule spec §4.1 prescribes. Only tests call it. Live reconnects
// are left to paho's auto-reconnect, which Connect caps at
// ReconnectMaxDelay; ReconnectMinDelay reaches paho only as its
// connect-retry interval, so paho's first reconnect delay is its own.
func nextBackoff(attempt int, min, max time.Duration) time.Duration {
	d := time.Duration(float64(min) * math.Pow(2, float64(attempt)))
	if d > max {
		return max
	}
	if d < min {
		return min
	}
	return d
}

// IsConnected reports whether the client currently holds a live
// broker session.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// LastHeartbeat returns the time of the last successful keepalive
// publish, or the zero time if heartbeats are disabled or none has
// been published yet. Used by the admin health endpoint to report
// staleness without duplicating the watchdog's own logic.
func (c *Client) LastHeartbeat() time.Time {
	return c.lastHeartbeat.get()
}

// Shutdown publishes a final unhealthy status (if health is enabled),
// stops background tasks, and closes the session. Idempotent.
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() {
		if c.opts.EnableHealth && c.IsConnected() {
			if err := c.PublishHealth(false, "shutdown", ""); err != nil {
				c.log.Warn().Err(err).Msg("failed to publish shutdown health")
			}
			time.Sleep(100 * time.Millisecond)
		}
		if c.heartbeatCancel != nil {
			close(c.heartbeatCancel)
		}
		close(c.shutdown)
		if c.conn != nil {
			c.conn.Disconnect(250)
		}
		c.log.Info().Msg("mqtt client shutdown complete")
	})
}
