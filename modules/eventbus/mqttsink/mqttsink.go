// Package mqttsink forwards booth events to an MQTT broker.
//
// Each event is published as JSON on "<topic_prefix>/<kind>". Publishing is
// rate limited; events over the limit are dropped and counted, matching the
// bus's own drop-never-queue policy.
package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/time/rate"

	"github.com/LeeRoiii/Photoboots/modules/eventbus"
)

// ErrNotConnected is returned when publishing before Connect succeeded.
var ErrNotConnected = errors.New("mqttsink: not connected")

// Config contains broker and throttling settings.
type Config struct {
	Broker         string        // host:port
	ClientID       string        // also stamped on every payload as booth_id
	TopicPrefix    string        // e.g. "photobooth/booth-1/events"
	QoS            byte          // 0, 1 or 2
	RatePerSecond  float64       // sustained publish rate (default: 10)
	Burst          int           // limiter burst (default: 5)
	Buffer         int           // bus subscription buffer (default: 32)
	ConnectTimeout time.Duration // default: 5s
	PublishTimeout time.Duration // default: 2s
}

func (c *Config) applyDefaults() {
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 10
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.Buffer <= 0 {
		c.Buffer = 32
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 2 * time.Second
	}
}

// client is the subset of mqtt.Client the forwarder uses.
type client interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Forwarder relays events from an eventbus.Bus to MQTT.
type Forwarder struct {
	cfg     Config
	client  client
	limiter *rate.Limiter

	mu        sync.RWMutex
	connected bool
	published map[string]uint64 // count per topic
	errors    uint64
	limited   uint64

	bus    eventbus.Bus
	subID  string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Stats contains forwarder statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
	Limited   uint64
}

// payload is the JSON document sent for each event.
type payload struct {
	BoothID string `json:"booth_id"`
	Message string `json:"message"`
	eventbus.Event
}

// New validates cfg and builds a Forwarder backed by a paho client.
func New(cfg Config) (*Forwarder, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqttsink: broker is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("mqttsink: client id is required")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = fmt.Sprintf("photobooth/%s/events", cfg.ClientID)
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqttsink: qos must be 0, 1 or 2 (got %d)", cfg.QoS)
	}
	cfg.applyDefaults()

	f := newForwarder(cfg, nil)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		f.setConnected(true)
		slog.Info("mqttsink: connection established",
			"broker", cfg.Broker,
			"client_id", cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		f.setConnected(false)
		slog.Warn("mqttsink: connection lost, will auto-reconnect",
			"error", err,
			"broker", cfg.Broker,
		)
	}

	f.client = mqtt.NewClient(opts)
	return f, nil
}

func newForwarder(cfg Config, c client) *Forwarder {
	return &Forwarder{
		cfg:       cfg,
		client:    c,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		published: make(map[string]uint64),
	}
}

// Connect establishes the broker connection.
func (f *Forwarder) Connect(ctx context.Context) error {
	slog.Info("mqttsink: connecting to broker", "broker", f.cfg.Broker)

	token := f.client.Connect()

	timeout := f.cfg.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqttsink: connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttsink: connection failed: %w", err)
	}

	f.setConnected(true)
	return nil
}

// Attach subscribes the forwarder to bus under id and relays events until
// ctx is cancelled or Close is called.
func (f *Forwarder) Attach(ctx context.Context, bus eventbus.Bus, id string) error {
	events := make(chan eventbus.Event, f.cfg.Buffer)
	if err := bus.Subscribe(id, events); err != nil {
		return fmt.Errorf("mqttsink: subscribe: %w", err)
	}

	localCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.bus = bus
	f.subID = id
	f.cancel = cancel
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-localCtx.Done():
				return
			case ev := <-events:
				if err := f.Publish(ev); err != nil {
					slog.Debug("mqttsink: event not forwarded",
						"kind", ev.Kind.String(),
						"error", err,
					)
				}
			}
		}
	}()

	return nil
}

// Publish sends one event. Over-limit events are dropped silently.
func (f *Forwarder) Publish(ev eventbus.Event) error {
	if !f.limiter.Allow() {
		f.mu.Lock()
		f.limited++
		f.mu.Unlock()
		return nil
	}

	if !f.isConnected() {
		f.countError()
		return ErrNotConnected
	}

	topic := f.Topic(ev.Kind)

	body, err := json.Marshal(payload{
		BoothID: f.cfg.ClientID,
		Message: ev.Message(),
		Event:   ev,
	})
	if err != nil {
		f.countError()
		return fmt.Errorf("mqttsink: marshal event: %w", err)
	}

	token := f.client.Publish(topic, f.cfg.QoS, false, body)
	if !token.WaitTimeout(f.cfg.PublishTimeout) {
		f.countError()
		return fmt.Errorf("mqttsink: publish timeout")
	}
	if err := token.Error(); err != nil {
		f.countError()
		return fmt.Errorf("mqttsink: publish failed: %w", err)
	}

	f.mu.Lock()
	f.published[topic]++
	f.mu.Unlock()

	slog.Debug("mqttsink: event published",
		"topic", topic,
		"qos", f.cfg.QoS,
		"size", len(body),
	)
	return nil
}

// Topic returns the topic an event kind is published on.
func (f *Forwarder) Topic(kind eventbus.Kind) string {
	return f.cfg.TopicPrefix + "/" + kind.String()
}

// Close detaches from the bus and disconnects. Safe to call more than once.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	cancel, bus, id := f.cancel, f.bus, f.subID
	f.cancel, f.bus = nil, nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
		f.wg.Wait()
		if err := bus.Unsubscribe(id); err != nil && !errors.Is(err, eventbus.ErrBusClosed) {
			slog.Warn("mqttsink: unsubscribe failed", "error", err)
		}
	}

	if f.client != nil && f.client.IsConnected() {
		f.client.Disconnect(250)
		slog.Info("mqttsink: disconnected")
	}
	f.setConnected(false)
	return nil
}

// Stats returns forwarder statistics
func (f *Forwarder) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	published := make(map[string]uint64, len(f.published))
	for k, v := range f.published {
		published[k] = v
	}

	return Stats{
		Connected: f.connected,
		Published: published,
		Errors:    f.errors,
		Limited:   f.limited,
	}
}

func (f *Forwarder) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *Forwarder) isConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

func (f *Forwarder) countError() {
	f.mu.Lock()
	f.errors++
	f.mu.Unlock()
}
