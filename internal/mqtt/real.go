package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/sous-vide/internal/logic"
)

// DefaultBufferSize is the number of messages kept while offline.
const DefaultBufferSize = 256

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string // a random suffix is appended per process
	Topic      string // base topic, see TopicsFor
	BufferSize int

	// OnConnectionChange, if set, is called from the paho goroutine on
	// every connect and connection loss.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Publishing never waits
// on the network: while the client is offline messages go into a ring buffer
// that is replayed on reconnection.
type RealPublisher struct {
	client paho.Client
	topics Topics
	notify func(bool)

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher and starts connecting in the
// background. A broker that is down at startup is not an error: the client
// keeps retrying and messages are buffered meanwhile.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("no broker configured")
	}
	if o.ClientID == "" {
		o.ClientID = "sous-vide"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		topics: TopicsFor(o.Topic),
		notify: o.OnConnectionChange,
		buf:    newRingBuffer(o.BufferSize),
	}

	clientID := o.ClientID + "-" + uuid.NewString()[:8]
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System, string(WillPayload()), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Warn("mqtt connection lost", "error", err)
			p.setConnected(false)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if token.WaitTimeout(10 * time.Second) {
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
	} else {
		slog.Warn("mqtt broker not reachable yet, buffering", "broker", o.Broker)
	}
	slog.Info("mqtt publisher ready", "broker", o.Broker, "client_id", clientID, "topic", o.Topic)
	return p, nil
}

func (p *RealPublisher) setConnected(c bool) {
	if p.notify != nil {
		p.notify(c)
	}
}

func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()

	slog.Info("mqtt connected", "replay", len(pending))
	p.setConnected(true)
	for _, m := range pending {
		p.send(m)
	}
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// enqueue sends m now if connected, otherwise buffers it.
func (p *RealPublisher) enqueue(m bufferedMsg) {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return
	}
	p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			slog.Warn("mqtt publish timeout", "topic", m.topic)
			return
		}
		if err := token.Error(); err != nil {
			slog.Warn("mqtt publish failed", "topic", m.topic, "error", err)
		}
	}()
}

// Publish sends a controller event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	p.enqueue(bufferedMsg{topic: p.topics.Events, payload: payload})
	return nil
}

// PublishStatus sends the status snapshot, retained so late subscribers
// see the current state immediately.
func (p *RealPublisher) PublishStatus(payload []byte) error {
	p.enqueue(bufferedMsg{topic: p.topics.Status, payload: payload, qos: 1, retained: true})
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	p.enqueue(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
