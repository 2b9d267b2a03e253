package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/fanout"
)

// MessageHandler processes one incoming message.
type MessageHandler func(topic string, payload []byte, received time.Time)

// Options configures a RealPublisher.
type Options struct {
	Broker        string
	ClientID      string // a random suffix is appended
	Username      string
	Password      string
	TopicTimeline string
	TopicSystem   string
	BufferSize    int
}

func (o *Options) defaults() {
	if o.ClientID == "" {
		o.ClientID = "outlet-monitor"
	}
	if o.TopicTimeline == "" {
		o.TopicTimeline = TopicTimeline
	}
	if o.TopicSystem == "" {
		o.TopicSystem = TopicSystem
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 100
	}
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed once it comes back.
type RealPublisher struct {
	client paho.Client
	opts   Options
	log    *zap.Logger

	mu   sync.Mutex
	buf  *ringBuffer
	subs map[string]subscription
}

// NewRealPublisher creates a publisher for the broker. The connection is
// established in the background and retried until Close.
func NewRealPublisher(o Options, log *zap.Logger) *RealPublisher {
	o.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	p := &RealPublisher{
		opts: o,
		log:  log.Named("mqtt"),
		buf:  newRingBuffer(o.BufferSize),
		subs: map[string]subscription{},
	}

	lwt, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "LWT", Reason: "connection lost"})
	co := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID + "-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(true).
		SetBinaryWill(o.TopicSystem, lwt, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("connection lost", zap.Error(err))
		})
	if o.Username != "" {
		co.SetUsername(o.Username)
		co.SetPassword(o.Password)
	}

	p.client = paho.NewClient(co)
	p.client.Connect()
	return p
}

// onConnect restores subscriptions and replays the buffer.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	pending := p.buf.drainAll()
	subs := make(map[string]subscription, len(p.subs))
	for t, s := range p.subs {
		subs[t] = s
	}
	p.mu.Unlock()

	p.log.Info("connected", zap.String("broker", p.opts.Broker), zap.Int("buffered", len(pending)))

	for topic, s := range subs {
		if err := p.subscribe(topic, s); err != nil {
			p.log.Error("resubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.log.Warn("replay failed", zap.String("topic", m.topic), zap.Error(err))
		}
	}
}

// IsConnected reports whether the client currently has a live connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// PublishChange sends a batch of slot writes (QoS 0, not retained).
func (p *RealPublisher) PublishChange(ev fanout.Event) error {
	payload, err := FormatPayload(ev)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.opts.TopicTimeline, payload: payload})
}

// PublishSystem sends a system lifecycle event (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.opts.TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		first := p.buf.push(m)
		p.mu.Unlock()
		if first {
			p.log.Warn("buffer full, dropping oldest", zap.Int("capacity", p.opts.BufferSize))
		}
		return nil
	}
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription is made now if
// connected and restored on every reconnect.
func (p *RealPublisher) Subscribe(topic string, qos byte, handler MessageHandler) error {
	s := subscription{qos: qos, handler: handler}
	p.mu.Lock()
	p.subs[topic] = s
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		return nil
	}
	return p.subscribe(topic, s)
}

func (p *RealPublisher) subscribe(topic string, s subscription) error {
	token := p.client.Subscribe(topic, s.qos, func(_ paho.Client, msg paho.Message) {
		s.handler(msg.Topic(), msg.Payload(), time.Now())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
