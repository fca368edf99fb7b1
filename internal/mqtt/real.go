package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	bufferSize     = 1000
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	Prefix   string
	Username string
	Password string
	Logger   hclog.Logger
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the broker is unreachable are buffered and replayed in order on reconnect.
type RealPublisher struct {
	client paho.Client
	prefix string
	log    hclog.Logger

	mu      sync.Mutex
	pending *ringBuffer
}

// NewRealPublisher connects to the broker. The broker is told to publish a
// retained OFFLINE status if the session dies without closing.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}
	p := &RealPublisher{
		prefix:  o.Prefix,
		log:     o.Logger,
		pending: newRingBuffer(bufferSize, o.Logger),
	}

	will, err := FormatStatusPayload(StatusEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "connection lost"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID("gatewayctl-" + uuid.NewString()[:8]).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetBinaryWill(StatusTopic(o.Prefix), will, 1, true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) { p.flush() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("broker connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// PublishLine sends a log line at QoS 0.
func (p *RealPublisher) PublishLine(line LogLine) error {
	payload, err := FormatPayload(line)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(message{topic: LogTopic(p.prefix), payload: payload})
}

// PublishStatus sends a status event at QoS 1.
func (p *RealPublisher) PublishStatus(event StatusEvent) error {
	payload, err := FormatStatusPayload(event)
	if err != nil {
		return fmt.Errorf("format status payload: %w", err)
	}
	return p.publish(message{topic: StatusTopic(p.prefix), payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m message) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.pending.push(m)
		p.mu.Unlock()
		return nil
	}
	return p.send(m)
}

func (p *RealPublisher) send(m message) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// flush replays buffered messages after a (re)connect.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.pending.drain()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}
	p.log.Info("replaying buffered messages", "count", len(msgs), "dropped", dropped)
	go func() {
		for _, m := range msgs {
			if err := p.send(m); err != nil {
				p.log.Warn("replay failed", "error", err)
				return
			}
		}
	}()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
