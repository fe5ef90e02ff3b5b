package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/valve-supervisor/internal/logic"
)

// ClientID identifies the supervisor to the broker.
const ClientID = "valve-supervisor"

// bufferCapacity bounds the messages held while the broker is unreachable.
const bufferCapacity = 256

const (
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
)

// RealPublisher publishes to an actual MQTT broker.
// Messages published while disconnected are buffered and replayed, oldest
// first, once the connection is (re)established.
type RealPublisher struct {
	client paho.Client

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	sessions  int // successful connections so far
	losses    int // connections lost so far
	now       func() time.Time
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting in the background. It never blocks on the broker.
func NewRealPublisher(broker string) *RealPublisher {
	p := &RealPublisher{
		buf: newRingBuffer(bufferCapacity),
		now: time.Now,
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     SystemOffline,
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		log.Printf("mqtt: format will payload: %v", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// onConnect replays the buffer before marking the publisher connected, so
// messages published during the replay are buffered behind older ones.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	p.sessions++
	reconnect := p.sessions > 1
	losses := p.losses
	p.mu.Unlock()

	replayed, dropped := 0, 0
	for {
		p.mu.Lock()
		if p.losses != losses {
			p.mu.Unlock()
			log.Printf("mqtt: connection lost during replay (%d replayed)", replayed)
			return
		}
		pending, n := p.buf.drainAll()
		dropped += n
		if len(pending) == 0 {
			p.connected = true
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		for _, m := range pending {
			if err := p.send(m); err != nil {
				log.Printf("mqtt: replay to %s: %v", m.topic, err)
			}
		}
		replayed += len(pending)
	}
	log.Printf("mqtt: connected (replayed %d buffered, %d dropped)", replayed, dropped)

	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: p.now(), Event: SystemReconnected}); err != nil {
			log.Printf("mqtt: publish reconnected: %v", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.mu.Lock()
	p.connected = false
	p.losses++
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

// Publish sends a supervisor event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.enqueue(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.enqueue(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// enqueue publishes m now when connected and buffers it otherwise.
func (p *RealPublisher) enqueue(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.send(m); err != nil {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(disconnectQuiesce)
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}
