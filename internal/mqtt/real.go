package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/thermo-calibrator/internal/logic"
)

// Options configures a Client.
type Options struct {
	Broker    string
	ClientID  string
	Subscribe []string
	// BufferSize bounds the commands held while disconnected.
	BufferSize int
	// Inbound is the capacity of the Messages channel. Messages arriving
	// while it is full are dropped.
	Inbound int
}

// Client subscribes to device topics and publishes commands to a real broker.
// Commands published while disconnected are buffered and replayed on reconnect.
type Client struct {
	client paho.Client
	msgs   chan Message
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	buf *ringBuffer
}

// NewClient connects to the broker. Subscriptions are (re)established on every
// connect, so they survive broker restarts.
func NewClient(o Options) (*Client, error) {
	if o.BufferSize <= 0 {
		o.BufferSize = 64
	}
	if o.Inbound <= 0 {
		o.Inbound = 256
	}
	c := newClient(o.Inbound, o.BufferSize)

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(pc paho.Client) { c.onConnect(pc, o.Subscribe) }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func (c *Client) onConnect(pc paho.Client, filters []string) {
	log.Printf("mqtt: connected")
	for _, f := range filters {
		filter := f
		token := pc.Subscribe(filter, 0, func(_ paho.Client, m paho.Message) {
			c.deliver(Message{Topic: m.Topic(), Payload: m.Payload()})
		})
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("mqtt: subscribe %s: %v", filter, token.Error())
		}
	}

	c.mu.Lock()
	pending := latestPerTopic(c.buf.drainAll())
	c.mu.Unlock()
	if len(pending) > 0 {
		log.Printf("mqtt: replaying %d buffered messages", len(pending))
	}
	for _, m := range pending {
		pc.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

func newClient(inbound, bufferSize int) *Client {
	return &Client{
		msgs: make(chan Message, inbound),
		done: make(chan struct{}),
		buf:  newRingBuffer(bufferSize),
	}
}

// deliver hands m to the Messages channel without blocking paho's router.
// It reports whether m was queued.
func (c *Client) deliver(m Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.msgs <- m:
		return true
	default:
		log.Printf("mqtt: inbound queue full, dropping message on %s", m.Topic)
		return false
	}
}

// stop makes deliver discard further messages.
func (c *Client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Messages delivers inbound messages from the subscribed filters.
func (c *Client) Messages() <-chan Message {
	return c.msgs
}

// PublishCommand sends a calibration command to the thermostat's command topic.
func (c *Client) PublishCommand(cmd logic.Command) error {
	payload, err := FormatCommandPayload(cmd)
	if err != nil {
		return fmt.Errorf("format command: %w", err)
	}
	// QoS 1 (at-least-once), not retained: a stale retained calibration
	// would be reapplied whenever the thermostat resubscribes.
	return c.publish(bufferedMsg{topic: cmd.Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *Client) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (c *Client) publish(m bufferedMsg) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		c.buf.push(m)
		c.mu.Unlock()
		return nil
	}
	token := c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close stops inbound delivery and disconnects from the broker.
func (c *Client) Close() error {
	c.stop()
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
