// Package mqtt is a thin channel fed publisher to an mqtt broker.
package mqtt

import (
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/womat/debug"
)

const (
	// quiesce is the number of milliseconds to wait on disconnect for
	// existing work to be completed.
	quiesce = 250
	// connectTimeout limits how long a (re)connect attempt may take.
	connectTimeout = 10 * time.Second
)

// Message contains the properties of one mqtt message.
type Message struct {
	Topic    string
	Payload  []byte
	Qos      byte
	Retained bool
}

// Handler publishes messages sent to channel C to the broker.
type Handler struct {
	client mqttlib.Client

	// C is the channel to service the mqtt messages;
	// sending a message to channel C will publish it.
	C chan Message
}

// New generates a new mqtt broker client.
func New() *Handler {
	return &Handler{
		C: make(chan Message),
	}
}

// Connect connects to the mqtt broker, e.g. "tcp://127.0.0.1:1883".
// With an empty broker string the handler stays inactive and all messages
// are discarded.
func (m *Handler) Connect(broker, clientID string) error {
	if broker == "" {
		return nil
	}

	opts := mqttlib.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout)

	m.client = mqttlib.NewClient(opts)
	return m.reconnect()
}

// Disconnect ends the connection to the broker.
func (m *Handler) Disconnect() error {
	if m.client == nil {
		return nil
	}

	m.client.Disconnect(quiesce)
	return nil
}

// Service reads channel C and publishes each message. It returns when C is
// closed and is designed to run as its own goroutine.
func (m *Handler) Service() {
	for msg := range m.C {
		if m.client == nil || msg.Topic == "" {
			continue
		}

		go m.publish(msg)
	}
}

func (m *Handler) reconnect() error {
	t := m.client.Connect()
	<-t.Done()
	return t.Error()
}

// publish sends one message, reconnecting first if the broker connection
// was lost in the meantime.
func (m *Handler) publish(msg Message) {
	if !m.client.IsConnected() {
		debug.DebugLog.Print("mqtt broker isn't connected, reconnect it")

		if err := m.reconnect(); err != nil {
			debug.ErrorLog.Printf("can't reconnect to mqtt broker: %v", err)
			return
		}
	}

	debug.DebugLog.Printf("publishing %v bytes to topic %v", len(msg.Payload), msg.Topic)
	t := m.client.Publish(msg.Topic, msg.Qos, msg.Retained, msg.Payload)

	// the asynchronous nature of the paho library makes it easy to forget
	// to check for errors, so collect them in the background
	go func() {
		<-t.Done()
		if err := t.Error(); err != nil {
			debug.ErrorLog.Printf("publishing topic %v: %v", msg.Topic, err)
		}
	}()
}
