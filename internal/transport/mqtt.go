package transport

import (
	"crypto/tls"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	keepAlive      = 30 * time.Second
)

// MQTT is the paho-backed transport. Auto-reconnect stays off: the
// monitor decides when to retry, the same way it decides everything
// else about the session.
type MQTT struct {
	mu         sync.Mutex
	client     mqtt.Client
	handlers   Handlers
	connecting bool
}

// NewMQTT creates an unconfigured transport
func NewMQTT() *MQTT {
	return &MQTT{}
}

// Configure replaces the broker session parameters. Any previous
// session is torn down; the caller reconnects when it is ready.
func (m *MQTT) Configure(p Params) {
	m.mu.Lock()
	old := m.client
	m.client = nil
	// An attempt still in flight belongs to old; its goroutine sees
	// the swap and tears the orphan down, so the slot frees up now.
	m.connecting = false
	m.mu.Unlock()

	if old != nil && old.IsConnected() {
		old.Disconnect(250)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.BrokerURL)
	opts.SetClientID(p.ClientID)
	if p.Username != "" {
		opts.SetUsername(p.Username)
		opts.SetPassword(p.Password)
	}

	// Printers serve a self-signed certificate
	opts.SetTLSConfig(&tls.Config{
		InsecureSkipVerify: true,
	})

	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.dispatchDisconnected(err)
	})

	m.mu.Lock()
	m.client = mqtt.NewClient(opts)
	m.mu.Unlock()
}

// SetHandlers installs the session callbacks
func (m *MQTT) SetHandlers(h Handlers) {
	m.mu.Lock()
	m.handlers = h
	m.mu.Unlock()
}

// Connect starts a connection attempt in the background. Success is
// reported through OnConnected; failure is only logged, the caller's
// retry loop will come back around.
func (m *MQTT) Connect() {
	m.mu.Lock()
	client := m.client
	if client == nil || m.connecting {
		m.mu.Unlock()
		return
	}
	m.connecting = true
	m.mu.Unlock()

	go func() {
		token := client.Connect()
		ok := token.WaitTimeout(connectTimeout) && token.Error() == nil

		m.mu.Lock()
		replaced := m.client != client
		if !replaced {
			m.connecting = false
		}
		m.mu.Unlock()

		if replaced {
			// Configure swapped the session mid-handshake; this
			// goroutine holds the last reference to the dialed client.
			if ok {
				client.Disconnect(0)
			}
			return
		}

		if !ok {
			log.Error().
				Err(token.Error()).
				Msg("MQTT connect failed")
			return
		}

		sessionResumed := false
		if ct, isConnect := token.(*mqtt.ConnectToken); isConnect {
			sessionResumed = ct.SessionPresent()
		}
		m.dispatchConnected(sessionResumed)
	}()
}

// Disconnect tears down the session without firing OnDisconnected
func (m *MQTT) Disconnect() {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}

// IsConnected reports whether the broker session is up
func (m *MQTT) IsConnected() bool {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	return client != nil && client.IsConnected()
}

// Subscribe subscribes at QoS 0 and routes messages to OnMessage
func (m *MQTT) Subscribe(topic string) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return ErrNotConfigured
	}

	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		m.dispatchMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return ErrNotConnected
	}
	return token.Error()
}

// Publish sends payload at QoS 0
func (m *MQTT) Publish(topic string, payload []byte, retain bool) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return ErrNotConfigured
	}
	if !client.IsConnected() {
		return ErrNotConnected
	}

	token := client.Publish(topic, 0, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return ErrNotConnected
	}
	return token.Error()
}

func (m *MQTT) dispatchConnected(sessionResumed bool) {
	m.mu.Lock()
	h := m.handlers.OnConnected
	m.mu.Unlock()

	if h != nil {
		h(sessionResumed)
	}
}

func (m *MQTT) dispatchDisconnected(err error) {
	m.mu.Lock()
	h := m.handlers.OnDisconnected
	m.mu.Unlock()

	if h != nil {
		h(err)
	}
}

func (m *MQTT) dispatchMessage(topic string, payload []byte) {
	m.mu.Lock()
	h := m.handlers.OnMessage
	m.mu.Unlock()

	if h != nil {
		h(topic, payload)
	}
}
