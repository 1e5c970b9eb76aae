// Package transport carries MQTT traffic between the monitor and a
// printer. The monitor owns reconnect policy; the transport only opens,
// closes and reports a single broker session.
package transport

import "errors"

var (
	// ErrNotConfigured is returned before Configure has been called
	ErrNotConfigured = errors.New("transport not configured")

	// ErrNotConnected is returned when an operation needs a live session
	ErrNotConnected = errors.New("transport not connected")
)

// Params carries everything needed to reach a printer's broker
type Params struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// Handlers receives session callbacks. OnConnected reports whether the
// broker resumed a previous session. OnDisconnected fires only when an
// established session drops, not on failed connect attempts.
type Handlers struct {
	OnConnected    func(sessionResumed bool)
	OnDisconnected func(err error)
	OnMessage      func(topic string, payload []byte)
}

// Client is the broker session surface the monitor depends on
type Client interface {
	Configure(p Params)
	SetHandlers(h Handlers)
	Connect()
	Disconnect()
	IsConnected() bool
	Subscribe(topic string) error
	Publish(topic string, payload []byte, retain bool) error
}
