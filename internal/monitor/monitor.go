// Package monitor owns the printer session: it derives MQTT parameters
// from settings, keeps the connection alive, ingests report documents
// and answers health queries from the rest of the server.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bambubeacon/bambubeacon-server/internal/hms"
	"github.com/bambubeacon/bambubeacon-server/internal/models"
	"github.com/bambubeacon/bambubeacon-server/internal/transport"
	"github.com/bambubeacon/bambubeacon-server/pkg/crypto"
)

const (
	// DefaultTickInterval is how often the tick loop runs
	DefaultTickInterval = 500 * time.Millisecond

	// DefaultReconnectInterval spaces out connection attempts
	DefaultReconnectInterval = 2 * time.Second

	printerPort    = 8883
	printerUser    = "bblp"
	clientIDPrefix = "bambubeacon-"
)

// Source provides the mutable printer settings the monitor reads when
// it (re)builds its session parameters.
type Source interface {
	PrinterConnection() (address, serial, accessCode string)
	IgnoredCodes() []string
}

// Config tunes the monitor. Zero values fall back to defaults, and a
// nil LinkCheck treats the network link as always up.
type Config struct {
	TTL               time.Duration
	Capacity          int
	TickInterval      time.Duration
	ReconnectInterval time.Duration
	LinkCheck         func() bool
}

// Monitor supervises one printer connection. All state behind mu; the
// transport has its own locking and is safe to call from under it.
type Monitor struct {
	transport transport.Client
	source    Source
	cfg       Config
	clientID  string

	mu           sync.Mutex
	ready        bool
	store        *hms.EventStore
	ignore       hms.IgnoreList
	serial       string
	topicReport  string
	topicRequest string
	subscribed   bool
	lastKick     time.Time
	status       models.StatusSnapshot
	lastProblem  bool
	lastTop      models.Severity

	onReport        func(doc map[string]interface{})
	onProblemChange func(serial string, hasProblem bool, top models.Severity)
}

// New creates a monitor bound to the given transport and settings
// source. Call Begin to start it.
func New(tr transport.Client, src Source, cfg Config) *Monitor {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.LinkCheck == nil {
		cfg.LinkCheck = func() bool { return true }
	}

	suffix, err := crypto.GenerateRandomHex(3)
	if err != nil {
		suffix = "000000"
	}

	m := &Monitor{
		transport: tr,
		source:    src,
		cfg:       cfg,
		clientID:  clientIDPrefix + suffix,
		status:    models.NewStatusSnapshot(),
	}

	tr.SetHandlers(transport.Handlers{
		OnConnected:    m.handleConnected,
		OnDisconnected: m.handleDisconnected,
		OnMessage:      m.handleMessage,
	})
	return m
}

// SetOnReport registers the observer invoked with every decoded report
// document, after internal state is updated. There is one observer
// slot; setting replaces.
func (m *Monitor) SetOnReport(fn func(doc map[string]interface{})) {
	m.mu.Lock()
	m.onReport = fn
	m.mu.Unlock()
}

// SetOnProblemChange registers the observer called when the aggregate
// health changes: the problem flag flips or the top severity moves.
func (m *Monitor) SetOnProblemChange(fn func(serial string, hasProblem bool, top models.Severity)) {
	m.mu.Lock()
	m.onProblemChange = fn
	m.mu.Unlock()
}

// Begin applies the current settings. When they are complete and the
// link is up it starts connecting immediately; otherwise the tick loop
// picks up once both are true.
func (m *Monitor) Begin() bool {
	m.mu.Lock()
	if !m.rebuildLocked() {
		m.mu.Unlock()
		log.Warn().Msg("Printer settings incomplete, monitor idle")
		return false
	}
	if m.cfg.LinkCheck() {
		m.lastKick = time.Now()
		m.connectLocked()
	} else {
		log.Info().Msg("Network link down, will connect from tick loop")
	}
	m.mu.Unlock()
	return true
}

// ReloadFromSettings rebuilds the session from current settings after
// a config change. The old broker session is torn down; reconnecting
// is left to the tick loop.
func (m *Monitor) ReloadFromSettings() bool {
	m.mu.Lock()
	ok := m.rebuildLocked()
	m.mu.Unlock()

	if !ok {
		log.Warn().Msg("Printer settings still incomplete, monitor idle")
		return false
	}
	log.Info().Msg("Printer settings applied, reconnecting shortly")
	return true
}

// rebuildLocked derives session parameters from the settings source.
// Incomplete settings leave the monitor not ready with no event store,
// the state a freshly provisioned device boots into.
func (m *Monitor) rebuildLocked() bool {
	address, serial, accessCode := m.source.PrinterConnection()
	m.ignore = hms.NewIgnoreList(m.source.IgnoredCodes())

	if address == "" || serial == "" || accessCode == "" {
		m.ready = false
		m.store = nil
		m.serial = ""
		m.topicReport = ""
		m.topicRequest = ""
		return false
	}

	m.serial = serial
	m.topicReport = "device/" + serial + "/report"
	m.topicRequest = "device/" + serial + "/request"
	m.store = hms.NewEventStore(m.cfg.Capacity)
	m.subscribed = false
	m.ready = true

	m.transport.Configure(transport.Params{
		BrokerURL: fmt.Sprintf("mqtts://%s:%d", address, printerPort),
		ClientID:  m.clientID,
		Username:  printerUser,
		Password:  accessCode,
	})
	return true
}

// connectLocked kicks a connection attempt. Caller holds mu.
func (m *Monitor) connectLocked() {
	if !m.ready {
		return
	}
	if !m.cfg.LinkCheck() {
		return
	}
	if m.serial == "" {
		log.Warn().Msg("Cannot connect, printer settings missing")
		return
	}
	log.Info().Str("serial", m.serial).Msg("Connecting to printer")
	m.transport.Connect()
}

// Tick drives reconnects, alert expiry and problem transitions. The
// tick loop calls it; tests call it directly with a synthetic now.
func (m *Monitor) Tick(now time.Time) {
	m.mu.Lock()
	if !m.ready || m.store == nil {
		m.mu.Unlock()
		return
	}
	if m.cfg.LinkCheck() && !m.transport.IsConnected() && now.Sub(m.lastKick) > m.cfg.ReconnectInterval {
		m.lastKick = now
		m.connectLocked()
	}
	m.store.Expire(now, m.cfg.TTL)
	notify := m.problemTransitionLocked()
	m.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Start runs the tick loop until ctx is done
func (m *Monitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", m.cfg.TickInterval).Msg("Printer monitor started")

	for {
		select {
		case <-ctx.Done():
			m.transport.Disconnect()
			return nil
		case now := <-ticker.C:
			m.Tick(now)
		}
	}
}

// problemTransitionLocked records the aggregate health and returns a
// notification closure when it moved. Invoke the closure after mu is
// released.
func (m *Monitor) problemTransitionLocked() func() {
	has := m.store.HasProblem()
	top := m.store.TopSeverity()
	if has == m.lastProblem && top == m.lastTop {
		return nil
	}
	m.lastProblem = has
	m.lastTop = top

	fn := m.onProblemChange
	if fn == nil {
		return nil
	}
	serial := m.serial
	return func() { fn(serial, has, top) }
}

func (m *Monitor) handleConnected(sessionResumed bool) {
	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		return
	}
	m.subscribed = false
	topic := m.topicReport
	serial := m.serial
	m.mu.Unlock()

	log.Info().
		Str("serial", serial).
		Bool("sessionResumed", sessionResumed).
		Msg("Connected to printer")

	m.subscribeReportOnce(topic)
}

func (m *Monitor) handleDisconnected(err error) {
	m.mu.Lock()
	m.subscribed = false
	serial := m.serial
	m.mu.Unlock()

	log.Warn().Err(err).Str("serial", serial).Msg("Printer connection lost")
}

func (m *Monitor) handleMessage(topic string, payload []byte) {
	m.mu.Lock()
	expected := m.topicReport
	m.mu.Unlock()

	if expected == "" || topic != expected {
		return
	}
	m.Ingest(payload, time.Now())
}

// subscribeReportOnce subscribes to the report topic unless this
// session already has. Runs outside mu because the subscribe waits on
// the broker.
func (m *Monitor) subscribeReportOnce(topic string) {
	m.mu.Lock()
	done := m.subscribed
	m.mu.Unlock()
	if done || topic == "" {
		return
	}

	if err := m.transport.Subscribe(topic); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Report subscribe failed")
		return
	}

	m.mu.Lock()
	m.subscribed = true
	m.mu.Unlock()
	log.Info().Str("topic", topic).Msg("Subscribed to printer reports")
}

// PublishRequest sends a raw command document to the printer's request
// topic. Returns false when the monitor is idle or the session is down.
func (m *Monitor) PublishRequest(payload []byte, retain bool) bool {
	m.mu.Lock()
	ready := m.ready
	topic := m.topicRequest
	m.mu.Unlock()

	if !ready || !m.transport.IsConnected() {
		return false
	}
	if err := m.transport.Publish(topic, payload, retain); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Request publish failed")
		return false
	}
	return true
}

// Ready reports whether the monitor holds complete printer settings
func (m *Monitor) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Connected reports whether the broker session is up
func (m *Monitor) Connected() bool {
	return m.transport.IsConnected()
}

// Serial returns the serial of the monitored printer, empty when idle
func (m *Monitor) Serial() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serial
}

// Status returns the latest device status snapshot
func (m *Monitor) Status() models.StatusSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// PrintState returns the last reported print state label, empty until
// the first report that carries one
func (m *Monitor) PrintState() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.PrintState
}

// TopSeverity returns the highest active alert severity
func (m *Monitor) TopSeverity() models.Severity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return models.SeverityNone
	}
	return m.store.TopSeverity()
}

// HasProblem reports whether anything at Warning or above is active
func (m *Monitor) HasProblem() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return false
	}
	return m.store.HasProblem()
}

// CountActive counts active alerts of exactly the given severity
func (m *Monitor) CountActive(sev models.Severity) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return 0
	}
	return m.store.CountActive(sev)
}

// CountActiveTotal counts all active alerts
func (m *Monitor) CountActiveTotal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return 0
	}
	return m.store.CountActiveTotal()
}

// ActiveAlerts returns up to max active alerts in slot order
func (m *Monitor) ActiveAlerts(max int) []models.AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	return m.store.SnapshotActive(max)
}

// AlertCapacity returns the event store capacity, 0 when idle
func (m *Monitor) AlertCapacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return 0
	}
	return m.store.Capacity()
}
