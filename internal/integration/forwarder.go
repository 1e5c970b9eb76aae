// Package integration forwards monitor events to external systems:
// NATS subjects for anything on the bus, and an optional HTTP webhook.
// Delivery is best effort; failures are logged and dropped.
package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/bambubeacon/bambubeacon-server/internal/models"
)

// ReportEvent is the envelope forwarded after each processed report
type ReportEvent struct {
	ID          string                `json:"id"`
	Time        time.Time             `json:"time"`
	Serial      string                `json:"serial"`
	Status      models.StatusSnapshot `json:"status"`
	TopSeverity models.Severity       `json:"topSeverity"`
	ActiveTotal int                   `json:"activeTotal"`
	Alerts      []models.AlertEvent   `json:"alerts"`
}

// NewReportEvent builds a report envelope with a fresh id
func NewReportEvent(serial string, status models.StatusSnapshot, top models.Severity, alerts []models.AlertEvent) ReportEvent {
	return ReportEvent{
		ID:          uuid.New().String(),
		Time:        time.Now().UTC(),
		Serial:      serial,
		Status:      status,
		TopSeverity: top,
		ActiveTotal: len(alerts),
		Alerts:      alerts,
	}
}

// ProblemEvent is the envelope forwarded when aggregate health moves
type ProblemEvent struct {
	ID          string          `json:"id"`
	Time        time.Time       `json:"time"`
	Serial      string          `json:"serial"`
	HasProblem  bool            `json:"hasProblem"`
	TopSeverity models.Severity `json:"topSeverity"`
}

// NewProblemEvent builds a problem envelope with a fresh id
func NewProblemEvent(serial string, hasProblem bool, top models.Severity) ProblemEvent {
	return ProblemEvent{
		ID:          uuid.New().String(),
		Time:        time.Now().UTC(),
		Serial:      serial,
		HasProblem:  hasProblem,
		TopSeverity: top,
	}
}

// Forwarder fans monitor events out to NATS and the webhook. Both
// sinks are optional; a nil connection or empty URL disables one.
type Forwarder struct {
	nc         *nats.Conn
	webhookURL string
	httpClient *http.Client
}

// NewForwarder creates a forwarder
func NewForwarder(nc *nats.Conn, webhookURL string) *Forwarder {
	return &Forwarder{
		nc:         nc,
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ForwardReport publishes a report event to beacon.report.<serial>
// and the webhook.
func (f *Forwarder) ForwardReport(ev ReportEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal report event")
		return
	}

	f.publish("beacon.report."+ev.Serial, data)
}

// ForwardProblem publishes a problem event to beacon.problem.<serial>
// and the webhook.
func (f *Forwarder) ForwardProblem(ev ProblemEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal problem event")
		return
	}

	f.publish("beacon.problem."+ev.Serial, data)
}

func (f *Forwarder) publish(subject string, data []byte) {
	if f.nc != nil {
		if err := f.nc.Publish(subject, data); err != nil {
			log.Error().
				Err(err).
				Str("subject", subject).
				Msg("Failed to publish event to NATS")
		}
	}

	if f.webhookURL != "" {
		go f.postWebhook(data)
	}
}

// postWebhook delivers one event to the webhook endpoint
func (f *Forwarder) postWebhook(data []byte) {
	req, err := http.NewRequest("POST", f.webhookURL, bytes.NewBuffer(data))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("endpoint", f.webhookURL).
			Msg("Failed to forward event to webhook")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("endpoint", f.webhookURL).
			Msg("Webhook delivery failed")
	} else {
		log.Debug().
			Str("endpoint", f.webhookURL).
			Msg("Event forwarded to webhook")
	}
}
