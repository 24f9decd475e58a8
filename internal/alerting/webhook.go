// Package alerting batches risk alerts and delivers them to a webhook
// endpoint.
package alerting

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// Alert is one deliverable event: a risky assessment or an alerting
// error classification.
type Alert struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Severity  model.Severity `json:"severity"`
	Protocol  string         `json:"protocol,omitempty"`
	Address   string         `json:"address,omitempty"`
	RiskScore float64        `json:"risk_score,omitempty"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"created_at"`
}

// Alert kinds
const (
	KindRiskThreshold = "risk_threshold"
	KindLiquidation   = "liquidation_imminent"
	KindSystemError   = "system_error"
)

// Config holds configuration for the webhook notifier
type Config struct {
	WebhookURL    string        `json:"webhook_url"`
	WebhookAPIKey string        `json:"webhook_api_key,omitempty"`
	BatchSize     int           `json:"batch_size"`
	FlushInterval time.Duration `json:"flush_interval"`
	RiskThreshold float64       `json:"risk_threshold"`
}

// Notifier batches alerts and posts them to the configured webhook. A
// full batch flushes immediately; a background ticker flushes partial
// batches. With no webhook URL the notifier only logs.
type Notifier struct {
	config     Config
	httpClient *http.Client
	mutex      sync.Mutex
	pending    []Alert
	lastFlush  time.Time
	cancel     context.CancelFunc
}

// NewNotifier creates and starts a notifier.
func NewNotifier(config Config) *Notifier {
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Minute
	}
	if config.RiskThreshold <= 0 {
		config.RiskThreshold = 75
	}

	n := &Notifier{
		config: config,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				IdleConnTimeout: 90 * time.Second,
			},
		},
		pending: make([]Alert, 0, config.BatchSize),
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go n.periodicFlush(ctx)

	logrus.Info("Alert notifier initialized")
	return n
}

// ObserveAssessment raises alerts for assessments that cross the risk
// threshold or sit at the liquidation boundary.
func (n *Notifier) ObserveAssessment(a model.RiskAssessment) {
	if a.HealthStatus == model.HealthCritical && a.LiquidationRisk.Probability >= 1.0 {
		n.enqueue(Alert{
			Kind:      KindLiquidation,
			Severity:  model.SeverityCritical,
			Protocol:  a.Protocol,
			Address:   a.Address,
			RiskScore: a.OverallRiskScore,
			Message:   fmt.Sprintf("position on %s is at or past the liquidation boundary", a.Protocol),
		})
		return
	}

	if a.OverallRiskScore >= n.config.RiskThreshold {
		n.enqueue(Alert{
			Kind:      KindRiskThreshold,
			Severity:  model.SeverityHigh,
			Protocol:  a.Protocol,
			Address:   a.Address,
			RiskScore: a.OverallRiskScore,
			Message:   fmt.Sprintf("risk score %.1f exceeds threshold %.1f", a.OverallRiskScore, n.config.RiskThreshold),
		})
	}
}

// SystemAlert raises an operational alert, used for error classifications
// flagged as alert-worthy.
func (n *Notifier) SystemAlert(severity model.Severity, message string) {
	n.enqueue(Alert{
		Kind:     KindSystemError,
		Severity: severity,
		Message:  message,
	})
}

// Pending reports the queued alert count.
func (n *Notifier) Pending() int {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return len(n.pending)
}

// Stop cancels the flush loop and delivers any remaining alerts.
func (n *Notifier) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.flush()
}

func (n *Notifier) enqueue(alert Alert) {
	alert.ID = uuid.NewString()
	alert.CreatedAt = time.Now().UTC()

	n.mutex.Lock()
	n.pending = append(n.pending, alert)
	full := len(n.pending) >= n.config.BatchSize
	n.mutex.Unlock()

	logrus.WithFields(logrus.Fields{
		"kind":     alert.Kind,
		"severity": alert.Severity,
		"protocol": alert.Protocol,
	}).Warn(alert.Message)

	if full {
		go n.flush()
	}
}

func (n *Notifier) periodicFlush(ctx context.Context) {
	ticker := time.NewTicker(n.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.flush()
		case <-ctx.Done():
			return
		}
	}
}

// flush delivers the current batch. Delivery failure requeues nothing:
// alerts are advisory and the log line above already recorded them.
func (n *Notifier) flush() {
	n.mutex.Lock()
	if len(n.pending) == 0 {
		n.mutex.Unlock()
		return
	}
	batch := make([]Alert, len(n.pending))
	copy(batch, n.pending)
	n.pending = n.pending[:0]
	n.lastFlush = time.Now()
	n.mutex.Unlock()

	if n.config.WebhookURL == "" {
		logrus.Debugf("No webhook configured, dropped %d alert(s) after logging", len(batch))
		return
	}

	if err := n.deliver(batch); err != nil {
		logrus.Errorf("Failed to deliver %d alert(s) to webhook: %v", len(batch), err)
		return
	}
	logrus.Infof("Delivered %d alert(s) to webhook", len(batch))
}

func (n *Notifier) deliver(batch []Alert) error {
	payload := struct {
		Alerts []Alert `json:"alerts"`
		SentAt string  `json:"sent_at"`
		Count  int     `json:"count"`
	}{
		Alerts: batch,
		SentAt: time.Now().UTC().Format(time.RFC3339),
		Count:  len(batch),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	req, err := http.NewRequest("POST", n.config.WebhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.config.WebhookAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.config.WebhookAPIKey)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}
